package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"tenniscourts/internal/config"
	"tenniscourts/internal/database"
	"tenniscourts/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type fakeHandler struct {
	err      error
	payloads [][]byte
}

func (f *fakeHandler) Handle(_ context.Context, payload []byte) error {
	f.payloads = append(f.payloads, payload)
	return f.err
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (string, int, sql.NullTime) {
	t.Helper()
	var (
		status    string
		retry     int
		nextRetry sql.NullTime
	)
	row := db.QueryRow(`SELECT status, retry_count, next_retry_at FROM outbox WHERE id = ?`, id)
	if err := row.Scan(&status, &retry, &nextRetry); err != nil {
		t.Fatalf("load task %d: %v", id, err)
	}
	return status, retry, nextRetry
}

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	handler := &fakeHandler{}
	w := NewOutboxWorker(db, nil, config.WorkerConfig{}, nil)
	w.Register(models.TaskTelegramNotify, handler)

	ctx := context.Background()
	if err := w.EnqueueTask(ctx, models.TaskTelegramNotify, 7, map[string]int64{"reservation_id": 7}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := w.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	w.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != models.TaskStatusCompleted {
		t.Fatalf("expected status=completed, got %s", status)
	}
	if retryCount != 0 {
		t.Fatalf("expected retry_count=0, got %d", retryCount)
	}
	if nextRetry.Valid {
		t.Fatalf("expected next_retry_at NULL on success")
	}
	if len(handler.payloads) != 1 || string(handler.payloads[0]) != `{"reservation_id":7}` {
		t.Fatalf("unexpected payloads: %q", handler.payloads)
	}
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	w := NewOutboxWorker(db, nil, config.WorkerConfig{MaxRetries: 3, BaseDelay: time.Second}, nil)
	w.Register(models.TaskSheetsUpsert, &fakeHandler{err: errors.New("boom")})

	ctx := context.Background()
	if err := w.EnqueueTask(ctx, models.TaskSheetsUpsert, 2, struct{}{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, _ := w.tryLocalQueue()
	w.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != models.TaskStatusRetry {
		t.Fatalf("expected status=retry, got %s", status)
	}
	if retryCount != 1 {
		t.Fatalf("expected retry_count=1, got %d", retryCount)
	}
	if !nextRetry.Valid || nextRetry.Time.Before(time.Now()) {
		t.Fatalf("expected next_retry_at in future, got %v", nextRetry)
	}

	if n := w.ProcessPending(ctx); n != 0 {
		t.Fatalf("task is not due yet, processed %d", n)
	}
}

func TestProcessTaskFailsToDeadLetter(t *testing.T) {
	db := newTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	w := NewOutboxWorker(db, rdb, config.WorkerConfig{MaxRetries: 1, QueueKey: "q", DeadLetter: "q:dead"}, nil)
	w.Register(models.TaskSheetsUpsert, &fakeHandler{err: errors.New("fatal")})

	ctx := context.Background()
	if err := w.EnqueueTask(ctx, models.TaskSheetsUpsert, 3, struct{}{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, ok := w.tryLocalQueue(); ok {
		t.Fatalf("redis is up, local queue must stay empty")
	}

	task, ok := w.tryRedis(ctx)
	if !ok {
		t.Fatalf("expected task in redis queue")
	}
	w.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	if status != models.TaskStatusFailed {
		t.Fatalf("expected status=failed, got %s", status)
	}

	dead, err := mr.List("q:dead")
	if err != nil || len(dead) != 1 {
		t.Fatalf("expected one dead letter, got %v (%v)", dead, err)
	}
	var got models.OutboxTask
	if err := json.Unmarshal([]byte(dead[0]), &got); err != nil {
		t.Fatalf("decode dead letter: %v", err)
	}
	if got.ID != task.ID {
		t.Fatalf("dead letter id = %d, want %d", got.ID, task.ID)
	}
}

func TestProcessTaskWithoutHandler(t *testing.T) {
	db := newTestDB(t)
	w := NewOutboxWorker(db, nil, config.WorkerConfig{}, nil)

	ctx := context.Background()
	if err := w.EnqueueTask(ctx, "unknown", 4, struct{}{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, _ := w.tryLocalQueue()
	w.processTask(ctx, &task)

	if status, _, _ := loadTaskStatus(t, db, task.ID); status != models.TaskStatusFailed {
		t.Fatalf("expected status=failed, got %s", status)
	}
}

func TestEnqueueFallsBackWhenRedisDown(t *testing.T) {
	db := newTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.SetError("READONLY")

	w := NewOutboxWorker(db, rdb, config.WorkerConfig{}, nil)
	if err := w.EnqueueTask(context.Background(), models.TaskTelegramNotify, 5, struct{}{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, ok := w.tryLocalQueue(); !ok {
		t.Fatalf("expected fallback to local queue")
	}
}

func TestEnqueueValidation(t *testing.T) {
	w := NewOutboxWorker(newTestDB(t), nil, config.WorkerConfig{}, nil)
	ctx := context.Background()

	if err := w.EnqueueTask(ctx, "", 1, nil); err == nil {
		t.Fatalf("expected error for empty task type")
	}
	if err := w.EnqueueTask(ctx, models.TaskSheetsUpsert, 0, nil); err == nil {
		t.Fatalf("expected error for zero reservation id")
	}
}

func TestStartDrainsPendingTasks(t *testing.T) {
	db := newTestDB(t)
	handler := &fakeHandler{}
	w := NewOutboxWorker(db, nil, config.WorkerConfig{PollInterval: 10 * time.Millisecond}, nil)
	w.Register(models.TaskSheetsUpsert, handler)

	ctx, cancel := context.WithCancel(context.Background())
	task := &models.OutboxTask{TaskType: models.TaskSheetsUpsert, ReservationID: 9, Payload: `{}`}
	if err := db.CreateOutboxTask(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		status, _, _ := loadTaskStatus(t, db, task.ID)
		if status == models.TaskStatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("task not delivered, status=%s", status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("worker did not stop")
	}
}

func TestRetryPolicy(t *testing.T) {
	p := RetryPolicy{MaxRetries: 4, InitialDelay: time.Second, MaxDelay: 5 * time.Second}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{40, 5 * time.Second},
	}
	for _, tc := range cases {
		if got := p.NextDelay(tc.attempt); got != tc.want {
			t.Errorf("NextDelay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}

	if p.Exhausted(3) {
		t.Errorf("attempt 3 of 4 is not exhausted")
	}
	if !p.Exhausted(4) {
		t.Errorf("attempt 4 of 4 is exhausted")
	}

	defaults := RetryPolicyFromConfig(config.WorkerConfig{})
	if defaults.MaxRetries != 5 || defaults.InitialDelay != 2*time.Second || defaults.MaxDelay != time.Minute {
		t.Errorf("unexpected defaults: %+v", defaults)
	}
}

func TestEnabledTaskTypes(t *testing.T) {
	cfg := &config.Config{}
	if got := EnabledTaskTypes(cfg); len(got) != 0 {
		t.Fatalf("expected no task types, got %v", got)
	}

	cfg.Telegram.BotToken = "token"
	cfg.Google.SpreadsheetID = "sheet"
	got := EnabledTaskTypes(cfg)
	if len(got) != 2 || got[0] != models.TaskTelegramNotify || got[1] != models.TaskSheetsUpsert {
		t.Fatalf("unexpected task types: %v", got)
	}
}

func TestRegisterHandlers_UnreachableDestinationsSkipped(t *testing.T) {
	logger := zerolog.Nop()
	w := NewOutboxWorker(newTestDB(t), nil, config.WorkerConfig{}, &logger)

	cfg := &config.Config{}
	cfg.Google.SpreadsheetID = "sheet"
	cfg.Google.CredentialsFile = t.TempDir() + "/missing.json"

	if got := RegisterHandlers(context.Background(), w, cfg, &logger); len(got) != 0 {
		t.Fatalf("expected nothing registered, got %v", got)
	}
	if types := w.TaskTypes(); len(types) != 0 {
		t.Fatalf("expected no handlers, got %v", types)
	}
}
