package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"tenniscourts/internal/config"
	"tenniscourts/internal/domain"
	"tenniscourts/internal/metrics"
	"tenniscourts/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// OutboxStore is the durable part of the outbox.
type OutboxStore interface {
	CreateOutboxTask(ctx context.Context, task *models.OutboxTask) error
	GetPendingOutboxTasks(ctx context.Context, limit int) ([]models.OutboxTask, error)
	UpdateOutboxTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// OutboxWorker persists reservation side effects and delivers them to the registered handlers.
// Tasks are announced through redis when available, else through a local channel;
// the store poll picks up whatever both of them miss.
type OutboxWorker struct {
	store         OutboxStore
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.OutboxTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	now           func() time.Time
	logger        *zerolog.Logger

	mu       sync.RWMutex
	handlers map[string]domain.TaskHandler
}

func NewOutboxWorker(store OutboxStore, redisClient *redis.Client, cfg config.WorkerConfig, logger *zerolog.Logger) *OutboxWorker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	w := &OutboxWorker{
		store:         store,
		redis:         redisClient,
		retryPolicy:   RetryPolicyFromConfig(cfg),
		queue:         make(chan models.OutboxTask, models.WorkerQueueSize),
		redisQueueKey: cfg.QueueKey,
		deadLetterKey: cfg.DeadLetter,
		pollInterval:  cfg.PollInterval,
		batchSize:     cfg.BatchSize,
		now:           time.Now,
		logger:        logger,
		handlers:      make(map[string]domain.TaskHandler),
	}
	if w.redisQueueKey == "" {
		w.redisQueueKey = "tenniscourts:outbox"
	}
	if w.deadLetterKey == "" {
		w.deadLetterKey = w.redisQueueKey + ":dead"
	}
	if w.pollInterval <= 0 {
		w.pollInterval = 5 * time.Second
	}
	if w.batchSize <= 0 {
		w.batchSize = 20
	}
	return w
}

// Register binds a handler to a task type. Tasks without a handler fail permanently.
func (w *OutboxWorker) Register(taskType string, handler domain.TaskHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[taskType] = handler
}

func (w *OutboxWorker) TaskTypes() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	types := make([]string, 0, len(w.handlers))
	for t := range w.handlers {
		types = append(types, t)
	}
	return types
}

// EnqueueTask persists the task and announces it to the consumer.
func (w *OutboxWorker) EnqueueTask(ctx context.Context, taskType string, reservationID int64, payload interface{}) error {
	if taskType == "" {
		return errors.New("task type is required")
	}
	if reservationID == 0 {
		return errors.New("reservation id is required")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.OutboxTask{
		TaskType:      taskType,
		ReservationID: reservationID,
		Payload:       string(raw),
		Status:        models.TaskStatusPending,
	}
	if err := w.store.CreateOutboxTask(ctx, &task); err != nil {
		return fmt.Errorf("persist outbox task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, w.redisQueueKey, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("redis push failed, falling back to local queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("local queue full, task left to polling")
	}
	return nil
}

// Start runs the delivery loop until ctx is done.
func (w *OutboxWorker) Start(ctx context.Context) {
	w.logger.Info().Strs("task_types", w.TaskTypes()).Msg("outbox worker started")
	defer w.logger.Info().Msg("outbox worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		if n := w.ProcessPending(ctx); n == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.pollInterval):
			}
		}
	}
}

// ProcessPending delivers one batch of due tasks from the store and returns its size.
func (w *OutboxWorker) ProcessPending(ctx context.Context) int {
	tasks, err := w.store.GetPendingOutboxTasks(ctx, w.batchSize)
	if err != nil {
		w.logger.Error().Err(err).Msg("fetch pending outbox tasks")
		return 0
	}
	for i := range tasks {
		w.processTask(ctx, &tasks[i])
	}
	return len(tasks)
}

func (w *OutboxWorker) tryLocalQueue() (models.OutboxTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.OutboxTask{}, false
	}
}

func (w *OutboxWorker) tryRedis(ctx context.Context) (models.OutboxTask, bool) {
	if w.redis == nil {
		return models.OutboxTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Warn().Err(err).Msg("redis BRPOP failed")
		}
		return models.OutboxTask{}, false
	}
	if len(res) != 2 {
		return models.OutboxTask{}, false
	}
	var task models.OutboxTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis outbox task")
		return models.OutboxTask{}, false
	}
	return task, true
}

func (w *OutboxWorker) processTask(ctx context.Context, task *models.OutboxTask) {
	w.mu.RLock()
	handler, ok := w.handlers[task.TaskType]
	w.mu.RUnlock()
	if !ok {
		w.fail(ctx, task, fmt.Errorf("no handler for task type %q", task.TaskType))
		return
	}

	if err := handler.Handle(ctx, []byte(task.Payload)); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.store.UpdateOutboxTaskStatus(ctx, task.ID, models.TaskStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark outbox task completed")
	}
	metrics.IncOutbox(task.TaskType, models.TaskStatusCompleted)
	w.logger.Debug().Int64("task_id", task.ID).Str("task_type", task.TaskType).Msg("outbox task delivered")
}

func (w *OutboxWorker) retryOrFail(ctx context.Context, task *models.OutboxTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.fail(ctx, task, cause)
		return
	}

	next := w.now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.store.UpdateOutboxTaskStatus(ctx, task.ID, models.TaskStatusRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark outbox task for retry")
	}
	metrics.IncOutbox(task.TaskType, models.TaskStatusRetry)
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempt", attempt).Time("next_retry_at", next).Msg("outbox delivery failed, will retry")
}

func (w *OutboxWorker) fail(ctx context.Context, task *models.OutboxTask, cause error) {
	if err := w.store.UpdateOutboxTaskStatus(ctx, task.ID, models.TaskStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark outbox task failed")
	}
	metrics.IncOutbox(task.TaskType, models.TaskStatusFailed)
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("task_type", task.TaskType).Msg("outbox task failed permanently")

	if w.redis != nil {
		if err := w.pushRedis(ctx, w.deadLetterKey, *task); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("dead letter push failed")
		}
	}
}

func (w *OutboxWorker) pushRedis(ctx context.Context, key string, task models.OutboxTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}
