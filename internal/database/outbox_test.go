package database

import (
	"context"
	"testing"
	"time"

	"tenniscourts/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	task := &models.OutboxTask{
		TaskType:      models.TaskTelegramNotify,
		ReservationID: 100,
		Payload:       `{"test": true}`,
	}

	require.NoError(t, db.CreateOutboxTask(ctx, task))
	assert.Equal(t, models.TaskStatusPending, task.Status)

	tasks, err := db.GetPendingOutboxTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, int64(100), tasks[0].ReservationID)

	require.NoError(t, db.UpdateOutboxTaskStatus(ctx, tasks[0].ID, models.TaskStatusCompleted, "", nil))

	tasks, err = db.GetPendingOutboxTasks(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, tasks, 0)

	errMsg := "some error"
	require.NoError(t, db.CreateOutboxTask(ctx, &models.OutboxTask{
		TaskType: models.TaskSheetsUpsert, ReservationID: 101, Status: models.TaskStatusFailed, LastError: &errMsg,
	}))
	failed, err := db.GetFailedOutboxTasks(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "some error", *failed[0].LastError)

	t.Run("RetrySchedule", func(t *testing.T) {
		task2 := &models.OutboxTask{TaskType: models.TaskSheetsUpsert, ReservationID: 102}
		require.NoError(t, db.CreateOutboxTask(ctx, task2))

		nextRetry := time.Now().Add(time.Hour)
		require.NoError(t, db.UpdateOutboxTaskStatus(ctx, task2.ID, models.TaskStatusRetry, "temporary error", &nextRetry))

		tasks, err := db.GetPendingOutboxTasks(ctx, 10)
		require.NoError(t, err)
		for _, task := range tasks {
			assert.NotEqual(t, task2.ID, task.ID, "task with future retry should not be pending")
		}

		pastRetry := time.Now().Add(-time.Hour)
		require.NoError(t, db.UpdateOutboxTaskStatus(ctx, task2.ID, models.TaskStatusRetry, "temporary error", &pastRetry))

		tasks, err = db.GetPendingOutboxTasks(ctx, 10)
		require.NoError(t, err)
		found := false
		for _, task := range tasks {
			if task.ID == task2.ID {
				found = true
				assert.Equal(t, 2, task.RetryCount)
				require.NotNil(t, task.LastError)
				assert.Equal(t, "temporary error", *task.LastError)
			}
		}
		assert.True(t, found)
	})
}
