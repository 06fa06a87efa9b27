package orchestrator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinbench/recoeval/internal/models"
)

func TestRegistrySnapshotUnknownID(t *testing.T) {
	r := newRegistry(time.Hour, 10)
	_, err := r.snapshot("nope")
	assert.True(t, errors.Is(err, models.ErrTaskNotFound))
}

func TestRegistryUpdateIgnoredAfterTerminal(t *testing.T) {
	r := newRegistry(time.Hour, 10)
	entry := r.create(nil)
	id := entry.task.ID

	r.update(id, func(task *models.Task) {
		task.Status = models.TaskSuccess
		task.ProgressPercentage = 100
	})
	// A late failure must not overwrite the success.
	r.update(id, func(task *models.Task) {
		task.Status = models.TaskFailure
		task.Error = "timeout"
	})

	task, err := r.snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskSuccess, task.Status)
	assert.Empty(t, task.Error)
}

func TestRegistryDoneChannelClosesOnTerminal(t *testing.T) {
	r := newRegistry(time.Hour, 10)
	entry := r.create(nil)

	done, err := r.doneChan(entry.task.ID)
	require.NoError(t, err)
	select {
	case <-done:
		t.Fatal("done channel closed before terminal state")
	default:
	}

	r.update(entry.task.ID, func(task *models.Task) { task.Status = models.TaskFailure })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("done channel not closed after terminal state")
	}
}

func TestRegistryEvictsByRetentionWindow(t *testing.T) {
	r := newRegistry(time.Hour, 10)
	now := time.Now()
	r.now = func() time.Time { return now }

	entry := r.create(nil)
	id := entry.task.ID
	r.update(id, func(task *models.Task) { task.Status = models.TaskSuccess })

	now = now.Add(30 * time.Minute)
	_, err := r.snapshot(id)
	require.NoError(t, err)

	now = now.Add(31 * time.Minute)
	_, err = r.snapshot(id)
	assert.True(t, errors.Is(err, models.ErrTaskNotFound))
}

func TestRegistryEvictsByCountBound(t *testing.T) {
	r := newRegistry(time.Hour, 2)
	now := time.Now()
	r.now = func() time.Time { return now }

	var ids []string
	for i := 0; i < 3; i++ {
		entry := r.create(nil)
		ids = append(ids, entry.task.ID)
		r.update(entry.task.ID, func(task *models.Task) { task.Status = models.TaskSuccess })
		now = now.Add(time.Minute)
	}

	// Creating a fourth task trims the oldest terminal entry.
	r.create(nil)
	_, err := r.snapshot(ids[0])
	assert.True(t, errors.Is(err, models.ErrTaskNotFound))
	_, err = r.snapshot(ids[2])
	assert.NoError(t, err)
}

func TestRegistryNeverEvictsRunningTasks(t *testing.T) {
	r := newRegistry(time.Hour, 1)
	now := time.Now()
	r.now = func() time.Time { return now }

	running := r.create(nil)
	now = now.Add(24 * time.Hour)
	r.create(nil)

	_, err := r.snapshot(running.task.ID)
	assert.NoError(t, err)
}

func TestRegistryMarkCancelled(t *testing.T) {
	r := newRegistry(time.Hour, 10)
	fired := false
	entry := r.create(func() { fired = true })
	id := entry.task.ID

	require.NoError(t, r.markCancelled(id))
	assert.True(t, fired)
	assert.True(t, r.wasCancelled(id))

	assert.True(t, errors.Is(r.markCancelled("nope"), models.ErrTaskNotFound))
}
