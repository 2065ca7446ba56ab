package state

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buckethop/pkg/models"
)

func TestManagerLifecycle(t *testing.T) {
	m := NewManager()

	task := &Task{
		ID:        "t1",
		Status:    StatusRunning,
		SourceURL: "s3://src/",
		DestURL:   "s3://dst/",
		StartTime: time.Now(),
	}
	m.Save(task)

	got, err := m.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)

	// Running tasks cannot be deleted.
	assert.Error(t, m.Delete("t1"))

	m.Finish("t1", StatusFailed, &models.RunSummary{State: models.RunFailed}, errors.New("boom"))
	got, err = m.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
	require.NotNil(t, got.EndTime)

	require.NoError(t, m.Delete("t1"))
	_, err = m.Get("t1")
	assert.Error(t, err)
}

func TestManagerListNewestFirst(t *testing.T) {
	m := NewManager()
	base := time.Now()
	m.Save(&Task{ID: "old", Status: StatusCompleted, StartTime: base.Add(-time.Hour)})
	m.Save(&Task{ID: "new", Status: StatusRunning, StartTime: base})

	tasks := m.List()
	require.Len(t, tasks, 2)
	assert.Equal(t, "new", tasks[0].ID)
	assert.Equal(t, "old", tasks[1].ID)
}

func TestManagerCleanup(t *testing.T) {
	m := NewManager()
	old := time.Now().Add(-48 * time.Hour)
	m.Save(&Task{ID: "stale", Status: StatusCompleted, EndTime: &old})
	m.Save(&Task{ID: "live", Status: StatusRunning})

	removed := m.CleanupOlderThan(24 * time.Hour)
	assert.Equal(t, 1, removed)
	_, err := m.Get("stale")
	assert.Error(t, err)
	_, err = m.Get("live")
	assert.NoError(t, err)
}
