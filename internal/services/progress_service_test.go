package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupKeepsRunningTasks(t *testing.T) {
	s := NewProgressService()
	done := s.CreateTracker("done", 2)
	done.Complete("")
	failed := s.CreateTracker("failed", 1)
	failed.Fail("后端不可用")
	s.CreateTracker("running", 3)

	s.CleanupCompletedTasks(time.Hour)
	_, ok := s.GetTracker("done")
	assert.True(t, ok, "未超过保留时长")

	s.CleanupCompletedTasks(0)
	_, ok = s.GetTracker("done")
	assert.False(t, ok)
	_, ok = s.GetTracker("failed")
	assert.False(t, ok)
	_, ok = s.GetTracker("running")
	assert.True(t, ok)
}

func TestStartCleanupRunsUntilCancel(t *testing.T) {
	s := NewProgressService()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartCleanup(ctx, 5*time.Millisecond, 0)

	s.CreateTracker("auto-generate:42", 1).Complete("")
	assert.Eventually(t, func() bool {
		_, ok := s.GetTracker("auto-generate:42")
		return !ok
	}, time.Second, 5*time.Millisecond)

	cancel()
	time.Sleep(20 * time.Millisecond)
	s.CreateTracker("auto-generate:43", 1).Complete("")
	time.Sleep(20 * time.Millisecond)
	_, ok := s.GetTracker("auto-generate:43")
	require.True(t, ok, "取消后不再清理")
}
