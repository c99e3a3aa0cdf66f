// internal/services/progress_service.go
package services

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// 任务状态
const (
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

// ProgressUpdate 表示进度更新
type ProgressUpdate struct {
	TaskID        string `json:"taskId"`
	Progress      int    `json:"progress"` // 进度百分比 (0-100)
	Message       string `json:"message"`
	Status        string `json:"status"`
	Index         int    `json:"index"`
	Total         int    `json:"total"`
	ChapterNumber string `json:"chapterNumber,omitempty"`
}

// ProgressTracker 跟踪一次批量生成的进度
type ProgressTracker struct {
	TaskID        string
	Progress      int
	Message       string
	Status        string
	Index         int
	Total         int
	ChapterNumber string
	StartTime     time.Time
	UpdateTime    time.Time
	Subscribers   map[chan ProgressUpdate]bool
	Done          chan struct{}
	mutex         sync.Mutex
}

// 已结束任务的清理周期与保留时长
const (
	ProgressCleanupInterval = 5 * time.Minute
	ProgressRetention       = 30 * time.Minute
)

// ProgressService 管理所有进度跟踪器
type ProgressService struct {
	trackers map[string]*ProgressTracker
	mutex    sync.RWMutex
}

// NewProgressService 创建进度服务实例
func NewProgressService() *ProgressService {
	return &ProgressService{
		trackers: make(map[string]*ProgressTracker),
	}
}

// AutoGenerateTaskID 项目批量生成任务的 ID
func AutoGenerateTaskID(projectID string) string {
	return "auto-generate:" + projectID
}

// CreateTracker 创建新的进度跟踪器，同 ID 的旧任务已结束时替换
func (s *ProgressService) CreateTracker(taskID string, total int) *ProgressTracker {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if tracker, exists := s.trackers[taskID]; exists && !tracker.finished() {
		return tracker
	}

	now := time.Now()
	tracker := &ProgressTracker{
		TaskID:      taskID,
		Message:     "任务初始化中...",
		Status:      TaskRunning,
		Total:       total,
		StartTime:   now,
		UpdateTime:  now,
		Subscribers: make(map[chan ProgressUpdate]bool),
		Done:        make(chan struct{}),
	}
	s.trackers[taskID] = tracker
	return tracker
}

// GetTracker 获取进度跟踪器
func (s *ProgressService) GetTracker(taskID string) (*ProgressTracker, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	tracker, exists := s.trackers[taskID]
	return tracker, exists
}

func (t *ProgressTracker) finished() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.Status != TaskRunning
}

func (t *ProgressTracker) snapshotLocked() ProgressUpdate {
	return ProgressUpdate{
		TaskID:        t.TaskID,
		Progress:      t.Progress,
		Message:       t.Message,
		Status:        t.Status,
		Index:         t.Index,
		Total:         t.Total,
		ChapterNumber: t.ChapterNumber,
	}
}

// broadcastLocked 非阻塞发送，通道已满则跳过
func (t *ProgressTracker) broadcastLocked() {
	update := t.snapshotLocked()
	for subscriber := range t.Subscribers {
		select {
		case subscriber <- update:
		default:
		}
	}
}

// Snapshot 当前状态
func (t *ProgressTracker) Snapshot() ProgressUpdate {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.snapshotLocked()
}

// UpdateProgress 更新进度，进度值只增不减
func (t *ProgressTracker) UpdateProgress(index int, chapterNumber string, progress int, message string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.Status != TaskRunning {
		return
	}

	if progress > t.Progress {
		t.Progress = progress
	}
	t.Index = index
	t.ChapterNumber = chapterNumber
	if message != "" {
		t.Message = message
	}
	t.UpdateTime = time.Now()
	t.broadcastLocked()
}

// Complete 标记任务完成
func (t *ProgressTracker) Complete(message string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.Status != TaskRunning {
		return
	}

	t.Progress = 100
	if message != "" {
		t.Message = message
	} else {
		t.Message = "任务已完成"
	}
	t.Status = TaskCompleted
	t.UpdateTime = time.Now()
	t.broadcastLocked()
	close(t.Done)
}

// Fail 标记任务失败
func (t *ProgressTracker) Fail(errorMsg string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.Status != TaskRunning {
		return
	}

	t.Message = fmt.Sprintf("任务失败: %s", errorMsg)
	t.Status = TaskFailed
	t.UpdateTime = time.Now()
	t.broadcastLocked()
	close(t.Done)
}

// Subscribe 订阅进度更新，立即收到当前状态
func (t *ProgressTracker) Subscribe() chan ProgressUpdate {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	subscriber := make(chan ProgressUpdate, 10)
	t.Subscribers[subscriber] = true
	subscriber <- t.snapshotLocked()
	return subscriber
}

// Unsubscribe 取消订阅
func (t *ProgressTracker) Unsubscribe(subscriber chan ProgressUpdate) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, ok := t.Subscribers[subscriber]; !ok {
		return
	}
	delete(t.Subscribers, subscriber)
	close(subscriber)
}

// CleanupCompletedTasks 清理已结束且超过 maxAge 的任务
func (s *ProgressService) CleanupCompletedTasks(maxAge time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := time.Now()
	for id, tracker := range s.trackers {
		tracker.mutex.Lock()
		isCompleted := tracker.Status == TaskCompleted || tracker.Status == TaskFailed
		isOld := now.Sub(tracker.UpdateTime) > maxAge
		tracker.mutex.Unlock()

		if isCompleted && isOld {
			delete(s.trackers, id)
		}
	}
}

// StartCleanup 定期清理已结束的任务，ctx 取消后停止
func (s *ProgressService) StartCleanup(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CleanupCompletedTasks(maxAge)
			}
		}
	}()
}
