// internal/services/generation_metrics.go
package services

import (
	"sync"
	"time"
)

// GenerationMetrics 正文生成的性能指标
type GenerationMetrics struct {
	mutex                sync.RWMutex
	totalGenerations     int64
	failedGenerations    int64
	skippedChapters      int64
	averageGenerateTime  time.Duration
	concurrentOperations int32
	lastMetricsReset     time.Time
}

// RecordGeneration 记录一次生成
func (m *GenerationMetrics) RecordGeneration(duration time.Duration, ok bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.totalGenerations++
	if !ok {
		m.failedGenerations++
	}
	m.averageGenerateTime = (m.averageGenerateTime*time.Duration(m.totalGenerations-1) + duration) / time.Duration(m.totalGenerations)
}

// RecordSkip 批量生成跳过已有内容的章节
func (m *GenerationMetrics) RecordSkip() {
	m.mutex.Lock()
	m.skippedChapters++
	m.mutex.Unlock()
}

func (m *GenerationMetrics) begin() {
	m.mutex.Lock()
	m.concurrentOperations++
	m.mutex.Unlock()
}

func (m *GenerationMetrics) end() {
	m.mutex.Lock()
	m.concurrentOperations--
	m.mutex.Unlock()
}

// GetMetrics 获取性能指标
func (m *GenerationMetrics) GetMetrics() map[string]interface{} {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return map[string]interface{}{
		"total_generations":     m.totalGenerations,
		"failed_generations":    m.failedGenerations,
		"skipped_chapters":      m.skippedChapters,
		"average_generate_time": m.averageGenerateTime.Milliseconds(),
		"concurrent_operations": m.concurrentOperations,
		"last_reset":            m.lastMetricsReset,
	}
}

// ResetMetrics 重置性能指标
func (m *GenerationMetrics) ResetMetrics() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.totalGenerations = 0
	m.failedGenerations = 0
	m.skippedChapters = 0
	m.averageGenerateTime = 0
	m.concurrentOperations = 0
	m.lastMetricsReset = time.Now()
}
