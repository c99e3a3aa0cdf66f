// internal/utils/metrics.go
package utils

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector 进程内指标：计数器、仪表、直方图
type MetricsCollector struct {
	counters   map[string]*int64
	gauges     map[string]*int64
	histograms map[string]*Histogram

	mu sync.RWMutex
}

// Histogram 只记录 count/sum/min/max
type Histogram struct {
	count int64
	sum   int64
	min   int64
	max   int64
	mu    sync.Mutex
}

// NewMetricsCollector 创建指标收集器
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*int64),
		gauges:     make(map[string]*int64),
		histograms: make(map[string]*Histogram),
	}
}

// slot 读锁快速路径，不存在时加写锁并二次检查
func (m *MetricsCollector) slot(table map[string]*int64, name string) *int64 {
	m.mu.RLock()
	v, ok := table[name]
	m.mu.RUnlock()
	if ok {
		return v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok = table[name]; !ok {
		v = new(int64)
		table[name] = v
	}
	return v
}

// IncrementCounter 计数器加一
func (m *MetricsCollector) IncrementCounter(name string) {
	atomic.AddInt64(m.slot(m.counters, name), 1)
}

// SetGauge 设置仪表值
func (m *MetricsCollector) SetGauge(name string, value int64) {
	atomic.StoreInt64(m.slot(m.gauges, name), value)
}

// GetGauge 读取仪表值
func (m *MetricsCollector) GetGauge(name string) int64 {
	m.mu.RLock()
	v, ok := m.gauges[name]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(v)
}

// GetCounterValue 读取计数器
func (m *MetricsCollector) GetCounterValue(name string) int64 {
	m.mu.RLock()
	v, ok := m.counters[name]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(v)
}

// RecordHistogram 记录一个直方图样本
func (m *MetricsCollector) RecordHistogram(name string, value int64) {
	m.mu.RLock()
	h, ok := m.histograms[name]
	m.mu.RUnlock()

	if !ok {
		m.mu.Lock()
		if h, ok = m.histograms[name]; !ok {
			h = &Histogram{min: value, max: value}
			m.histograms[name] = h
		}
		m.mu.Unlock()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	if value < h.min {
		h.min = value
	}
	if value > h.max {
		h.max = value
	}
}

// GetMetrics 返回全部指标快照
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for name, v := range m.counters {
		counters[name] = atomic.LoadInt64(v)
	}
	gauges := make(map[string]int64, len(m.gauges))
	for name, v := range m.gauges {
		gauges[name] = atomic.LoadInt64(v)
	}
	histograms := make(map[string]map[string]int64, len(m.histograms))
	for name, h := range m.histograms {
		h.mu.Lock()
		histograms[name] = map[string]int64{
			"count": h.count,
			"sum":   h.sum,
			"min":   h.min,
			"max":   h.max,
		}
		h.mu.Unlock()
	}

	return map[string]interface{}{
		"counters":   counters,
		"gauges":     gauges,
		"histograms": histograms,
	}
}

// RequestMetrics 后端请求指标
type RequestMetrics struct {
	metrics *MetricsCollector
	logger  *Logger
}

// NewRequestMetrics 创建请求指标记录器
func NewRequestMetrics(collector *MetricsCollector, logger *Logger) *RequestMetrics {
	if collector == nil {
		collector = NewMetricsCollector()
	}
	return &RequestMetrics{metrics: collector, logger: OrDefault(logger)}
}

// Collector 返回底层收集器
func (rm *RequestMetrics) Collector() *MetricsCollector {
	return rm.metrics
}

// RecordRequest 记录一次后端请求，status 为 0 表示网络故障
func (rm *RequestMetrics) RecordRequest(method, path string, status int, duration time.Duration) {
	rm.metrics.IncrementCounter("requests_total")
	rm.metrics.IncrementCounter("requests_" + method)
	rm.metrics.RecordHistogram("request_duration_ms", duration.Milliseconds())

	if status == 0 {
		rm.metrics.IncrementCounter("requests_network_error")
	} else {
		rm.metrics.IncrementCounter("responses_" + strconv.Itoa(status/100) + "xx")
	}

	rm.logger.Debug("后端请求完成", map[string]interface{}{
		"method":      method,
		"path":        path,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	})
}

// RecordGeneration 记录一次章节生成结果
func (rm *RequestMetrics) RecordGeneration(ok bool) {
	if ok {
		rm.metrics.IncrementCounter("chapters_generated")
		return
	}
	rm.metrics.IncrementCounter("chapters_failed")
}
