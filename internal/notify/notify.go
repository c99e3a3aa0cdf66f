// internal/notify/notify.go
package notify

import (
	"sync"
	"time"

	"github.com/gaochaoqwe/wordllm/internal/utils"
)

// Level 提示级别
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification 面向用户的提示
type Notification struct {
	Level     Level     `json:"level"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier 用户提示出口
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc 函数适配
type NotifierFunc func(n Notification)

// Notify 实现 Notifier
func (f NotifierFunc) Notify(n Notification) { f(n) }

// Info 发送普通提示
func Info(n Notifier, message string) { send(n, LevelInfo, "", message) }

// Success 发送成功提示
func Success(n Notifier, message string) { send(n, LevelSuccess, "", message) }

// Warn 发送警告
func Warn(n Notifier, code, message string) { send(n, LevelWarning, code, message) }

// Error 发送错误提示
func Error(n Notifier, code, message string) { send(n, LevelError, code, message) }

func send(n Notifier, level Level, code, message string) {
	if n == nil {
		return
	}
	n.Notify(Notification{Level: level, Code: code, Message: message, Timestamp: time.Now()})
}

// LogNotifier 写入日志的提示器
type LogNotifier struct {
	logger *utils.Logger
}

// NewLogNotifier 创建日志提示器
func NewLogNotifier(logger *utils.Logger) *LogNotifier {
	return &LogNotifier{logger: utils.OrDefault(logger)}
}

// Notify 实现 Notifier
func (l *LogNotifier) Notify(n Notification) {
	fields := map[string]interface{}{"code": n.Code, "level": string(n.Level)}
	switch n.Level {
	case LevelError:
		l.logger.Error(n.Message, fields)
	case LevelWarning:
		l.logger.Warn(n.Message, fields)
	default:
		l.logger.Info(n.Message, fields)
	}
}

// Broadcaster 扇出到多个提示器，可动态增删
type Broadcaster struct {
	mu    sync.RWMutex
	sinks map[int]Notifier
	next  int
}

// NewBroadcaster 创建扇出提示器
func NewBroadcaster(sinks ...Notifier) *Broadcaster {
	b := &Broadcaster{sinks: make(map[int]Notifier)}
	for _, s := range sinks {
		b.Add(s)
	}
	return b
}

// Add 注册提示器，返回用于移除的句柄
func (b *Broadcaster) Add(n Notifier) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.sinks[id] = n
	return id
}

// Remove 移除提示器
func (b *Broadcaster) Remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sinks, id)
}

// Notify 实现 Notifier
func (b *Broadcaster) Notify(n Notification) {
	b.mu.RLock()
	sinks := make([]Notifier, 0, len(b.sinks))
	for _, s := range b.sinks {
		sinks = append(sinks, s)
	}
	b.mu.RUnlock()

	for _, s := range sinks {
		s.Notify(n)
	}
}

// Recorder 记录所有提示，测试与控制台回放使用
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

// NewRecorder 创建记录器
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Notify 实现 Notifier
func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// All 返回全部提示的副本
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Count 统计指定级别和代码的提示数，code 为空时只按级别
func (r *Recorder) Count(level Level, code string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, it := range r.items {
		if it.Level == level && (code == "" || it.Code == code) {
			n++
		}
	}
	return n
}

// Reset 清空
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}
