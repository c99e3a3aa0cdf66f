// internal/utils/logger.go
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogOptions 日志初始化选项
type LogOptions struct {
	Mode  string // production | development
	Level string // debug | info | warn | error
	File  string // 可选，追加输出的日志文件
}

// Logger 结构化日志，底层为 zap
type Logger struct {
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

var (
	globalLogger *Logger
	loggerMu     sync.Mutex
)

// GetLogger 返回进程级日志实例
func GetLogger() *Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if globalLogger == nil {
		l, err := NewLogger(LogOptions{Mode: "development", Level: "info"})
		if err != nil {
			l = NewNopLogger()
		}
		globalLogger = l
	}
	return globalLogger
}

// InitLogger 按配置重建进程级日志
func InitLogger(opts LogOptions) (*Logger, error) {
	l, err := NewLogger(opts)
	if err != nil {
		return nil, err
	}
	loggerMu.Lock()
	old := globalLogger
	globalLogger = l
	loggerMu.Unlock()
	if old != nil {
		old.Sync()
	}
	return l, nil
}

// NewLogger 创建独立的日志实例
func NewLogger(opts LogOptions) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(opts.Mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(opts.Level))

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, fmt.Errorf("创建日志目录失败: %w", err)
		}
		cfg.OutputPaths = append(cfg.OutputPaths, opts.File)
	}

	zl, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return &Logger{sugar: zl.Sugar(), level: cfg.Level}, nil
}

// NewNopLogger 不输出任何内容，测试使用
func NewNopLogger() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar(), level: zap.NewAtomicLevel()}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// SetLogLevel 动态调整日志级别
func (l *Logger) SetLogLevel(level string) {
	l.level.SetLevel(parseLevel(level))
}

// Sync 刷新缓冲
func (l *Logger) Sync() {
	_ = l.sugar.Sync()
}

// With 返回附带固定字段的子日志
func (l *Logger) With(fields map[string]interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(flatten(fields)...), level: l.level}
}

// flatten 把字段表展开为有序的键值对
func flatten(fields map[string]interface{}) []interface{} {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	kv := make([]interface{}, 0, len(fields)*2)
	for _, k := range keys {
		kv = append(kv, k, fields[k])
	}
	return kv
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields map[string]interface{}) {
	l.sugar.Debugw(message, flatten(fields)...)
}

// Info logs an info message
func (l *Logger) Info(message string, fields map[string]interface{}) {
	l.sugar.Infow(message, flatten(fields)...)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields map[string]interface{}) {
	l.sugar.Warnw(message, flatten(fields)...)
}

// Error logs an error message
func (l *Logger) Error(message string, fields map[string]interface{}) {
	l.sugar.Errorw(message, flatten(fields)...)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// OrDefault 为空时返回进程级日志
func OrDefault(l *Logger) *Logger {
	if l == nil {
		return GetLogger()
	}
	return l
}
