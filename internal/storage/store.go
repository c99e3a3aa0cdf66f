// internal/storage/store.go
package storage

import (
	"fmt"
	"sync"
)

// 本地缓存的键
const (
	KeyCurrentProjectID = "currentProjectId"
	KeyTemplateID       = "templateId"
)

// 存储驱动
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// LocalStore 客户端本地键值存储
type LocalStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
	Close() error
}

// Open 按驱动打开存储
func Open(driver, dir string) (LocalStore, error) {
	switch driver {
	case "", DriverFile:
		return NewFileStore(dir)
	case DriverSQLite:
		return NewSQLiteStore(dir)
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", driver)
	}
}

// MemoryStore 进程内存储
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error { return nil }
