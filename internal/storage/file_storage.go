// internal/storage/file_storage.go
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const stateFileName = "state.json"

// FileStore 以单个 JSON 文件保存键值，跨进程用文件锁互斥
type FileStore struct {
	BaseDir string

	path string
	lock *flock.Flock
	mu   sync.RWMutex

	// 文件未变化时直接使用缓存
	cache   map[string]string
	modTime time.Time
	size    int64
}

// NewFileStore 创建文件存储
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}
	path := filepath.Join(baseDir, stateFileName)
	return &FileStore{
		BaseDir: baseDir,
		path:    path,
		lock:    flock.New(path + ".lock"),
	}, nil
}

// Get 读取键值
func (fs *FileStore) Get(key string) (string, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.lock.RLock(); err != nil {
		return "", false, fmt.Errorf("获取文件锁失败: %w", err)
	}
	defer fs.lock.Unlock()

	data, err := fs.loadLocked()
	if err != nil {
		return "", false, err
	}
	v, ok := data[key]
	return v, ok, nil
}

// Set 写入键值
func (fs *FileStore) Set(key, value string) error {
	return fs.update(func(data map[string]string) bool {
		if old, ok := data[key]; ok && old == value {
			return false
		}
		data[key] = value
		return true
	})
}

// Delete 删除键，不存在时忽略
func (fs *FileStore) Delete(key string) error {
	return fs.update(func(data map[string]string) bool {
		if _, ok := data[key]; !ok {
			return false
		}
		delete(data, key)
		return true
	})
}

// Close 释放文件锁
func (fs *FileStore) Close() error {
	return fs.lock.Close()
}

func (fs *FileStore) update(fn func(map[string]string) bool) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.lock.Lock(); err != nil {
		return fmt.Errorf("获取文件锁失败: %w", err)
	}
	defer fs.lock.Unlock()

	data, err := fs.loadLocked()
	if err != nil {
		return err
	}
	next := make(map[string]string, len(data)+1)
	for k, v := range data {
		next[k] = v
	}
	if !fn(next) {
		return nil
	}
	return fs.saveLocked(next)
}

// loadLocked 文件的修改时间和大小未变时返回缓存
func (fs *FileStore) loadLocked() (map[string]string, error) {
	info, err := os.Stat(fs.path)
	if os.IsNotExist(err) {
		fs.cache = map[string]string{}
		fs.modTime, fs.size = time.Time{}, 0
		return fs.cache, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取文件信息失败: %w", err)
	}
	if fs.cache != nil && info.ModTime().Equal(fs.modTime) && info.Size() == fs.size {
		return fs.cache, nil
	}

	content, err := os.ReadFile(fs.path)
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}
	data := map[string]string{}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &data); err != nil {
			return nil, fmt.Errorf("解析JSON失败: %w", err)
		}
	}
	fs.cache, fs.modTime, fs.size = data, info.ModTime(), info.Size()
	return data, nil
}

// saveLocked 先写临时文件再改名，保证原子性
func (fs *FileStore) saveLocked(data map[string]string) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}

	tempPath := fs.path + ".tmp"
	if err := os.WriteFile(tempPath, content, 0644); err != nil {
		return fmt.Errorf("保存临时文件失败: %w", err)
	}
	if err := os.Rename(tempPath, fs.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("保存文件失败: %w", err)
	}

	fs.cache = data
	if info, err := os.Stat(fs.path); err == nil {
		fs.modTime, fs.size = info.ModTime(), info.Size()
	} else {
		fs.cache = nil
	}
	return nil
}
