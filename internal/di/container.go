// internal/di/container.go
package di

import (
	"fmt"
	"sort"
	"sync"
)

// 服务名称
const (
	ServiceConfig    = "config"
	ServiceLogger    = "logger"
	ServiceNotifier  = "notifier"
	ServiceTransport = "transport"
	ServiceRealtime  = "realtime"
	ServiceStore     = "store"
	ServiceProgress  = "progress"
	ServiceEditor    = "editor"
	ServiceResources = "resources"
	ServiceMetrics   = "metrics"
)

// Container 是一个简单的依赖注入容器，每个会话一个实例
type Container struct {
	services map[string]interface{}
	mutex    sync.RWMutex
}

// NewContainer 创建一个新的依赖注入容器
func NewContainer() *Container {
	return &Container{
		services: make(map[string]interface{}),
	}
}

// Register 在容器中注册一个服务实例
func (c *Container) Register(name string, service interface{}) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.services[name] = service
}

// Get 从容器中获取一个服务实例
func (c *Container) Get(name string) interface{} {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.services[name]
}

// GetNames 获取所有已注册服务的名称（有序）
func (c *Container) GetNames() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	names := make([]string, 0, len(c.services))
	for name := range c.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve 按类型取出服务
func Resolve[T any](c *Container, name string) (T, error) {
	var zero T
	raw := c.Get(name)
	if raw == nil {
		return zero, fmt.Errorf("服务未注册: %s", name)
	}
	typed, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("服务类型不匹配: %s (%T)", name, raw)
	}
	return typed, nil
}

// MustResolve 与 Resolve 相同，失败时 panic，仅用于启动装配
func MustResolve[T any](c *Container, name string) T {
	v, err := Resolve[T](c, name)
	if err != nil {
		panic(err)
	}
	return v
}
