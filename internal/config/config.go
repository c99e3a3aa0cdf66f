// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 存储驱动
const (
	StoreDriverFile   = "file"
	StoreDriverSQLite = "sqlite"
)

// Config 客户端配置
type Config struct {
	// 后端
	APIBaseURL     string        `yaml:"api_base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// 实时通道
	WSURL             string        `yaml:"ws_url"`
	SockJSPath        bool          `yaml:"sockjs_path"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	HeartbeatIncoming time.Duration `yaml:"heartbeat_incoming"`
	HeartbeatOutgoing time.Duration `yaml:"heartbeat_outgoing"`

	// 批量生成时章节之间的固定间隔
	GenerationDelay time.Duration `yaml:"generation_delay"`

	// 本地数据
	DataDir     string `yaml:"data_dir"`
	DownloadDir string `yaml:"download_dir"`
	StoreDriver string `yaml:"store_driver"`

	// 日志
	LogLevel string `yaml:"log_level"`
	LogMode  string `yaml:"log_mode"`
	LogFile  string `yaml:"log_file"`

	// 本地控制台
	Port      string `yaml:"port"`
	DebugMode bool   `yaml:"debug_mode"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		APIBaseURL:        "http://localhost:5000/api",
		RequestTimeout:    15 * time.Second,
		WSURL:             "ws://localhost:3001",
		SockJSPath:        true,
		ReconnectDelay:    5 * time.Second,
		HeartbeatIncoming: 4 * time.Second,
		HeartbeatOutgoing: 4 * time.Second,
		GenerationDelay:   time.Second,
		DataDir:           defaultDataDir(),
		DownloadDir:       ".",
		StoreDriver:       StoreDriverFile,
		LogLevel:          "info",
		LogMode:           "development",
		Port:              "8088",
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "data"
	}
	return filepath.Join(home, ".wordllm")
}

// Load 依次应用默认值、YAML 文件、.env 与环境变量
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("解析配置文件失败: %w", err)
			}
		case os.IsNotExist(err):
			// 配置文件可选
		default:
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	// 尝试加载.env文件（可选）
	_ = godotenv.Load()

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides 环境变量覆盖
func (c *Config) applyEnvOverrides() {
	c.APIBaseURL = getEnv("WORDLLM_API_URL", c.APIBaseURL)
	c.WSURL = getEnv("WORDLLM_WS_URL", c.WSURL)
	c.RequestTimeout = getEnvDuration("WORDLLM_TIMEOUT", c.RequestTimeout)
	c.ReconnectDelay = getEnvDuration("WORDLLM_RECONNECT_DELAY", c.ReconnectDelay)
	c.GenerationDelay = getEnvDuration("WORDLLM_GENERATION_DELAY", c.GenerationDelay)
	c.DataDir = getEnv("WORDLLM_DATA_DIR", c.DataDir)
	c.DownloadDir = getEnv("WORDLLM_DOWNLOAD_DIR", c.DownloadDir)
	c.StoreDriver = getEnv("WORDLLM_STORE_DRIVER", c.StoreDriver)
	c.LogLevel = getEnv("WORDLLM_LOG_LEVEL", c.LogLevel)
	c.LogMode = getEnv("WORDLLM_LOG_MODE", c.LogMode)
	c.LogFile = getEnv("WORDLLM_LOG_FILE", c.LogFile)
	c.Port = getEnv("PORT", c.Port)
	c.DebugMode = getEnvBool("DEBUG_MODE", c.DebugMode)
}

// Validate 校验配置
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("后端地址不能为空")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("请求超时必须为正数: %s", c.RequestTimeout)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("重连间隔必须为正数: %s", c.ReconnectDelay)
	}
	if c.GenerationDelay < 0 {
		return fmt.Errorf("生成间隔不能为负数: %s", c.GenerationDelay)
	}
	switch c.StoreDriver {
	case StoreDriverFile, StoreDriverSQLite:
	default:
		return fmt.Errorf("未知的存储驱动: %s", c.StoreDriver)
	}
	return nil
}

// Save 保存配置为 YAML
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// RealtimeEndpoint 实际拨号地址，SockJS 模式下使用原生 websocket 路径
func (c *Config) RealtimeEndpoint() string {
	base := strings.TrimRight(c.WSURL, "/")
	if c.SockJSPath {
		return base + "/ws/websocket"
	}
	return base
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

// getEnvDuration 支持 "15s" 形式，也接受纯数字毫秒
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	fmt.Printf("警告: 无法解析 %s=%q，使用默认值 %s\n", key, value, defaultValue)
	return defaultValue
}
