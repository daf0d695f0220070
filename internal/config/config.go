// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

// AppConfig 包含应用程序的所有配置
type AppConfig struct {
	// 基础配置
	Port      string `json:"port"`
	DataDir   string `json:"data_dir"`
	DBPath    string `json:"db_path"`
	LogDir    string `json:"log_dir"`
	DebugMode bool   `json:"debug_mode"`

	// 回合计费配置
	TurnCost int64 `json:"turn_cost"` // balance units debited per turn

	// LLM相关配置
	LLMProvider string            `json:"llm_provider"`
	LLMConfig   map[string]string `json:"llm_config"`
	LLMTimeout  time.Duration     `json:"-"`

	// 缓存配置
	RedisAddr string `json:"redis_addr,omitempty"`

	// 认证配置
	TokenSecret string `json:"-"`
}

// Load 从环境变量加载配置
func Load() (*AppConfig, error) {
	// 尝试加载.env文件（可选）
	godotenv.Load()

	cfg := &AppConfig{
		Port:        getEnv("PORT", "8080"),
		DataDir:     getEnvPath("DATA_DIR", "data"),
		LogDir:      getEnvPath("LOG_DIR", "logs"),
		DebugMode:   getEnvBool("DEBUG_MODE", true),
		TurnCost:    getEnvInt64("TURN_COST", 1),
		LLMProvider: getEnv("LLM_PROVIDER", "openai"),
		LLMConfig: map[string]string{
			"api_key": getEnv("LLM_API_KEY", ""),
		},
		LLMTimeout:  time.Duration(getEnvInt64("LLM_TIMEOUT_SECONDS", 20)) * time.Second,
		RedisAddr:   getEnv("REDIS_ADDR", ""),
		TokenSecret: getEnv("TOKEN_SECRET", ""),
	}
	cfg.DBPath = getEnv("DB_PATH", filepath.Join(cfg.DataDir, "engine.db"))

	if model := getEnv("LLM_MODEL", ""); model != "" {
		cfg.LLMConfig["default_model"] = model
	}

	if cfg.LLMConfig["api_key"] == "" {
		// 只记录警告，不返回错误
		log.Println("warning: LLM_API_KEY is not set; turns will use deterministic fallback beats")
	}

	if cfg.TurnCost < 1 {
		return nil, fmt.Errorf("TURN_COST must be at least 1, got %d", cfg.TurnCost)
	}

	return cfg, nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径，如果不存在则返回默认值
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	// 确保目录存在
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			fmt.Printf("warning: failed to create directory %s: %v\n", path, err)
		}
	}

	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt64 获取整数类型环境变量
func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return n
}

// InitConfig 初始化配置管理器
// Persisted settings in data/config.json overlay the environment so
// the LLM provider can be reconfigured at runtime without a restart.
func InitConfig(cfg *AppConfig) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	configFile = filepath.Join(cfg.DataDir, "config.json")

	if data, err := os.ReadFile(configFile); err == nil {
		var persisted AppConfig
		if err := json.Unmarshal(data, &persisted); err != nil {
			return fmt.Errorf("parse %s: %w", configFile, err)
		}
		if persisted.LLMProvider != "" {
			cfg.LLMProvider = persisted.LLMProvider
		}
		for k, v := range persisted.LLMConfig {
			if v != "" {
				cfg.LLMConfig[k] = v
			}
		}
		if persisted.TurnCost > 0 {
			cfg.TurnCost = persisted.TurnCost
		}
	}

	currentConfig = cfg
	return nil
}

// GetCurrentConfig 获取当前配置
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return currentConfig
}

// UpdateLLMConfig 更新并持久化LLM配置
func UpdateLLMConfig(provider string, llmConfig map[string]string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("configuration not initialized")
	}

	currentConfig.LLMProvider = provider
	for k, v := range llmConfig {
		currentConfig.LLMConfig[k] = v
	}

	data, err := json.MarshalIndent(currentConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize config: %w", err)
	}
	if err := os.WriteFile(configFile, data, 0644); err != nil {
		return fmt.Errorf("persist config: %w", err)
	}
	return nil
}
