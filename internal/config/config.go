package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"transhot/internal/logger"
)

const (
	// DefaultModel is used for both translation and context generation unless overridden.
	DefaultModel = "gpt-5-nano"

	// DefaultTargetLanguage is the language translations are produced in.
	DefaultTargetLanguage = "Russian"
)

type Config struct {
	// OpenAI Configuration
	OpenAIAPIKey   string `yaml:"openai_api_key"`
	OpenAIBaseURL  string `yaml:"openai_base_url"`
	Model          string `yaml:"model"`
	ContextModel   string `yaml:"context_model"`
	ContextEnabled bool   `yaml:"context_enabled"`
	TargetLanguage string `yaml:"target_language"`

	// Google Vision Configuration
	VisionAPIKey      string `yaml:"vision_api_key"`
	VisionCredentials string `yaml:"vision_credentials"` // inline credentials document
	VisionEndpoint    string `yaml:"vision_endpoint"`
	VisionTransport   string `yaml:"vision_transport"` // rest, grpc

	// Storage Configuration
	StoreBackend  string `yaml:"store"` // sqlite, redis, memory
	DBPath        string `yaml:"db_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	ArchiveDir    string `yaml:"archive_dir"`

	// Logging Configuration
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	LogTimeFormat string `yaml:"log_time_format"`
	LogOutput     string `yaml:"log_output"`
}

// Load reads configuration from the environment. When TRANSHOT_CONFIG names a
// YAML file, its values are applied first and environment variables win.
func Load() (*Config, error) {
	config := &Config{
		Model:           DefaultModel,
		TargetLanguage:  DefaultTargetLanguage,
		VisionTransport: "rest",
		StoreBackend:    "sqlite",
		DBPath:          "transhot.db",
		RedisAddr:       "localhost:6379",
		LogLevel:        "info",
		LogFormat:       "console",
		LogTimeFormat:   "2006-01-02T15:04:05Z07:00",
		LogOutput:       "stderr",
	}

	if path := os.Getenv("TRANSHOT_CONFIG"); path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}

	config.OpenAIAPIKey = getEnv("OPENAI_API_KEY", config.OpenAIAPIKey)
	config.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", config.OpenAIBaseURL)
	config.Model = getEnv("TRANSHOT_MODEL", config.Model)
	config.ContextModel = getEnv("TRANSHOT_CONTEXT_MODEL", config.ContextModel)
	config.ContextEnabled = getBoolEnv("TRANSHOT_CONTEXT_ENABLED", config.ContextEnabled)
	config.TargetLanguage = getEnv("TRANSHOT_TARGET_LANGUAGE", config.TargetLanguage)
	config.VisionAPIKey = getEnv("GOOGLE_VISION_API_KEY", config.VisionAPIKey)
	config.VisionCredentials = getEnv("GOOGLE_CREDENTIALS", config.VisionCredentials)
	config.VisionEndpoint = getEnv("VISION_ENDPOINT", config.VisionEndpoint)
	config.VisionTransport = getEnv("VISION_TRANSPORT", config.VisionTransport)
	config.StoreBackend = getEnv("TRANSHOT_STORE", config.StoreBackend)
	config.DBPath = getEnv("TRANSHOT_DB_PATH", config.DBPath)
	config.RedisAddr = getEnv("REDIS_ADDR", config.RedisAddr)
	config.RedisPassword = getEnv("REDIS_PASSWORD", config.RedisPassword)
	config.RedisDB = getIntEnv("REDIS_DB", config.RedisDB)
	config.ArchiveDir = getEnv("TRANSHOT_ARCHIVE_DIR", config.ArchiveDir)
	config.LogLevel = getEnv("LOG_LEVEL", config.LogLevel)
	config.LogFormat = getEnv("LOG_FORMAT", config.LogFormat)
	config.LogTimeFormat = getEnv("LOG_TIME_FORMAT", config.LogTimeFormat)
	config.LogOutput = getEnv("LOG_OUTPUT", config.LogOutput)

	if config.VisionCredentials == "" {
		if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
			data, err := os.ReadFile(credFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read GOOGLE_APPLICATION_CREDENTIALS: %w", err)
			}
			config.VisionCredentials = string(data)
		}
	}

	if config.ContextModel == "" {
		config.ContextModel = config.Model
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("TRANSHOT_STORE must be sqlite, redis or memory, got %q", c.StoreBackend)
	}
	switch c.VisionTransport {
	case "rest", "grpc":
	default:
		return fmt.Errorf("VISION_TRANSPORT must be rest or grpc, got %q", c.VisionTransport)
	}
	if c.StoreBackend == "sqlite" && c.DBPath == "" {
		return fmt.Errorf("TRANSHOT_DB_PATH is required for the sqlite store")
	}
	if c.Model == "" {
		return fmt.Errorf("TRANSHOT_MODEL must not be empty")
	}
	return nil
}

// Settings returns the runtime defaults used when the store holds no override.
func (c *Config) Settings() Settings {
	return Settings{
		VisionAPIKey:      c.VisionAPIKey,
		VisionCredentials: []byte(c.VisionCredentials),
		ChatAPIKey:        c.OpenAIAPIKey,
		Model:             c.Model,
		ContextModel:      c.ContextModel,
		ContextEnabled:    c.ContextEnabled,
		TargetLanguage:    c.TargetLanguage,
	}
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
