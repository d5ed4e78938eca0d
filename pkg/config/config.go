package config

import (
	"time"
)

// SensitiveString holds secrets; fmt and loggers print it redacted.
type SensitiveString string

func (s SensitiveString) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// Value returns the underlying secret.
func (s SensitiveString) Value() string {
	return string(s)
}

// Config is the complete configuration for the agent. Values load from
// defaults, then environment variables, validated with struct tags.
type Config struct {
	Runtime RuntimeConfig `koanf:"runtime" validate:"required"`
	UpGrade UpGradeConfig `koanf:"upgrade" validate:"required"`
	LLM     LLMConfig     `koanf:"llm"     validate:"required"`
	Engine  EngineConfig  `koanf:"engine"  validate:"required"`
	Session SessionConfig `koanf:"session" validate:"required"`
	Server  ServerConfig  `koanf:"server"  validate:"required"`
}

// RuntimeConfig contains process-wide behavior configuration.
type RuntimeConfig struct {
	Environment string `koanf:"environment" validate:"oneof=development staging production" env:"RUNTIME_ENVIRONMENT"`
	LogLevel    string `koanf:"log_level"   validate:"oneof=debug info warn error"          env:"LOG_LEVEL"`
	LogJSON     bool   `koanf:"log_json"                                                    env:"LOG_JSON"`
	Debug       bool   `koanf:"debug"                                                       env:"DEBUG"`
}

// UpGradeConfig contains the experimentation platform API configuration.
type UpGradeConfig struct {
	BaseURL      string          `koanf:"base_url"       validate:"required,url" env:"UPGRADE_API_URL"`
	Timeout      time.Duration   `koanf:"timeout"        validate:"min=1s"       env:"UPGRADE_API_TIMEOUT"`
	AuthToken    SensitiveString `koanf:"auth_token"                             env:"UPGRADE_AUTH_TOKEN"    sensitive:"true"`
	RetryCount   int             `koanf:"retry_count"    validate:"min=0,max=10" env:"UPGRADE_RETRY_COUNT"`
	RetryWaitMin time.Duration   `koanf:"retry_wait_min"                         env:"UPGRADE_RETRY_WAIT_MIN"`
	RetryWaitMax time.Duration   `koanf:"retry_wait_max"                         env:"UPGRADE_RETRY_WAIT_MAX"`
}

// LLMConfig contains the language model provider configuration.
type LLMConfig struct {
	Provider      string          `koanf:"provider"       validate:"oneof=anthropic openai googleai ollama mock" env:"LLM_PROVIDER"`
	Model         string          `koanf:"model"          validate:"required"                                    env:"MODEL_NAME"`
	APIKey        SensitiveString `koanf:"api_key"                                                               env:"ANTHROPIC_API_KEY" sensitive:"true"`
	BaseURL       string          `koanf:"base_url"                                                              env:"LLM_BASE_URL"`
	Timeout       time.Duration   `koanf:"timeout"        validate:"min=1s"                                      env:"LLM_TIMEOUT"`
	RetryAttempts int             `koanf:"retry_attempts" validate:"min=0,max=10"                                env:"LLM_RETRY_ATTEMPTS"`
}

// EngineConfig contains orchestration engine thresholds.
type EngineConfig struct {
	ConfidenceThreshold float64       `koanf:"confidence_threshold" validate:"min=0,max=1" env:"ENGINE_CONFIDENCE_THRESHOLD"`
	MaxTaskSteps        int           `koanf:"max_task_steps"       validate:"min=1"       env:"ENGINE_MAX_TASK_STEPS"`
	HistoryWindow       int           `koanf:"history_window"       validate:"min=1"       env:"ENGINE_HISTORY_WINDOW"`
	MetadataTTL         time.Duration `koanf:"metadata_ttl"         validate:"min=1s"      env:"ENGINE_METADATA_TTL"`
}

// SessionConfig contains session store configuration.
type SessionConfig struct {
	Driver     string          `koanf:"driver"      validate:"oneof=memory redis postgres" env:"SESSION_STORE_DRIVER"`
	TTL        time.Duration   `koanf:"ttl"                                                env:"SESSION_TTL"`
	RedisURL   string          `koanf:"redis_url"                                          env:"SESSION_REDIS_URL"`
	RedisHost  string          `koanf:"redis_host"                                         env:"SESSION_REDIS_HOST"`
	RedisPort  string          `koanf:"redis_port"                                         env:"SESSION_REDIS_PORT"`
	RedisDB    int             `koanf:"redis_db"                                           env:"SESSION_REDIS_DB"`
	RedisPass  SensitiveString `koanf:"redis_password"                                     env:"SESSION_REDIS_PASSWORD" sensitive:"true"`
	ConnString SensitiveString `koanf:"conn_string"                                        env:"SESSION_PG_CONN_STRING" sensitive:"true"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host    string        `koanf:"host"    validate:"required"        env:"SERVER_HOST"`
	Port    int           `koanf:"port"    validate:"min=1,max=65535" env:"SERVER_PORT"`
	Timeout time.Duration `koanf:"timeout"                            env:"SERVER_TIMEOUT"`
}

// Default returns the built-in configuration, matching the platform's
// documented environment defaults.
func Default() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			Environment: "development",
			LogLevel:    "info",
		},
		UpGrade: UpGradeConfig{
			BaseURL:      "http://localhost:3030/api",
			Timeout:      30 * time.Second,
			RetryCount:   3,
			RetryWaitMin: 100 * time.Millisecond,
			RetryWaitMax: 2 * time.Second,
		},
		LLM: LLMConfig{
			Provider:      "anthropic",
			Model:         "claude-sonnet-4-20250514",
			Timeout:       60 * time.Second,
			RetryAttempts: 3,
		},
		Engine: EngineConfig{
			ConfidenceThreshold: 0.7,
			MaxTaskSteps:        10,
			HistoryWindow:       10,
			MetadataTTL:         5 * time.Minute,
		},
		Session: SessionConfig{
			Driver: "memory",
			TTL:    24 * time.Hour,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    5001,
			Timeout: 2 * time.Minute,
		},
	}
}
