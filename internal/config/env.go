package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3200"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
	APIKey   string `envconfig:"API_KEY" required:"true"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".autopilot/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"autopilot/"`
	S3Region string `envconfig:"S3_REGION" default:"eu-central-1"`
}

type EngineEnv struct {
	// DefaultAutomationLevel applies to owners who have not persisted a
	// level of their own.
	DefaultAutomationLevel string        `envconfig:"DEFAULT_AUTOMATION_LEVEL" default:"moderate"`
	ExecutorURL            string        `envconfig:"EXECUTOR_URL" default:"http://localhost:3210/execute"`
	ExecutorTimeout        time.Duration `envconfig:"EXECUTOR_TIMEOUT" default:"120s"`
	RetryDelay             time.Duration `envconfig:"RETRY_DELAY" default:"3s"`
	CapabilityFile         string        `envconfig:"CAPABILITY_FILE"`
	EventBufferSize        int           `envconfig:"EVENT_BUFFER_SIZE" default:"256"`
}

type Env struct {
	BaseEnv
	StorageEnv
	EngineEnv
}

const namespace = "AUTOPILOT"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}
