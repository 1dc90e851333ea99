package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Service  *svcConfig
	Metrics  *metricsConfig
	Journal  *journalConfig
	Engines  *engineConfig
	Advisory *advisoryConfig
}

type svcConfig struct {
	LogLevel string `envconfig:"CONVERSION_ASSISTANT_LOG_LEVEL" default:"info"`
	DataDir  string `envconfig:"CONVERSION_ASSISTANT_DATA_DIR" default:"/var/lib/conversion-assistant"`

	// MaxCorrectionAttempts caps both the retry-after-failure path and the
	// improve-warnings path. A single shared value; see DESIGN.md.
	MaxCorrectionAttempts int `envconfig:"CONVERSION_ASSISTANT_MAX_CORRECTION_ATTEMPTS" default:"5"`
}

type metricsConfig struct {
	// Address for the prometheus scrape endpoint. Empty disables it.
	Address string `envconfig:"CONVERSION_ASSISTANT_METRICS_ADDRESS" default:""`
}

type journalConfig struct {
	Path string `envconfig:"CONVERSION_ASSISTANT_JOURNAL_PATH" default:"conversion-assistant.db"`
}

type engineConfig struct {
	ConversionURL        string        `envconfig:"CONVERSION_ASSISTANT_CONVERSION_ENGINE_URL" default:"http://localhost:8081"`
	ValidationURL        string        `envconfig:"CONVERSION_ASSISTANT_VALIDATION_ENGINE_URL" default:"http://localhost:8082"`
	CallTimeout          time.Duration `envconfig:"CONVERSION_ASSISTANT_ENGINE_CALL_TIMEOUT" default:"10m"`
	ProgressPollInterval time.Duration `envconfig:"CONVERSION_ASSISTANT_PROGRESS_POLL_INTERVAL" default:"2s"`
	ObserverJoinTimeout  time.Duration `envconfig:"CONVERSION_ASSISTANT_OBSERVER_JOIN_TIMEOUT" default:"5s"`
}

type advisoryConfig struct {
	Enabled bool   `envconfig:"CONVERSION_ASSISTANT_ADVISORY_ENABLED" default:"true"`
	Model   string `envconfig:"CONVERSION_ASSISTANT_ADVISORY_MODEL" default:"gemini-2.0-flash"`
	APIKey  string `envconfig:"GEMINI_API_KEY" default:""`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}
