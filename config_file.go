package apifetch

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// FileConfig is the YAML form of the common client options. Values may
// reference environment variables as ${NAME}.
type FileConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`

	Auth struct {
		Bearer   string `yaml:"bearer"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
	} `yaml:"auth"`

	RateLimit struct {
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limit"`

	CircuitBreaker struct {
		Enabled          bool          `yaml:"enabled"`
		Name             string        `yaml:"name"`
		FailureThreshold int           `yaml:"failure_threshold"`
		RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
		SuccessThreshold int           `yaml:"success_threshold"`
	} `yaml:"circuit_breaker"`

	Deduplicate bool `yaml:"deduplicate"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// LoadFileConfig reads and parses the YAML file at path.
func LoadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseFileConfig(data)
}

// ParseFileConfig parses YAML after expanding environment variables.
func ParseFileConfig(data []byte) (*FileConfig, error) {
	var cfg FileConfig
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	return &cfg, nil
}

// Options converts the file into client options. Logs go to w; debug logging
// is enabled when the level is debug.
func (fc *FileConfig) Options(w io.Writer) []Option {
	var opts []Option

	if fc.BaseURL != "" {
		opts = append(opts, WithBaseURL(fc.BaseURL))
	}
	if fc.Timeout > 0 {
		opts = append(opts, WithTimeout(fc.Timeout))
	}

	switch {
	case fc.Auth.Bearer != "":
		opts = append(opts, WithAuthorization(StaticAuthorization(Bearer(fc.Auth.Bearer))))
	case fc.Auth.User != "":
		opts = append(opts, WithAuthorization(StaticAuthorization(Basic(fc.Auth.User, fc.Auth.Password))))
	}

	if fc.RateLimit.RequestsPerSecond > 0 {
		opts = append(opts, WithRateLimit(fc.RateLimit.RequestsPerSecond, fc.RateLimit.Burst))
	}

	if cb := fc.CircuitBreaker; cb.Enabled {
		opts = append(opts, WithCircuitBreaker(CircuitBreakerConfig{
			Name:             cb.Name,
			FailureThreshold: cb.FailureThreshold,
			RecoveryTimeout:  cb.RecoveryTimeout,
			SuccessThreshold: cb.SuccessThreshold,
		}))
	}

	if fc.Deduplicate {
		opts = append(opts, WithDeduplication())
	}

	if w != nil {
		opts = append(opts, WithLogger(NewSlogLogger(NewLogger(w, fc.Logging.Level, fc.Logging.Format))))
		if ParseLevel(fc.Logging.Level) == slog.LevelDebug {
			opts = append(opts, WithDebug())
		}
	}

	return opts
}
