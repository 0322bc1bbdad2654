// Package config loads the application configuration from a YAML file and
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Browser BrowserConfig `mapstructure:"browser"`
	Monitor MonitorConfig `mapstructure:"monitor"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type BrowserConfig struct {
	Headless            bool          `mapstructure:"headless"`
	InstallOnStart      bool          `mapstructure:"install_on_start"`
	UserAgent           string        `mapstructure:"user_agent"`
	BlockedResources    []string      `mapstructure:"blocked_resources"`
	HealthCheckTimeout  time.Duration `mapstructure:"health_check_timeout"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
}

type MonitorConfig struct {
	MaxAttempts          int           `mapstructure:"max_attempts"`
	BaseDelay            time.Duration `mapstructure:"base_delay"`
	FallbackCandidates   int           `mapstructure:"fallback_candidates"`
	StepTimeout          time.Duration `mapstructure:"step_timeout"`
	SelectTimeout        time.Duration `mapstructure:"select_timeout"`
	NavigationsPerMinute int           `mapstructure:"navigations_per_minute"`
	PeakSchedule         string        `mapstructure:"peak_schedule"`
	OffPeakSchedule      string        `mapstructure:"off_peak_schedule"`
	MarkersFile          string        `mapstructure:"markers_file"`
}

// Load reads configuration from the given file (optional) with environment
// overrides (APPTWATCH_SERVER_PORT and friends) and defaults.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("apptwatch")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("APPTWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env carry the rest.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.install_on_start", true)
	v.SetDefault("browser.blocked_resources", []string{"image", "font", "media"})
	v.SetDefault("browser.health_check_timeout", 10*time.Second)
	v.SetDefault("browser.health_check_interval", time.Minute)

	v.SetDefault("monitor.max_attempts", 3)
	v.SetDefault("monitor.base_delay", 2*time.Second)
	v.SetDefault("monitor.fallback_candidates", 3)
	v.SetDefault("monitor.step_timeout", 30*time.Second)
	v.SetDefault("monitor.select_timeout", 15*time.Second)
	v.SetDefault("monitor.navigations_per_minute", 30)
	v.SetDefault("monitor.peak_schedule", "*/5 7-19 * * 1-6")
	v.SetDefault("monitor.off_peak_schedule", "*/30 0-6,20-23 * * *")
	v.SetDefault("monitor.markers_file", "")
}
