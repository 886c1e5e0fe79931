// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads manager and worker configuration with viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"code.hybscloud.com/taskmsg/codec"
	"code.hybscloud.com/taskmsg/transport"
	"github.com/spf13/viper"
)

// Config is the root configuration shared by both binaries.
type Config struct {
	// AppName is the logical name used in log output.
	AppName string `mapstructure:"app_name"`

	// Codec names the skill payload codec: cbor, msgpack or json.
	Codec string `mapstructure:"codec"`

	Log     LogConfig     `mapstructure:"log"`
	Manager ManagerConfig `mapstructure:"manager"`
	Worker  WorkerConfig  `mapstructure:"worker"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	Rotation    RotationConfig `mapstructure:"rotation"`
	Development bool           `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// TransportConfig selects a transport backend and its address.
type TransportConfig struct {
	Kind    string `mapstructure:"kind"`
	Address string `mapstructure:"address"`
}

// ManagerConfig configures the task manager.
type ManagerConfig struct {
	Transport TransportConfig `mapstructure:"transport"`

	// IOThreads is the number of scheduler threads.
	IOThreads    int           `mapstructure:"io_threads"`
	PollInterval time.Duration `mapstructure:"poll_interval"`

	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
	// StatsInterval is the period of statistics logging; zero disables it.
	StatsInterval time.Duration `mapstructure:"stats_interval"`

	MaxBodySize  uint32       `mapstructure:"max_body_size"`
	InitialTasks int          `mapstructure:"initial_tasks"`
	Refill       RefillConfig `mapstructure:"refill"`
}

// RefillConfig controls automatic task generation.
type RefillConfig struct {
	Enable   bool          `mapstructure:"enable"`
	Low      int           `mapstructure:"low"`
	Amount   int           `mapstructure:"amount"`
	Interval time.Duration `mapstructure:"interval"`
}

// WorkerConfig configures a worker process.
type WorkerConfig struct {
	Transport      TransportConfig `mapstructure:"transport"`
	Name           string          `mapstructure:"name"`
	ReconnectDelay time.Duration   `mapstructure:"reconnect_delay"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		AppName: "taskmsg",
		Codec:   codec.Default,
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: false,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/taskmsg.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Manager: ManagerConfig{
			Transport:           TransportConfig{Kind: "tcp", Address: ":8080"},
			IOThreads:           2,
			PollInterval:        10 * time.Millisecond,
			MaintenanceInterval: 2 * time.Second,
			StatsInterval:       10 * time.Second,
			MaxBodySize:         64 << 20,
			InitialTasks:        100,
			Refill: RefillConfig{
				Enable:   true,
				Low:      10,
				Amount:   100,
				Interval: time.Second,
			},
		},
		Worker: WorkerConfig{
			Transport:      TransportConfig{Kind: "tcp", Address: "127.0.0.1:8080"},
			Name:           "worker",
			ReconnectDelay: time.Second,
		},
	}
}

// Load reads configuration from path (if non-empty), otherwise from
// $TASKMSG_CONFIG or a taskmsg.yaml in common locations. Environment
// variables use the prefix TASKMSG with `.` and `-` replaced by `_`.
// Example: TASKMSG_MANAGER_IO_THREADS=4
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TASKMSG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults so env-only configs work
	v.SetDefault("app_name", cfg.AppName)
	v.SetDefault("codec", cfg.Codec)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("manager.transport.kind", cfg.Manager.Transport.Kind)
	v.SetDefault("manager.transport.address", cfg.Manager.Transport.Address)
	v.SetDefault("manager.io_threads", cfg.Manager.IOThreads)
	v.SetDefault("manager.poll_interval", cfg.Manager.PollInterval)
	v.SetDefault("manager.maintenance_interval", cfg.Manager.MaintenanceInterval)
	v.SetDefault("manager.stats_interval", cfg.Manager.StatsInterval)
	v.SetDefault("manager.max_body_size", cfg.Manager.MaxBodySize)
	v.SetDefault("manager.initial_tasks", cfg.Manager.InitialTasks)
	v.SetDefault("manager.refill.enable", cfg.Manager.Refill.Enable)
	v.SetDefault("manager.refill.low", cfg.Manager.Refill.Low)
	v.SetDefault("manager.refill.amount", cfg.Manager.Refill.Amount)
	v.SetDefault("manager.refill.interval", cfg.Manager.Refill.Interval)
	v.SetDefault("worker.transport.kind", cfg.Worker.Transport.Kind)
	v.SetDefault("worker.transport.address", cfg.Worker.Transport.Address)
	v.SetDefault("worker.name", cfg.Worker.Name)
	v.SetDefault("worker.reconnect_delay", cfg.Worker.ReconnectDelay)

	if path == "" {
		if envPath := os.Getenv("TASKMSG_CONFIG"); envPath != "" {
			path = envPath
		}
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("taskmsg")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".taskmsg"))
		}
	}

	// A missing config file is fine; defaults and env still apply.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad is Load that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}
	if _, err := codec.ByName(c.Codec); err != nil {
		return fmt.Errorf("invalid codec: %w", err)
	}
	if _, err := transport.ParseKind(c.Manager.Transport.Kind); err != nil {
		return fmt.Errorf("invalid manager.transport.kind: %w", err)
	}
	if _, err := transport.ParseKind(c.Worker.Transport.Kind); err != nil {
		return fmt.Errorf("invalid worker.transport.kind: %w", err)
	}
	if c.Manager.IOThreads < 1 {
		return fmt.Errorf("invalid manager.io_threads: %d", c.Manager.IOThreads)
	}
	if c.Manager.PollInterval <= 0 {
		return fmt.Errorf("invalid manager.poll_interval: %v", c.Manager.PollInterval)
	}
	if c.Manager.MaxBodySize == 0 {
		return errors.New("invalid manager.max_body_size: 0")
	}
	if c.Manager.Refill.Enable && (c.Manager.Refill.Amount <= 0 || c.Manager.Refill.Interval <= 0) {
		return fmt.Errorf("invalid manager.refill: amount %d, interval %v", c.Manager.Refill.Amount, c.Manager.Refill.Interval)
	}
	return nil
}
