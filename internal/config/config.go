// Package config loads the server's configuration via Viper from a config
// file and environment variables (STREAMDESK_ prefixed) over built-in
// defaults. An environment variable overrides the config file's value for
// the same key; it is looked up only for keys the config file sets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

// Config holds every tunable of the server process.
type Config struct {
	ListenAddress string `mapstructure:"listen_address"`

	RecordingsDir string `mapstructure:"recordings_dir"`
	DatabasePath  string `mapstructure:"database_path"`

	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`

	MetricsAddress string `mapstructure:"metrics_address"`

	AdminSocketPath string `mapstructure:"admin_socket_path"`
	AdminToken      string `mapstructure:"admin_token"`

	LoginRateLimitPerSecond float64 `mapstructure:"login_rate_limit_per_second"`
	LoginRateLimitBurst     int     `mapstructure:"login_rate_limit_burst"`

	// ArchiveProvider selects where finished recordings are additionally
	// uploaded: "none", "s3", "azure", "gcs", or "b2".
	ArchiveProvider  string `mapstructure:"archive_provider"`
	ArchiveBucket    string `mapstructure:"archive_bucket"`
	ArchiveRegion    string `mapstructure:"archive_region"`
	ArchiveContainer string `mapstructure:"archive_container"` // azure
	ArchiveAccount   string `mapstructure:"archive_account"`   // azure
	ArchiveKeyID     string `mapstructure:"archive_key_id"`    // b2 application key id
	ArchiveKey       string `mapstructure:"archive_key"`       // azure/b2 secret key
}

// Default returns a Config with every field set to a safe built-in value.
func Default() *Config {
	return &Config{
		ListenAddress: "0.0.0.0:7643",

		RecordingsDir: "recordings",
		DatabasePath:  "streamdesk.sqlite",

		LogLevel:      "info",
		LogFormat:     "text",
		LogMaxSizeMB:  50,
		LogMaxBackups: 3,

		MetricsAddress: "127.0.0.1:9643",

		AdminSocketPath: defaultAdminSocketPath(),

		LoginRateLimitPerSecond: 1,
		LoginRateLimitBurst:     5,

		ArchiveProvider: "none",
	}
}

// Load reads configuration from cfgFile (or the default search path if
// empty), environment variables, and defaults, validates it, and returns
// the result. Fatal validation errors block startup; warnings are
// returned alongside the config for the caller to log once the logger is
// initialized.
func Load(cfgFile string) (*Config, []error, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("streamdesk")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("STREAMDESK")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, nil, err
	}

	result := cfg.ValidateTiered()
	if result.HasFatals() {
		return nil, result.Warnings, fmt.Errorf("config has fatal validation errors: %v", result.Fatals[0])
	}

	return cfg, result.Warnings, nil
}

func defaultAdminSocketPath() string {
	if runtime.GOOS == "windows" {
		return `\\.\pipe\streamdesk-admin`
	}
	return filepath.Join(os.TempDir(), "streamdesk-admin.sock")
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "StreamDesk")
	case "darwin":
		return "/Library/Application Support/StreamDesk"
	default:
		return "/etc/streamdesk"
	}
}
