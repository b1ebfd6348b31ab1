// internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/puppetd/api/schemas"
)

// LoggerConfig controls the zap logger and the optional rotating file sink.
type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name"`
	AddSource   bool   `mapstructure:"add_source"`
	LogFile     string `mapstructure:"log_file"`
	MaxSize     int    `mapstructure:"max_size"` // megabytes
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAge      int    `mapstructure:"max_age"` // days
	Compress    bool   `mapstructure:"compress"`
}

// ServerConfig locates the IPC endpoint and tunes client behavior.
type ServerConfig struct {
	// SocketDir holds the unix socket. Empty means ~/.puppetd.
	SocketDir string `mapstructure:"socket_dir"`
	// RetryInterval is the client's connection retry interval.
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	// ShutdownTimeout bounds how long serve waits for sessions on exit.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// BrowserConfig provides daemon-side defaults applied when a launch request
// leaves the corresponding global option unset.
type BrowserConfig struct {
	ExecutablePath string   `mapstructure:"executable_path"`
	Args           []string `mapstructure:"args"`
}

// ReaperConfig tunes the execution-status polling loop.
type ReaperConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`
}

// Config is the whole application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger"`
	Server  ServerConfig  `mapstructure:"server"`
	Browser BrowserConfig `mapstructure:"browser"`
	Reaper  ReaperConfig  `mapstructure:"reaper"`
}

// SocketPath resolves the full path of the IPC socket.
func (c *Config) SocketPath() (string, error) {
	dir := c.Server.SocketDir
	if dir == "" {
		home, err := homedir.Dir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".puppetd")
	}
	return filepath.Join(dir, schemas.EndpointName+".sock"), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "puppetd")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("server.retry_interval", 1500*time.Millisecond)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("reaper.poll_interval", 3*time.Second)
	v.SetDefault("reaper.http_timeout", 10*time.Second)
}

// Load reads the config file (when present) and environment overrides, and
// unmarshals the result. A missing config file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.GetViper()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PUPPETD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}
