// Package config loads the deployment configuration: defaults in
// code, an optional yaml file, and EMV_EMULATOR_* environment
// overrides, in ascending precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full deployment configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Confidence ConfidenceConfig `mapstructure:"confidence"`
}

// ServerConfig configures the HTTP/WebSocket listener.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig locates the sqlite file backing history and cards.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggerConfig configures log level and optional file rotation.
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"filePath"`
	MaxSizeMB  int    `mapstructure:"maxSizeMB"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAgeDays"`
	JSONFormat bool   `mapstructure:"jsonFormat"`
}

// ConfidenceConfig configures the optional scoring collaborator. An
// empty ServiceURL disables the override entirely.
type ConfidenceConfig struct {
	ServiceURL        string  `mapstructure:"serviceUrl"`
	OverrideThreshold float64 `mapstructure:"overrideThreshold"`
	OverrideStatus    string  `mapstructure:"overrideStatus"`
	TimeoutSeconds    int     `mapstructure:"timeoutSeconds"`
}

// Address returns the listen address in host:port form.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8000)
	v.SetDefault("database.path", "emv-emulator.db")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.maxSizeMB", 50)
	v.SetDefault("logger.maxBackups", 5)
	v.SetDefault("logger.maxAgeDays", 14)
	v.SetDefault("confidence.serviceUrl", "")
	v.SetDefault("confidence.overrideThreshold", 0.5)
	v.SetDefault("confidence.overrideStatus", "6A82")
	v.SetDefault("confidence.timeoutSeconds", 2)
}

// Load reads the configuration. configFile may be empty, in which
// case only defaults and environment variables apply.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("EMV_EMULATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
