package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the service configuration, read from environment variables
// (prefix EDITOR_) and an optional config file.
type Config struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"`

	DBHost     string `mapstructure:"db_host"`
	DBPort     string `mapstructure:"db_port"`
	DBUser     string `mapstructure:"db_user"`
	DBPassword string `mapstructure:"db_password"`
	DBName     string `mapstructure:"db_name"`
	UseDB      bool   `mapstructure:"use_db"`

	AutoSaveInterval time.Duration `mapstructure:"autosave_interval"`
	CacheSize        int           `mapstructure:"cache_size"`
	MaxClients       int           `mapstructure:"max_clients"`
}

// Load reads the configuration. path may name a config file; env overrides
// the configured environment when non-empty.
func Load(path string, env string) (*Config, error) {
	v := viper.New()

	v.SetDefault("port", "8080")
	v.SetDefault("env", "dev")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_password", "postgres")
	v.SetDefault("db_name", "infinote_editor")
	v.SetDefault("use_db", true)
	v.SetDefault("autosave_interval", 30*time.Second)
	v.SetDefault("cache_size", 4096)
	v.SetDefault("max_clients", 1000)

	v.SetEnvPrefix("EDITOR")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if env != "" {
		cfg.Env = env
	}
	return &cfg, nil
}
