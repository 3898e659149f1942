package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	APIBaseURL       string        `mapstructure:"API_BASE_URL"`
	StorageDriver    string        `mapstructure:"STORAGE_DRIVER"`
	StatePath        string        `mapstructure:"STATE_PATH"`
	RedisAddr        string        `mapstructure:"REDIS_ADDR"`
	FreeChatLimit    int           `mapstructure:"FREE_CHAT_LIMIT"`
	MaxMessageLength int           `mapstructure:"MAX_MESSAGE_LENGTH"`
	ProbeTimeout     time.Duration `mapstructure:"PROBE_TIMEOUT"`
	ProbeDebounce    time.Duration `mapstructure:"PROBE_DEBOUNCE"`
	RetryInterval    time.Duration `mapstructure:"RETRY_INTERVAL"`
	ChatTimeout      time.Duration `mapstructure:"CHAT_TIMEOUT"`
	RequestTimeout   time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
}

const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

func LoadConfig() (*Config, error) {
	stateDir := defaultStateDir()

	viper.SetDefault("API_BASE_URL", "http://localhost:8000")
	viper.SetDefault("STORAGE_DRIVER", DriverSQLite)
	viper.SetDefault("STATE_PATH", filepath.Join(stateDir, "state.db"))
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("FREE_CHAT_LIMIT", 3)
	viper.SetDefault("MAX_MESSAGE_LENGTH", 1000)
	viper.SetDefault("PROBE_TIMEOUT", 10*time.Second)
	viper.SetDefault("PROBE_DEBOUNCE", 500*time.Millisecond)
	viper.SetDefault("RETRY_INTERVAL", 30*time.Second)
	viper.SetDefault("CHAT_TIMEOUT", 60*time.Second)
	viper.SetDefault("REQUEST_TIMEOUT", 15*time.Second)
	viper.SetDefault("LOG_LEVEL", "INFO")

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AddConfigPath(stateDir)

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	return &cfg, nil
}

// defaultStateDir is ~/.ragchat, or ./.ragchat when no home directory exists.
func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".ragchat"
	}
	return filepath.Join(home, ".ragchat")
}
