package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/bassista/go_docstore/internal/logger"
)

const (
	EngineJSON   = "json"
	EngineSQLite = "sqlite"
)

// Config is the resolved process configuration.
type Config struct {
	Store StoreConfig
	Data  DataConfig
	Misc  MiscConfig
}

// StoreConfig identifies the managed document and where it lives.
type StoreConfig struct {
	DatabaseName string
	ModelName    string
	Engine       string
	DocumentsDir string // overrides the platform documents location when set
	SupportDir   string // overrides the platform support location when set
}

// DataConfig controls background persistence.
type DataConfig struct {
	AutosaveInterval time.Duration
	WatchEnabled     bool
}

type MiscConfig struct {
	AppName  string
	LogLevel string
}

// LoadConfig reads config.yaml from DOCSTORE_CONFIG_PATH (default ./config),
// applies an optional .env file and DOCSTORE_* environment overrides, and
// validates the result.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WithComponent("config").Warnf("cannot read .env file: %v", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getEnvOrDefault("DOCSTORE_CONFIG_PATH", "./config"))

	v.SetDefault("store.database_name", "Database")
	v.SetDefault("store.model_name", "Model")
	v.SetDefault("store.engine", EngineJSON)
	v.SetDefault("store.documents_dir", "")
	v.SetDefault("store.support_dir", "")
	v.SetDefault("data.autosave_interval", 5*time.Second)
	v.SetDefault("data.watch_enabled", true)
	v.SetDefault("misc.app_name", "go_docstore")
	v.SetDefault("misc.log_level", "info")

	// DOCSTORE_STORE_DATABASE_NAME overrides store.database_name, and so on.
	v.SetEnvPrefix("DOCSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config file error: %w", err)
		}
		logger.WithComponent("config").Debug("no config file found, using defaults and env vars")
	}

	cfg := &Config{
		Store: StoreConfig{
			DatabaseName: v.GetString("store.database_name"),
			ModelName:    v.GetString("store.model_name"),
			Engine:       strings.ToLower(v.GetString("store.engine")),
			DocumentsDir: v.GetString("store.documents_dir"),
			SupportDir:   v.GetString("store.support_dir"),
		},
		Data: DataConfig{
			AutosaveInterval: v.GetDuration("data.autosave_interval"),
			WatchEnabled:     v.GetBool("data.watch_enabled"),
		},
		Misc: MiscConfig{
			AppName:  v.GetString("misc.app_name"),
			LogLevel: v.GetString("misc.log_level"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Store.DatabaseName) == "" {
		return errors.New("store.database_name is required")
	}
	if strings.ContainsAny(c.Store.DatabaseName, `/\`) || c.Store.DatabaseName == "." || c.Store.DatabaseName == ".." {
		return fmt.Errorf("store.database_name must be a plain name, got %q", c.Store.DatabaseName)
	}
	if strings.TrimSpace(c.Store.ModelName) == "" {
		return errors.New("store.model_name is required")
	}
	switch c.Store.Engine {
	case EngineJSON, EngineSQLite:
	default:
		return fmt.Errorf("unknown store.engine %q (supported: %s, %s)", c.Store.Engine, EngineJSON, EngineSQLite)
	}
	if c.Data.AutosaveInterval <= 0 {
		return errors.New("data.autosave_interval must be positive")
	}
	if strings.TrimSpace(c.Misc.AppName) == "" {
		return errors.New("misc.app_name is required")
	}
	return nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
