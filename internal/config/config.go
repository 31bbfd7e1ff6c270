package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config.json"

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig    `json:"basic_config" yaml:"basic_config"`
	Provider    ProviderConfig `json:"provider" yaml:"provider"`
	Storage     StorageConfig  `json:"storage" yaml:"storage"`
	Redis       RedisConfig    `json:"redis" yaml:"redis"`
	Worker      WorkerConfig   `json:"worker" yaml:"worker"`
	Log         LogConfig      `json:"log" yaml:"log"`
}

type BasicConfig struct {
	ServerAddress      string `json:"server_address" yaml:"server_address" validate:"required"`
	PersonalityFile    string `json:"personality_file" yaml:"personality_file" validate:"required"`
	SessionsFile       string `json:"sessions_file" yaml:"sessions_file" validate:"required"`
	UploadsDir         string `json:"uploads_dir" yaml:"uploads_dir" validate:"required"`
	AccessToken        string `json:"access_token" yaml:"access_token"`
	RequestTimeout     int    `json:"request_timeout" yaml:"request_timeout" validate:"gte=0"`             // seconds
	AssetSweepInterval int    `json:"asset_sweep_interval" yaml:"asset_sweep_interval" validate:"gte=0"` // minutes, 0 disables
	AssetGracePeriod   int    `json:"asset_grace_period" yaml:"asset_grace_period" validate:"gte=0"`     // minutes
	MetricsNamespace   string `json:"metrics_namespace" yaml:"metrics_namespace"`
}

type ProviderConfig struct {
	Name    string `json:"name" yaml:"name" validate:"oneof=gemini openai claude"`
	BaseURL string `json:"base_url" yaml:"base_url"`
	Model   string `json:"model" yaml:"model" validate:"required"`
	APIKey  string `json:"api_key" yaml:"api_key"`
}

type StorageConfig struct {
	Driver   string `json:"driver" yaml:"driver" validate:"oneof=file sqlite3 mysql postgres"`
	DSN      string `json:"dsn" yaml:"dsn"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"db_name" yaml:"db_name"`
	Params   string `json:"params" yaml:"params"`
}

type RedisConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// Enabled reports whether a change feed should be started.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Host) != ""
}

type WorkerConfig struct {
	MinWorkers  int `json:"min_workers" yaml:"min_workers" validate:"gte=0"`
	MaxWorkers  int `json:"max_workers" yaml:"max_workers" validate:"gte=1,gtefield=MinWorkers"`
	QueueSize   int `json:"queue_size" yaml:"queue_size" validate:"gte=1"`
	IdleTimeout int `json:"idle_timeout" yaml:"idle_timeout" validate:"gte=0"` // seconds
}

type LogConfig struct {
	FilePath   string `json:"file_path" yaml:"file_path"`
	Production bool   `json:"production" yaml:"production"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		BasicConfig: BasicConfig{
			ServerAddress:      ":5000",
			PersonalityFile:    "personality.json",
			SessionsFile:       "chat_sessions.json",
			UploadsDir:         "uploads",
			RequestTimeout:     120,
			AssetSweepInterval: 60,
			AssetGracePeriod:   24 * 60,
			MetricsNamespace:   "zonewatch",
		},
		Provider: ProviderConfig{
			Name:  "gemini",
			Model: "gemini-2.5-pro",
		},
		Storage: StorageConfig{Driver: "file"},
		Worker: WorkerConfig{
			MinWorkers:  1,
			MaxWorkers:  4,
			QueueSize:   32,
			IdleTimeout: 60,
		},
		Log: LogConfig{FilePath: "zonewatch.log"},
	}
}

// Load reads configuration from the provided path (defaults to config.json).
// A missing default file yields Default(); a missing explicit file is an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	cfg := Default()
	if err := decodeFile(absPath, cfg); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	applyEnv(cfg)

	if cfg.Provider.APIKey, err = revealSecret(cfg.Provider.APIKey); err != nil {
		return nil, fmt.Errorf("decrypt provider api_key: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	baseDir := filepath.Dir(absPath)
	cfg.BasicConfig.PersonalityFile = resolve(baseDir, cfg.BasicConfig.PersonalityFile)
	cfg.BasicConfig.SessionsFile = resolve(baseDir, cfg.BasicConfig.SessionsFile)
	cfg.BasicConfig.UploadsDir = resolve(baseDir, cfg.BasicConfig.UploadsDir)
	if cfg.Log.FilePath != "" {
		cfg.Log.FilePath = resolve(baseDir, cfg.Log.FilePath)
	}
	if cfg.Storage.Driver == "sqlite3" && cfg.Storage.DSN != "" && cfg.Storage.DSN != ":memory:" {
		cfg.Storage.DSN = resolve(baseDir, cfg.Storage.DSN)
	}

	return cfg, nil
}

func decodeFile(absPath string, cfg *Config) error {
	file, err := os.Open(absPath)
	if err != nil {
		return fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(absPath)) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); v != "" && cfg.Provider.Name == "gemini" {
		cfg.Provider.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("ZONEWATCH_API_KEY")); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("ZONEWATCH_ADDR")); v != "" {
		cfg.BasicConfig.ServerAddress = v
	}
	if v, ok := os.LookupEnv("ZONEWATCH_ACCESS_TOKEN"); ok {
		cfg.BasicConfig.AccessToken = strings.TrimSpace(v)
	}
	if v := strings.TrimSpace(os.Getenv("ZONEWATCH_PROVIDER")); v != "" {
		cfg.Provider.Name = v
	}
	if v := strings.TrimSpace(os.Getenv("ZONEWATCH_MODEL")); v != "" {
		cfg.Provider.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("ZONEWATCH_STORAGE_DRIVER")); v != "" {
		cfg.Storage.Driver = v
	}
	if v := strings.TrimSpace(os.Getenv("ZONEWATCH_REDIS_ADDR")); v != "" {
		host, port, found := strings.Cut(v, ":")
		cfg.Redis.Host = host
		if found {
			if p, err := strconv.Atoi(port); err == nil {
				cfg.Redis.Port = p
			}
		}
	}
}

func resolve(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// RequestTimeout returns the upstream call timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.BasicConfig.RequestTimeout) * time.Second
}
