package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is read from an optional YAML file named by DIAMONDINV_CONFIG and
// then from the environment. Environment variables always win.
type Config struct {
	ListenAddr     string `yaml:"listen_addr"`
	StorageBackend string `yaml:"storage_backend"`
	StoreKey       string `yaml:"store_key"`

	DBPath       string        `yaml:"db_path"`
	FilePath     string        `yaml:"file_path"`
	PostgresDSN  string        `yaml:"postgres_dsn"`
	RedisAddr    string        `yaml:"redis_addr"`
	RedisChannel string        `yaml:"redis_channel"`
	S3Bucket     string        `yaml:"s3_bucket"`
	S3Region     string        `yaml:"s3_region"`
	S3Endpoint   string        `yaml:"s3_endpoint"`
	S3PathStyle  bool          `yaml:"s3_path_style"`
	QuotaBytes   int           `yaml:"storage_quota_bytes"`
	SyncInterval time.Duration `yaml:"sync_poll_interval"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`
}

func defaults() *Config {
	return &Config{
		ListenAddr:     ":8080",
		StorageBackend: "sqlite",
		StoreKey:       "diamond-management-store",
		DBPath:         "/data/diamondinv.db",
		FilePath:       "/data/store",
		RedisChannel:   "diamondinv:kv",
		S3Region:       "us-east-1",
		QuotaBytes:     5 << 20,
		SyncInterval:   time.Second,
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("DIAMONDINV_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.ListenAddr = getEnv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.StorageBackend = getEnv("STORAGE_BACKEND", cfg.StorageBackend)
	cfg.StoreKey = getEnv("STORE_KEY", cfg.StoreKey)
	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)
	cfg.FilePath = getEnv("FILE_PATH", cfg.FilePath)
	cfg.PostgresDSN = getEnv("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisChannel = getEnv("REDIS_CHANNEL", cfg.RedisChannel)
	cfg.S3Bucket = getEnv("S3_BUCKET", cfg.S3Bucket)
	cfg.S3Region = getEnv("S3_REGION", cfg.S3Region)
	cfg.S3Endpoint = getEnv("S3_ENDPOINT", cfg.S3Endpoint)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)

	var err error
	if cfg.S3PathStyle, err = getEnvBool("S3_PATH_STYLE", cfg.S3PathStyle); err != nil {
		return nil, err
	}
	if cfg.QuotaBytes, err = getEnvInt("STORAGE_QUOTA_BYTES", cfg.QuotaBytes); err != nil {
		return nil, err
	}
	if cfg.SyncInterval, err = getEnvDuration("SYNC_POLL_INTERVAL", cfg.SyncInterval); err != nil {
		return nil, err
	}

	switch cfg.StorageBackend {
	case "memory", "file", "sqlite", "postgres", "redis", "s3":
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
