// Package config loads the broker configuration.
//
// Load order:
//  1. .env (secrets, optional)
//  2. the YAML file named by CONFIG_FILE (optional)
//  3. environment variables, which override both
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Config is the resolved configuration.
type Config struct {
	HTTPAddr     string `yaml:"http_addr"`
	StoreBackend string `yaml:"store_backend"`
	DataDir      string `yaml:"data_dir"`
	DatabaseURL  string `yaml:"database_url"`
	RedisAddr    string `yaml:"redis_addr"`

	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`

	MinIO MinIOConfig `yaml:"minio"`

	// ChatIdleTimeout closes chats without activity for that long; zero disables it.
	ChatIdleTimeout time.Duration `yaml:"chat_idle_timeout"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`

	Owner OwnerConfig `yaml:"owner"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// OwnerConfig seeds the owner account on an empty store.
type OwnerConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Default returns the development defaults.
func Default() Config {
	return Config{
		HTTPAddr:      ":8080",
		StoreBackend:  BackendFile,
		DataDir:       "data",
		JWTSecret:     "change-me-in-production",
		TokenTTL:      72 * time.Hour,
		MinIO:         MinIOConfig{Bucket: "chat-files"},
		SweepInterval: time.Minute,
	}
}

// Load builds the configuration from .env, CONFIG_FILE and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if cfg.StoreBackend != BackendFile && cfg.StoreBackend != BackendPostgres {
		return cfg, fmt.Errorf("config: unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	if cfg.StoreBackend == BackendPostgres && cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("config: DATABASE_URL is required for the postgres backend")
	}
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setString(&cfg.StoreBackend, "STORE_BACKEND")
	setString(&cfg.DataDir, "DATA_DIR")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.JWTSecret, "JWT_SECRET")
	setString(&cfg.MinIO.Endpoint, "MINIO_ENDPOINT")
	setString(&cfg.MinIO.AccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.MinIO.SecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.MinIO.Bucket, "MINIO_BUCKET")
	setString(&cfg.Owner.Username, "OWNER_USERNAME")
	setString(&cfg.Owner.Password, "OWNER_PASSWORD")

	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: MINIO_USE_SSL: %w", err)
		}
		cfg.MinIO.UseSSL = b
	}
	for key, dst := range map[string]*time.Duration{
		"TOKEN_TTL":         &cfg.TokenTTL,
		"CHAT_IDLE_TIMEOUT": &cfg.ChatIdleTimeout,
		"SWEEP_INTERVAL":    &cfg.SweepInterval,
	} {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", key, err)
			}
			*dst = d
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// String renders the configuration without secrets.
func (c Config) String() string {
	return fmt.Sprintf("http=%s backend=%s data_dir=%s redis=%q minio=%q idle_timeout=%s",
		c.HTTPAddr, c.StoreBackend, c.DataDir, c.RedisAddr, c.MinIO.Endpoint, c.ChatIdleTimeout)
}
