package config

import (
	"fmt"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig
	API    APIConfig
	JWT    JWTConfig
	Cache  CacheConfig
	Redis  RedisConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	AllowOrigins []string
}

// APIConfig points at the remote Reddit-clone API.
type APIConfig struct {
	BaseURL   string
	Timeout   time.Duration
	FeedPages int
}

type JWTConfig struct {
	Secret string
}

type CacheConfig struct {
	Backend        string // memory or redis
	TTL            time.Duration
	RefetchTimeout time.Duration
	ViewerTTL      time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Load reads the configuration from the environment (and .env, if present).
func Load() (*Config, error) {
	v := viper.New()
	v.SetDefault("PORT", "8080")
	v.SetDefault("READ_TIMEOUT", 10*time.Second)
	v.SetDefault("WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("IDLE_TIMEOUT", time.Minute)
	v.SetDefault("ALLOW_ORIGINS", "*")
	v.SetDefault("API_BASE_URL", "http://localhost:8081/api")
	v.SetDefault("API_TIMEOUT", 10*time.Second)
	v.SetDefault("FEED_PAGES", 1)
	v.SetDefault("CACHE_BACKEND", BackendMemory)
	v.SetDefault("CACHE_TTL", 10*time.Minute)
	v.SetDefault("REFETCH_TIMEOUT", 10*time.Second)
	v.SetDefault("VIEWER_TTL", 30*time.Minute)
	v.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS_DB", 0)
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("PORT"),
			ReadTimeout:  v.GetDuration("READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("WRITE_TIMEOUT"),
			IdleTimeout:  v.GetDuration("IDLE_TIMEOUT"),
			AllowOrigins: splitList(v.GetString("ALLOW_ORIGINS")),
		},
		API: APIConfig{
			BaseURL:   v.GetString("API_BASE_URL"),
			Timeout:   v.GetDuration("API_TIMEOUT"),
			FeedPages: v.GetInt("FEED_PAGES"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
		},
		Cache: CacheConfig{
			Backend:        strings.ToLower(v.GetString("CACHE_BACKEND")),
			TTL:            v.GetDuration("CACHE_TTL"),
			RefetchTimeout: v.GetDuration("REFETCH_TIMEOUT"),
			ViewerTTL:      v.GetDuration("VIEWER_TTL"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	switch c.Cache.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("CACHE_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, c.Cache.Backend)
	}
	if c.API.FeedPages < 1 {
		c.API.FeedPages = 1
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
