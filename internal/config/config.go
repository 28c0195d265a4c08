package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port                  string
	LogLevel              string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	AuthSecret            string
	AccessTokenTTLMinutes int
	RateLimitWindowSec    int
	RateLimitMax          int
	CacheTTLSeconds       int
}

func Load() Config {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	viper.SetDefault("RATE_LIMIT_MAX", 120)
	viper.SetDefault("CACHE_TTL_SECONDS", 30)
	viper.AutomaticEnv()

	cfg := Config{
		Port:                  viper.GetString("PORT"),
		LogLevel:              viper.GetString("LOG_LEVEL"),
		AllowedOrigin:         viper.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:           viper.GetString("DATABASE_URL"),
		RedisAddr:             viper.GetString("REDIS_ADDR"),
		RedisPassword:         viper.GetString("REDIS_PASSWORD"),
		RedisDB:               viper.GetInt("REDIS_DB"),
		AuthSecret:            strings.TrimSpace(viper.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes: viper.GetInt("ACCESS_TOKEN_TTL_MINUTES"),
		RateLimitWindowSec:    viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		RateLimitMax:          viper.GetInt("RATE_LIMIT_MAX"),
		CacheTTLSeconds:       viper.GetInt("CACHE_TTL_SECONDS"),
	}

	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	if cfg.RateLimitWindowSec < 1 {
		cfg.RateLimitWindowSec = 60
	}
	if cfg.RateLimitMax < 1 {
		cfg.RateLimitMax = 120
	}
	if cfg.CacheTTLSeconds < 1 {
		cfg.CacheTTLSeconds = 30
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}
