package config

import (
	"errors"
	"os"
	"strconv"
)

const defaultJWTSecret = "dev-secret-change-me"

type Config struct {
	Port                  string
	Env                   string
	DatabaseDSN           string
	RedisAddr             string
	JWTSecret             string
	AccessTokenTTLMinutes int
	TelegramBotToken      string
	NotifyQueueSize       int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// Load 从环境变量读取配置，缺省值面向本地开发。
func Load() Config {
	return Config{
		Port:                  getenv("APP_PORT", "8080"),
		Env:                   getenv("APP_ENV", "dev"),
		DatabaseDSN:           getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=chat port=5432 sslmode=disable TimeZone=UTC"),
		RedisAddr:             getenv("REDIS_ADDR", ""),
		JWTSecret:             getenv("JWT_SECRET", defaultJWTSecret),
		AccessTokenTTLMinutes: getenvInt("ACCESS_TOKEN_TTL_MINUTES", 1440),
		TelegramBotToken:      getenv("TELEGRAM_BOT_TOKEN", ""),
		NotifyQueueSize:       getenvInt("NOTIFY_QUEUE_SIZE", 256),
	}
}

// Validate 启动前检查配置，非 dev 环境禁止使用默认密钥。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("config: port must not be empty")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("config: database dsn must not be empty")
	}
	if cfg.Env != "dev" && cfg.JWTSecret == defaultJWTSecret {
		return errors.New("config: default jwt secret is not allowed outside dev")
	}
	if cfg.AccessTokenTTLMinutes <= 0 {
		return errors.New("config: access token ttl must be positive")
	}
	return nil
}
