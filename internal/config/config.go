package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                string
	AllowedOrigins      []string
	DatabaseURL         string
	DatabaseAutoMigrate bool
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	IdempotencyTTL      time.Duration
	AuthSecret          string
	AdminTokenTTL       time.Duration
	ManagerTokenTTL     time.Duration
	LoginRatePerMinute  int
	LoginBurst          int
}

var defaults = map[string]any{
	"PORT":                      "8080",
	"ALLOWED_ORIGINS":           "http://127.0.0.1:3000",
	"DATABASE_URL":              "",
	"DATABASE_AUTO_MIGRATE":     false,
	"REDIS_ADDR":                "",
	"REDIS_PASSWORD":            "",
	"REDIS_DB":                  0,
	"IDEMPOTENCY_TTL_SECONDS":   86400,
	"AUTH_SECRET":               "",
	"ADMIN_TOKEN_TTL_MINUTES":   10,
	"MANAGER_TOKEN_TTL_MINUTES": 120,
	"LOGIN_RATE_PER_MINUTE":     5,
	"LOGIN_RATE_BURST":          5,
}

// Load reads an optional .env file and then the process environment, which
// wins. Numeric settings that do not parse fall back to their defaults.
func Load() Config {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if err := v.ReadInConfig(); err != nil {
		log.Printf("[config] no .env file loaded, using environment only: %v", err)
	}

	redisDB := v.GetInt("REDIS_DB")
	if redisDB < 0 {
		redisDB = 0
	}

	return Config{
		Port:                strings.TrimSpace(v.GetString("PORT")),
		AllowedOrigins:      splitList(v.GetString("ALLOWED_ORIGINS")),
		DatabaseURL:         strings.TrimSpace(v.GetString("DATABASE_URL")),
		DatabaseAutoMigrate: v.GetBool("DATABASE_AUTO_MIGRATE"),
		RedisAddr:           strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:       v.GetString("REDIS_PASSWORD"),
		RedisDB:             redisDB,
		IdempotencyTTL:      time.Duration(positiveInt(v, "IDEMPOTENCY_TTL_SECONDS")) * time.Second,
		AuthSecret:          strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AdminTokenTTL:       time.Duration(positiveInt(v, "ADMIN_TOKEN_TTL_MINUTES")) * time.Minute,
		ManagerTokenTTL:     time.Duration(positiveInt(v, "MANAGER_TOKEN_TTL_MINUTES")) * time.Minute,
		LoginRatePerMinute:  positiveInt(v, "LOGIN_RATE_PER_MINUTE"),
		LoginBurst:          positiveInt(v, "LOGIN_RATE_BURST"),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func positiveInt(v *viper.Viper, key string) int {
	if n := v.GetInt(key); n > 0 {
		return n
	}
	return defaults[key].(int)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
