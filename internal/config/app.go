package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StorageMongo  = "mongo"
	StorageMemory = "memory"
)

// AppConfig collects every environment-driven setting of the service.
type AppConfig struct {
	Port           string
	Env            string
	StorageBackend string

	MongoURI string
	MongoDB  string

	JWTSecret        string
	CasbinPolicyPath string

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	UnreadCacheTTL time.Duration

	CORSOrigins      []string
	WSAllowedOrigins []string

	ReaperSpec string
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getList(key, def string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, def), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func NewAppConfig() (*AppConfig, error) {
	cfg := &AppConfig{
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("APP_ENV", "production"),
		StorageBackend:   getEnv("STORAGE_BACKEND", StorageMongo),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDB:          getEnv("MONGO_DB", "fly8"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		CasbinPolicyPath: os.Getenv("CASBIN_POLICY_PATH"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		CORSOrigins:      getList("CORS_ORIGINS", "http://localhost:8080,https://fly8.global,https://www.fly8.global"),
		WSAllowedOrigins: getList("WS_ALLOWED_ORIGINS", "*"),
		ReaperSpec:       getEnv("NOTIFICATION_REAPER_SPEC", "@every 10m"),
	}

	db, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, errors.New("REDIS_DB must be an integer")
	}
	cfg.RedisDB = db

	ttl, err := time.ParseDuration(getEnv("UNREAD_CACHE_TTL", "5m"))
	if err != nil {
		return nil, errors.New("UNREAD_CACHE_TTL must be a duration")
	}
	cfg.UnreadCacheTTL = ttl

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET not set")
	}
	switch cfg.StorageBackend {
	case StorageMongo:
		if cfg.MongoURI == "" {
			return nil, errors.New("DB uri not set")
		}
	case StorageMemory:
	default:
		return nil, errors.New("STORAGE_BACKEND must be mongo or memory")
	}
	return cfg, nil
}

func (c *AppConfig) Development() bool {
	return c.Env == "development"
}
