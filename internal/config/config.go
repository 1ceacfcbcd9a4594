package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store backends accepted by STORE_BACKEND.
const (
	BackendMemory  = "memory"
	BackendMongoDB = "mongodb"
	BackendRedis   = "redis"
	BackendBadger  = "badger"
)

// Config holds application configuration
type Config struct {
	Server     ServerConfig
	Store      StoreConfig
	MongoDB    MongoDBConfig
	Redis      RedisConfig
	Badger     BadgerConfig
	JWT        JWTConfig
	OIDC       OIDCConfig
	RateLimit  RateLimitConfig
	Validation ValidationConfig
	LogLevel   string
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type StoreConfig struct {
	Backend string
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Prefix   string
}

func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

type BadgerConfig struct {
	Path     string
	InMemory bool
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	TokenTTL time.Duration
}

type OIDCConfig struct {
	IssuerURL string
	ClientID  string
	// AllowInsecure accepts unsigned tokens when no verifier is configured. Local runs only.
	AllowInsecure bool
}

type RateLimitConfig struct {
	Enabled       bool
	RPS           float64
	Burst         int
	UseRedis      bool
	WindowSeconds int
}

type ValidationConfig struct {
	// ReferenceValidation is the default when a request does not override it.
	ReferenceValidation bool
	// AllowBypass lets FULL_ACCESS clients switch reference validation off per request.
	AllowBypass bool
	// DescriptorResources names the descriptor resources (DESCRIPTOR_RESOURCES, comma separated).
	DescriptorResources []string
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "3000")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("STORE_BACKEND", BackendMemory)
	v.SetDefault("MONGODB_DATABASE", "meadowlark")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PREFIX", "meadowlark:")
	v.SetDefault("JWT_ISSUER", "meadowlark")
	v.SetDefault("JWT_TOKEN_TTL", 60)
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	v.SetDefault("REFERENCE_VALIDATION", true)
	v.SetDefault("ALLOW_REFERENCE_VALIDATION_BYPASS", true)
	v.SetDefault("LOG_LEVEL", "info")

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Backend: strings.ToLower(strings.TrimSpace(v.GetString("STORE_BACKEND"))),
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			Prefix:   v.GetString("REDIS_PREFIX"),
		},
		Badger: BadgerConfig{
			Path:     v.GetString("BADGER_PATH"),
			InMemory: v.GetBool("BADGER_IN_MEMORY"),
		},
		JWT: JWTConfig{
			Secret:   os.Getenv("JWT_SECRET"),
			Issuer:   v.GetString("JWT_ISSUER"),
			TokenTTL: time.Duration(v.GetInt("JWT_TOKEN_TTL")) * time.Minute,
		},
		OIDC: OIDCConfig{
			IssuerURL:     v.GetString("OIDC_ISSUER_URL"),
			ClientID:      v.GetString("OIDC_CLIENT_ID"),
			AllowInsecure: v.GetBool("OIDC_ALLOW_INSECURE_TOKEN"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Validation: ValidationConfig{
			ReferenceValidation: v.GetBool("REFERENCE_VALIDATION"),
			AllowBypass:         v.GetBool("ALLOW_REFERENCE_VALIDATION_BYPASS"),
			DescriptorResources: splitList(v.GetString("DESCRIPTOR_RESOURCES")),
		},
		LogLevel: v.GetString("LOG_LEVEL"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendMongoDB:
		if c.MongoDB.URI == "" {
			return fmt.Errorf("config: MONGODB_URI is required for store backend %q", c.Store.Backend)
		}
	case BackendRedis:
		if c.Redis.Host == "" {
			return fmt.Errorf("config: REDIS_HOST is required for store backend %q", c.Store.Backend)
		}
	case BackendBadger:
		if c.Badger.Path == "" && !c.Badger.InMemory {
			return fmt.Errorf("config: BADGER_PATH or BADGER_IN_MEMORY is required for store backend %q", c.Store.Backend)
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if c.RateLimit.Enabled && c.RateLimit.UseRedis && c.Redis.Host == "" {
		return fmt.Errorf("config: REDIS_HOST is required when RATE_LIMIT_USE_REDIS is set")
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
