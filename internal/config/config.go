package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ServiceName    = "mini-oms"
	ServiceVersion = "0.1.0"
)

const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"

	EnvProduction = "production"
)

type Config struct {
	HTTPAddr      string
	GRPCAddr      string
	AppEnv        string
	LogLevel      string
	StorageDriver string
	MySQLDSN      string
	AutoMigrate   bool
	RedisAddr     string
	KafkaBrokers  []string
	KafkaTopic    string
	JWTSecret     string
	JWTTTL        time.Duration
	OtelEndpoint  string

	// AllowedOrigins limits browser origins for CORS and websocket upgrades. Empty allows any.
	AllowedOrigins []string
}

func (c *Config) Production() bool {
	return c.AppEnv == EnvProduction
}

// Load reads the configuration from the environment. Redis, Kafka and tracing are enabled only
// when their addresses are set.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:      getEnv("GRPC_ADDR", ":9090"),
		AppEnv:        getEnv("APP_ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		StorageDriver: getEnv("STORAGE_DRIVER", DriverMySQL),
		MySQLDSN:      getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/minioms?parseTime=true"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "order-status-updated"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		OtelEndpoint:  os.Getenv("OTEL_ENDPOINT"),
	}

	var err error
	if cfg.AutoMigrate, err = strconv.ParseBool(getEnv("AUTO_MIGRATE", "false")); err != nil {
		return nil, fmt.Errorf("AUTO_MIGRATE: %w", err)
	}
	if cfg.JWTTTL, err = time.ParseDuration(getEnv("JWT_TTL", "1h")); err != nil {
		return nil, fmt.Errorf("JWT_TTL: %w", err)
	}
	cfg.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"))
	cfg.AllowedOrigins = splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var err error
	if c.JWTSecret == "" {
		err = errors.Join(err, errors.New("JWT_SECRET environment variable is required"))
	}
	if c.JWTTTL <= 0 {
		err = errors.Join(err, errors.New("JWT_TTL must be positive"))
	}
	switch c.StorageDriver {
	case DriverMySQL:
		if c.MySQLDSN == "" {
			err = errors.Join(err, errors.New("MYSQL_DSN is required for the mysql driver"))
		}
	case DriverMemory:
	default:
		err = errors.Join(err, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}
	return err
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
