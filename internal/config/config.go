package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	DBSource string
	Port     string
	Env      string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Shared secret with the payment processor; signs every webhook payload.
	ProcessorServerKey string
	ProcessorSandbox   bool

	JWTSecret string
}

func Load() (*Config, error) {
	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	serverKey := os.Getenv("PROCESSOR_SERVER_KEY")
	if serverKey == "" {
		return nil, fmt.Errorf("PROCESSOR_SERVER_KEY environment variable is required")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		redisDB = n
	}

	return &Config{
		DBSource:           dbSource,
		Port:               port,
		Env:                env,
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            redisDB,
		ProcessorServerKey: serverKey,
		ProcessorSandbox:   env != "production",
		JWTSecret:          jwtSecret,
	}, nil
}
