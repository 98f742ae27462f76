package testsupport

import (
	"os"
	"strconv"
	"testing"

	"optibooking/internal/adapters/config"
)

// PostgresConfigFromEnv reads the stay store connection for integration tests.
// The test is skipped when the environment does not provide one.
func PostgresConfigFromEnv(t *testing.T) config.PostgresConfig {
	t.Helper()
	requireEnv(t, "POSTGRES_HOST", "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB")

	return config.PostgresConfig{
		Enabled:  true,
		Host:     os.Getenv("POSTGRES_HOST"),
		Port:     intValue("POSTGRES_PORT", 5432),
		User:     os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		Database: os.Getenv("POSTGRES_DB"),
		SSLMode:  valueWithDefault("POSTGRES_SSL_MODE", "disable"),
		MaxConns: 5,
	}
}

// RedisConfigFromEnv reads the Redis connection for integration tests
func RedisConfigFromEnv(t *testing.T) config.RedisConfig {
	t.Helper()
	requireEnv(t, "REDIS_HOST")

	return config.RedisConfig{
		Enabled:  true,
		Host:     os.Getenv("REDIS_HOST"),
		Port:     intValue("REDIS_PORT", 6379),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       intValue("REDIS_DB", 0),
	}
}

// ClickHouseConfigFromEnv reads the ClickHouse connection for integration tests
func ClickHouseConfigFromEnv(t *testing.T) config.ClickHouseConfig {
	t.Helper()
	requireEnv(t, "CLICKHOUSE_HOST", "CLICKHOUSE_DB")

	return config.ClickHouseConfig{
		Enabled:  true,
		Host:     os.Getenv("CLICKHOUSE_HOST"),
		Port:     intValue("CLICKHOUSE_PORT", 9000),
		User:     valueWithDefault("CLICKHOUSE_USER", "default"),
		Password: os.Getenv("CLICKHOUSE_PASSWORD"),
		Database: os.Getenv("CLICKHOUSE_DB"),
	}
}

func requireEnv(t *testing.T, keys ...string) {
	t.Helper()

	var missing []string
	for _, key := range keys {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		t.Skipf("integration environment missing, set %v to run", missing)
	}
}

func valueWithDefault(key string, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func intValue(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}
