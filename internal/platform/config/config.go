package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Server captures process-level configuration. FromEnv builds it once so main
// stays lean and services receive plain values instead of reading the
// environment themselves.
type Server struct {
	Addr string

	// PostgresDSN enables the Postgres-backed consent and audit stores when
	// set; empty falls back to the in-memory stores (dev / test).
	PostgresDSN string

	Redis RedisConfig

	// BlobPath, AuditPath, and LedgerPath point at the LevelDB directories
	// for the content-addressed blob store, the audit chain, and the record
	// metadata ledger. Empty keeps each in memory.
	BlobPath   string
	AuditPath  string
	LedgerPath string

	// GrantCacheTTL bounds staleness of the read-through consent cache. It
	// must stay well under the minimum meaningful consent duration; revokes
	// invalidate synchronously so the TTL only covers grant visibility.
	GrantCacheTTL time.Duration

	JWTSigningKey string

	// AuditSigningKey keys the HMAC reference signer for audit entries.
	// Production deployments substitute a post-quantum signer and ignore it.
	AuditSigningKey string

	RequestTimeout time.Duration
}

// RedisConfig configures the optional Redis cache backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

const (
	defaultGrantCacheTTL  = 30 * time.Second
	maxGrantCacheTTL      = 60 * time.Second
	defaultRequestTimeout = 30 * time.Second
)

// FromEnv builds a Server config from environment variables. A .env file in
// the working directory is loaded first when present (ignored otherwise).
func FromEnv() Server {
	_ = godotenv.Load()

	addr := os.Getenv("MEDLEDGER_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtKey == "" {
		// Use a default for development - should be overridden in production
		jwtKey = "dev-secret-key-change-in-production"
	}

	auditKey := os.Getenv("AUDIT_SIGNING_KEY")
	if auditKey == "" {
		auditKey = "dev-audit-key-change-in-production"
	}

	ttl := durationFromEnv("GRANT_CACHE_TTL", defaultGrantCacheTTL)
	if ttl > maxGrantCacheTTL {
		ttl = maxGrantCacheTTL
	}

	return Server{
		Addr:            addr,
		PostgresDSN:     os.Getenv("POSTGRES_DSN"),
		Redis:           redisFromEnv(),
		BlobPath:        os.Getenv("BLOB_STORE_PATH"),
		AuditPath:       os.Getenv("AUDIT_STORE_PATH"),
		LedgerPath:      os.Getenv("LEDGER_STORE_PATH"),
		GrantCacheTTL:   ttl,
		JWTSigningKey:   jwtKey,
		AuditSigningKey: auditKey,
		RequestTimeout:  durationFromEnv("REQUEST_TIMEOUT", defaultRequestTimeout),
	}
}

func redisFromEnv() RedisConfig {
	return RedisConfig{
		URL:          os.Getenv("REDIS_URL"),
		PoolSize:     intFromEnv("REDIS_POOL_SIZE", 10),
		MinIdleConns: intFromEnv("REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  durationFromEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  durationFromEnv("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: durationFromEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
	}
}

func intFromEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
