package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Roster backends selectable with ROSTER_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Server captures process level configuration.
type Server struct {
	Addr           string        `env:"DROPIN_ADDR" envDefault:":8080"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	ShutdownGrace  time.Duration `env:"SHUTDOWN_GRACE" envDefault:"15s"`

	JWTSigningKey string        `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer     string        `env:"JWT_ISSUER" envDefault:"dropin"`
	TokenTTL      time.Duration `env:"TOKEN_TTL" envDefault:"12h"`
	SeedFile      string        `env:"SEED_FILE"`

	RosterBackend string `env:"ROSTER_BACKEND" envDefault:"memory"`

	// AllowOrganizerRegistration lets organizers take seats like members.
	AllowOrganizerRegistration bool `env:"ALLOW_ORGANIZER_REGISTRATION" envDefault:"false"`
	MaxConflictRetries         int  `env:"REGISTRATION_MAX_CONFLICT_RETRIES" envDefault:"3"`

	Postgres PostgresConfig `envPrefix:"POSTGRES_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Audit    AuditConfig    `envPrefix:"AUDIT_"`
	Auth     AuthLimit      `envPrefix:"AUTH_RATE_LIMIT_"`

	OTelEndpoint string `env:"OTEL_EXPORTER_ENDPOINT"`
	ServiceName  string `env:"OTEL_SERVICE_NAME" envDefault:"dropin"`
}

type PostgresConfig struct {
	DSN             string        `env:"DSN"`
	Driver          string        `env:"DRIVER" envDefault:"pgx"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
}

type RedisConfig struct {
	URL          string        `env:"URL"`
	KeyPrefix    string        `env:"KEY_PREFIX" envDefault:"dropin:"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

// AuditConfig selects where roster audit events go. With no brokers events
// stay in process.
type AuditConfig struct {
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"dropin.roster.audit"`
	BufferSize   int      `env:"BUFFER_SIZE" envDefault:"1024"`
}

// AuthLimit bounds POST /auth calls per client IP. Shared through Redis
// when the roster backend is redis.
type AuthLimit struct {
	Disabled bool          `env:"DISABLED" envDefault:"false"`
	Requests int           `env:"REQUESTS" envDefault:"20"`
	Window   time.Duration `env:"WINDOW" envDefault:"1m"`
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Audit.KafkaBrokers = cleanList(cfg.Audit.KafkaBrokers)
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c Server) Validate() error {
	switch c.RosterBackend {
	case BackendMemory:
	case BackendPostgres:
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			return fmt.Errorf("POSTGRES_DSN is required for the postgres roster backend")
		}
	case BackendRedis:
		if strings.TrimSpace(c.Redis.URL) == "" {
			return fmt.Errorf("REDIS_URL is required for the redis roster backend")
		}
	default:
		return fmt.Errorf("unknown ROSTER_BACKEND %q", c.RosterBackend)
	}
	if c.MaxConflictRetries < 0 {
		return fmt.Errorf("REGISTRATION_MAX_CONFLICT_RETRIES must not be negative")
	}
	if len(c.JWTSigningKey) < 16 {
		return fmt.Errorf("JWT_SIGNING_KEY must be at least 16 bytes")
	}
	if !c.Auth.Disabled && (c.Auth.Requests <= 0 || c.Auth.Window <= 0) {
		return fmt.Errorf("AUTH_RATE_LIMIT_REQUESTS and AUTH_RATE_LIMIT_WINDOW must be positive")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	return nil
}

// cleanList trims entries and drops blanks and repeats, keeping order.
func cleanList(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
