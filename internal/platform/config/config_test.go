package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, BackendMemory, cfg.RosterBackend)
	assert.False(t, cfg.AllowOrganizerRegistration)
	assert.Equal(t, 3, cfg.MaxConflictRetries)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "dropin.roster.audit", cfg.Audit.KafkaTopic)
	assert.Empty(t, cfg.Audit.KafkaBrokers)
	assert.Equal(t, 20, cfg.Auth.Requests)
	assert.Equal(t, time.Minute, cfg.Auth.Window)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("ROSTER_BACKEND", "postgres")
	t.Setenv("POSTGRES_DSN", "postgres://dropin@localhost/dropin")
	t.Setenv("ALLOW_ORGANIZER_REGISTRATION", "true")
	t.Setenv("REGISTRATION_MAX_CONFLICT_RETRIES", "5")
	t.Setenv("AUDIT_KAFKA_BROKERS", "k1:9092, k2:9092,,k1:9092")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, BackendPostgres, cfg.RosterBackend)
	assert.Equal(t, "pgx", cfg.Postgres.Driver)
	assert.True(t, cfg.AllowOrganizerRegistration)
	assert.Equal(t, 5, cfg.MaxConflictRetries)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Audit.KafkaBrokers)
}

func TestValidate(t *testing.T) {
	base := func() Server {
		return Server{
			RosterBackend: BackendMemory,
			JWTSigningKey: "0123456789abcdef",
			TokenTTL:      time.Hour,
			Auth:          AuthLimit{Requests: 20, Window: time.Minute},
		}
	}

	t.Run("postgres needs a dsn", func(t *testing.T) {
		cfg := base()
		cfg.RosterBackend = BackendPostgres
		assert.Error(t, cfg.Validate())
	})

	t.Run("redis needs a url", func(t *testing.T) {
		cfg := base()
		cfg.RosterBackend = BackendRedis
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := base()
		cfg.RosterBackend = "sqlite"
		assert.Error(t, cfg.Validate())
	})

	t.Run("short signing key", func(t *testing.T) {
		cfg := base()
		cfg.JWTSigningKey = "short"
		assert.Error(t, cfg.Validate())
	})

	t.Run("negative retries", func(t *testing.T) {
		cfg := base()
		cfg.MaxConflictRetries = -1
		assert.Error(t, cfg.Validate())
	})

	t.Run("auth limit must be positive unless disabled", func(t *testing.T) {
		cfg := base()
		cfg.Auth.Requests = 0
		assert.Error(t, cfg.Validate())
		cfg.Auth.Disabled = true
		assert.NoError(t, cfg.Validate())
	})

	t.Run("memory defaults pass", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})
}

func TestLoadSeed(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		seed, err := LoadSeed("")
		require.NoError(t, err)
		assert.Empty(t, seed.Organizers)
	})

	t.Run("parses organizers and students", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "seed.yaml")
		body := `
organizers:
  - username: coach
    password: s3cret-pass
    first_name: Dana
students:
  - student_id: "A0001"
    first_name: Sam
    last_name: Lee
    email: sam@example.com
    program: Engineering
`
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

		seed, err := LoadSeed(path)
		require.NoError(t, err)
		require.Len(t, seed.Organizers, 1)
		assert.Equal(t, "coach", seed.Organizers[0].Username)
		assert.Equal(t, "Dana", seed.Organizers[0].FirstName)
		require.Len(t, seed.Students, 1)
		assert.Equal(t, "A0001", seed.Students[0].StudentID)
	})

	t.Run("rejects organizer without password", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "seed.yaml")
		require.NoError(t, os.WriteFile(path, []byte("organizers:\n  - username: coach\n"), 0o600))
		_, err := LoadSeed(path)
		assert.Error(t, err)
	})
}
