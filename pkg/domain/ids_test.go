package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "dropin/pkg/domain-errors"
)

// TestParseUUID_Invariants validates that ids are valid, non-empty, non-nil UUIDs.
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseUserID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseGameID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseGameID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseUserID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, UserID(validUUID), id)
		assert.Equal(t, validUUID.String(), id.String())
	})
}

func TestParseID_TrustBoundary(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE games;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errUser := ParseUserID(tt.input)
			_, errGame := ParseGameID(tt.input)
			if tt.wantErr {
				require.Error(t, errUser)
				require.Error(t, errGame)
				assert.True(t, dErrors.HasCode(errGame, dErrors.CodeInvalidArgument))
			} else {
				require.NoError(t, errUser)
				require.NoError(t, errGame)
			}
		})
	}
}

func TestRole(t *testing.T) {
	t.Run("parses known roles", func(t *testing.T) {
		r, err := ParseRole("organizer")
		require.NoError(t, err)
		assert.True(t, r.IsOrganizer())

		r, err = ParseRole("member")
		require.NoError(t, err)
		assert.False(t, r.IsOrganizer())
	})

	t.Run("rejects client-side role names", func(t *testing.T) {
		_, err := ParseRole("admin")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})
}
