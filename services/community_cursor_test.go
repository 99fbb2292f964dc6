package services

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2025, 7, 4, 12, 30, 45, 123456789, time.UTC)
	id := uuid.New()

	gotAt, gotID, err := decodeCursor(encodeCursor(at, id))
	require.NoError(t, err)
	assert.True(t, at.Equal(gotAt))
	assert.Equal(t, id, gotID)
}

func TestCursorNormalizesToUTC(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	at := time.Date(2025, 7, 4, 8, 30, 0, 0, ny)
	gotAt, _, err := decodeCursor(encodeCursor(at, uuid.New()))
	require.NoError(t, err)
	assert.True(t, at.Equal(gotAt), "cursor must preserve the instant regardless of zone")
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	badUUID := base64.RawURLEncoding.EncodeToString([]byte("2025-01-01T00:00:00Z|not-a-uuid"))
	badTime := base64.RawURLEncoding.EncodeToString([]byte("yesterday|" + uuid.New().String()))

	for _, cursor := range []string{
		"not-base64!",
		"bm8gc2VwYXJhdG9y", // decodes but has no separator
		badUUID,
		badTime,
	} {
		_, _, err := decodeCursor(cursor)
		assert.ErrorIs(t, err, ErrValidation, "cursor %q", cursor)
	}
}
