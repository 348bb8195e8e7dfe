package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	j := NewJWT("secret")
	tok, err := j.Sign(42)
	require.NoError(t, err)

	id, err := j.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)

	_, err = NewJWT("other").Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTExpiry(t *testing.T) {
	j := NewJWT("secret")
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return issued }
	tok, err := j.Sign(7)
	require.NoError(t, err)

	j.now = func() time.Time { return issued.Add(DefaultTokenTTL + time.Minute) }
	_, err = j.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPassword(t *testing.T) {
	h, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, ComparePassword(h, "correct horse"))
	assert.False(t, ComparePassword(h, "wrong"))
}

func TestValidTimezone(t *testing.T) {
	assert.Equal(t, "UTC", ValidTimezone(""))
	assert.Equal(t, "UTC", ValidTimezone("Mars/Olympus"))
	assert.Equal(t, "America/New_York", ValidTimezone(" America/New_York "))
}

func TestRequireAuth(t *testing.T) {
	j := NewJWT("secret")
	tok, err := j.Sign(9)
	require.NoError(t, err)

	var seen uint64
	h := RequireAuth(j)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(9), seen)
}
