package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTokenConfig = TokenConfig{
	Secret:   "test-secret-that-is-long-enough-123",
	Issuer:   "helpmatch-api",
	Audience: "helpmatch-client",
}

func TestIssueAndParseToken(t *testing.T) {
	token, err := IssueToken(testTokenConfig, 42, time.Hour)
	require.NoError(t, err)

	userID, err := ParseToken(testTokenConfig, token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), userID)
}

func TestParseToken_Rejects(t *testing.T) {
	expired, err := IssueToken(testTokenConfig, 1, -time.Minute)
	require.NoError(t, err)

	otherAudience := testTokenConfig
	otherAudience.Audience = "someone-else"
	wrongAud, err := IssueToken(otherAudience, 1, time.Hour)
	require.NoError(t, err)

	otherSecret := testTokenConfig
	otherSecret.Secret = "another-secret-that-is-long-enough"
	wrongSig, err := IssueToken(otherSecret, 1, time.Hour)
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "not-a-number",
		Issuer:    testTokenConfig.Issuer,
		Audience:  jwt.ClaimStrings{testTokenConfig.Audience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testTokenConfig.Secret))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":        expired,
		"wrong audience": wrongAud,
		"wrong secret":   wrongSig,
		"bad subject":    badSubject,
		"garbage":        "abc.def.ghi",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseToken(testTokenConfig, token)
			assert.Error(t, err)
		})
	}
}

func TestAuthRequired(t *testing.T) {
	app := fiber.New()
	app.Get("/me", AuthRequired(testTokenConfig), func(c *fiber.Ctx) error {
		return c.SendString(strconv.FormatUint(uint64(UserID(c)), 10))
	})

	token, err := IssueToken(testTokenConfig, 7, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer " + token, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}
