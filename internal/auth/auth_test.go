package auth

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", "ticket-gateway")
	now := time.Now()

	token, err := tm.GenerateToken("key-1", "zsoar", now, now.Add(time.Hour))
	require.NoError(t, err)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "key-1", claims.SessionKey())
	assert.Equal(t, "zsoar", claims.Subject)
}

func TestTokenManager_Rejects(t *testing.T) {
	tm := NewTokenManager("secret", "ticket-gateway")
	now := time.Now()

	expired, err := tm.GenerateToken("key-1", "zsoar", now.Add(-2*time.Hour), now.Add(-time.Hour))
	require.NoError(t, err)

	other, err := NewTokenManager("other", "ticket-gateway").GenerateToken("key-1", "zsoar", now, now.Add(time.Hour))
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{ID: "key-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":   expired,
		"signature": other,
		"none":      noneAlg,
		"garbage":   "not-a-token",
		"empty":     "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := tm.ParseToken(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestStaticValidator(t *testing.T) {
	v, err := NewStaticValidatorFromPassword("zsoar", "s3cret", bcrypt.MinCost)
	require.NoError(t, err)
	ctx := context.Background()

	assert.NoError(t, v.Validate(ctx, "zsoar", "s3cret"))
	assert.ErrorIs(t, v.Validate(ctx, "zsoar", "wrong"), ErrInvalidCredentials)
	assert.ErrorIs(t, v.Validate(ctx, "other", "s3cret"), ErrInvalidCredentials)
	assert.ErrorIs(t, v.Validate(ctx, "", "s3cret"), ErrInvalidCredentials)
	assert.ErrorIs(t, v.Validate(ctx, "zsoar", ""), ErrInvalidCredentials)
}

func TestHashPassword_ClampsCost(t *testing.T) {
	hash, err := HashPassword("pw", 99)
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
	assert.NoError(t, ComparePassword(hash, "pw"))
}

func TestExtractSessionToken_Precedence(t *testing.T) {
	app := fiber.New()
	app.All("/", SessionToken(), func(c *fiber.Ctx) error {
		return c.SendString(SessionTokenFromContext(c))
	})

	cases := []struct {
		name   string
		header string
		body   string
		query  string
		want   string
	}{
		{name: "header wins", header: "h", body: `{"SessionID":"b"}`, query: "q", want: "h"},
		{name: "body over query", body: `{"SessionID":"b"}`, query: "q", want: "b"},
		{name: "query only", query: "q", want: "q"},
		{name: "non json body falls through", body: "junk", query: "q", want: "q"},
		{name: "none", want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			target := "/"
			if tc.query != "" {
				target += "?SessionID=" + tc.query
			}
			req := httptest.NewRequest("POST", target, strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			if tc.header != "" {
				req.Header.Set(SessionHeader, tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(body))
		})
	}
}

func TestSessionPolicy(t *testing.T) {
	strict := SessionPolicy{CreateTicketRequiresSession: true}
	lenient := SessionPolicy{}

	assert.True(t, strict.RequiresSession(OpCreateTicket))
	assert.False(t, lenient.RequiresSession(OpCreateTicket))
	assert.False(t, strict.RequiresSession(OpCreateSession))
	assert.False(t, strict.RequiresSession(OpAddContext))
	for _, op := range []Operation{OpUpdateTicket, OpGetTicket, OpSearchTickets} {
		assert.True(t, lenient.RequiresSession(op), op)
	}
}
