package auth

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

const (
	sessionTokenKey = "auth_session_token"
	// SessionHeader carries the session token; it wins over body and query.
	SessionHeader = "SessionID"
)

type sessionBody struct {
	SessionID string `json:"SessionID"`
}

// ExtractSessionToken returns the caller's session token, looking at the
// SessionID header, then the JSON body field, then the query parameter.
func ExtractSessionToken(c *fiber.Ctx) string {
	if v := strings.TrimSpace(c.Get(SessionHeader)); v != "" {
		return utils.CopyString(v)
	}
	if body := c.Body(); len(body) > 0 {
		var payload sessionBody
		if err := json.Unmarshal(body, &payload); err == nil {
			if v := strings.TrimSpace(payload.SessionID); v != "" {
				return v
			}
		}
	}
	return utils.CopyString(strings.TrimSpace(c.Query(SessionHeader)))
}

// SessionToken stores the extracted token in the request locals. Validation
// is left to the gateway, which knows which operations require a session.
func SessionToken() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(sessionTokenKey, ExtractSessionToken(c))
		return c.Next()
	}
}

// SessionTokenFromContext retrieves the token stored by SessionToken.
func SessionTokenFromContext(c *fiber.Ctx) string {
	if v, ok := c.Locals(sessionTokenKey).(string); ok {
		return v
	}
	return ExtractSessionToken(c)
}
