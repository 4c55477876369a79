package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/countplus7/wbot-backend-sub000/pkg/apperr"
)

// AdminAuth validates the bearer token on administrative routes (label
// bulk-loads, FAQ refreshes). Tokens are HS256-signed with a shared secret;
// the admin surface is operator-facing, not customer-facing.
func AdminAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return apperr.Unauthorized("missing authorization header")
		}

		raw := strings.TrimPrefix(header, "Bearer ")
		if raw == header {
			return apperr.Unauthorized("authorization header must be a bearer token")
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, apperr.InvalidToken("unexpected signing method")
			}
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			return apperr.InvalidToken("invalid or expired token")
		}

		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if sub, _ := claims["sub"].(string); sub != "" {
				c.Locals("admin_subject", sub)
			}
		}

		return c.Next()
	}
}
