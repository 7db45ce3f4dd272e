package middleware

import (
	"errors"
	"strings"

	"codezen/internal/config"
	"codezen/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// AuthorLocalKey is the Fiber locals key holding the author name resolved from a bearer token.
const AuthorLocalKey = "author"

var cfg *config.Config

// InitMiddleware hands the loaded config to middleware that needs secrets.
func InitMiddleware(c *config.Config) {
	cfg = c
}

// authorClaims is the token shape clients send. Username is optional; the
// registered subject is used when it is missing.
type authorClaims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

func (c *authorClaims) author() string {
	if name := strings.TrimSpace(c.Username); name != "" {
		return name
	}
	return strings.TrimSpace(c.Subject)
}

var errNoSecret = errors.New("JWT_SECRET is empty")

func bearerToken(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != "" && !strings.Contains(token, " ")
}

func parseAuthor(raw string) (string, error) {
	if cfg == nil || cfg.JWTSecret == "" {
		return "", errNoSecret
	}
	claims := &authorClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return []byte(cfg.JWTSecret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return "", err
	}
	return claims.author(), nil
}

// OptionalAuthor resolves the author of a write from an optional bearer token.
// Requests without an Authorization header pass through anonymously. A header
// that is present but unusable is rejected so clients notice broken tokens.
func OptionalAuthor(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return c.Next()
	}

	raw, ok := bearerToken(header)
	if !ok {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Invalid authorization header format", nil))
	}

	author, err := parseAuthor(raw)
	switch {
	case errors.Is(err, errNoSecret):
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Token authentication is not configured", nil))
	case err != nil:
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Invalid or expired token", nil))
	}

	if author != "" {
		c.Locals(AuthorLocalKey, author)
	}
	return c.Next()
}

// AuthorFrom returns the author resolved by OptionalAuthor, or "" when the request is anonymous.
func AuthorFrom(c *fiber.Ctx) string {
	author, _ := c.Locals(AuthorLocalKey).(string)
	return author
}
