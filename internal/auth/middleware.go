package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/exchange-chat-service/internal/domain"
	"github.com/spec-kit/exchange-chat-service/internal/repository"
	apperrors "github.com/spec-kit/exchange-chat-service/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// AuthMiddleware validates bearer tokens and loads the caller's directory
// record. Failures are always reported as a generic authentication error; the
// reason is never distinguished to the client.
type AuthMiddleware struct {
	tokens *TokenManager
	users  repository.UserRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, users repository.UserRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	user, err := m.authenticate(c)
	if err != nil {
		return err
	}
	c.Locals(principalKey, user)
	return c.Next()
}

// Authenticate resolves the caller from the request without continuing the
// chain. The websocket upgrade handler uses it before hijacking the
// connection.
func (m *AuthMiddleware) Authenticate(c *fiber.Ctx) (*domain.User, error) {
	return m.authenticate(c)
}

func (m *AuthMiddleware) authenticate(c *fiber.Ctx) (*domain.User, error) {
	token := bearerToken(c)
	if token == "" {
		return nil, apperrors.NewUnauthorized("authentication error")
	}

	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return nil, apperrors.NewUnauthorized("authentication error")
	}

	user, err := m.users.GetByID(c.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("authentication error")
		}
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

// bearerToken pulls the credential from the Authorization header, falling
// back to the token query parameter for websocket clients that cannot set
// headers.
func bearerToken(c *fiber.Ctx) string {
	header := c.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}

// UserFromContext retrieves the authenticated user.
func UserFromContext(c *fiber.Ctx) (*domain.User, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	user, ok := val.(*domain.User)
	return user, ok
}
