package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/exchange-chat-service/pkg/util/errorutil"
)

// RequireModerator ensures the caller may claim and service rooms.
func RequireModerator() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := UserFromContext(c)
		if !ok || !user.Role.CanModerate() {
			return apperrors.NewForbidden("moderator role required")
		}
		return c.Next()
	}
}
