package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/bug-tracker/internal/domain"
)

// RequireRole lets callers holding one of the allowed roles through. Anyone
// else is redirected to fallback, matching how refused bug actions behave.
func RequireRole(fallback string, allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		user, ok := UserFromContext(c)
		if !ok {
			return RedirectToLogin(c)
		}
		if _, exists := allowedSet[user.Role]; !exists {
			return c.Redirect(fallback, fiber.StatusSeeOther)
		}
		return c.Next()
	}
}
