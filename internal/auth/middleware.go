package auth

import (
	"errors"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/bug-tracker/internal/domain"
	"github.com/spec-kit/bug-tracker/internal/repository"
	apperrors "github.com/spec-kit/bug-tracker/pkg/util"
)

const (
	userKey   = "auth_user"
	claimsKey = "auth_claims"

	// LoginPath is where unauthenticated callers are sent.
	LoginPath = "/auth/login"
)

// AuthMiddleware resolves the caller from a bearer token or session cookie.
type AuthMiddleware struct {
	tokens      *TokenManager
	users       repository.UserRepository
	revocations Revocations
	cookieName  string
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, users repository.UserRepository, revocations Revocations, cookieName string) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users, revocations: revocations, cookieName: cookieName}
}

// Handle enforces authentication for protected routes. Anonymous callers
// are redirected to the login route with the requested URL in "next".
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	raw := m.tokenFromRequest(c)
	if raw == "" {
		return RedirectToLogin(c)
	}

	claims, err := m.tokens.ParseToken(raw)
	if err != nil {
		return RedirectToLogin(c)
	}

	revoked, err := m.revocations.IsRevoked(c.UserContext(), claims.ID)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if revoked {
		return RedirectToLogin(c)
	}

	user, err := m.users.GetByID(c.UserContext(), claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return RedirectToLogin(c)
		}
		return apperrors.MapError(err)
	}
	if !user.IsActive {
		return RedirectToLogin(c)
	}

	c.Locals(userKey, user)
	c.Locals(claimsKey, claims)
	return c.Next()
}

func (m *AuthMiddleware) tokenFromRequest(c *fiber.Ctx) string {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Cookies(m.cookieName)
}

// RedirectToLogin sends the caller to the login route, preserving the
// original destination for the post-login redirect.
func RedirectToLogin(c *fiber.Ctx) error {
	return c.Redirect(LoginPath+"?next="+url.QueryEscape(c.OriginalURL()), fiber.StatusFound)
}

// UserFromContext retrieves the authenticated user.
func UserFromContext(c *fiber.Ctx) (*domain.User, bool) {
	user, ok := c.Locals(userKey).(*domain.User)
	return user, ok && user != nil
}

// ClaimsFromContext retrieves the claims of the current session token.
func ClaimsFromContext(c *fiber.Ctx) (*Claims, bool) {
	claims, ok := c.Locals(claimsKey).(*Claims)
	return claims, ok && claims != nil
}
