package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"supportchat/internal/domain/entity"
	"supportchat/internal/usecase"
	"supportchat/pkg/errors"
	"supportchat/pkg/response"
)

const (
	// AuthCookieName holds the signed identity between visits.
	AuthCookieName = "chat_auth"

	identityKey = "identity"
)

type AuthMiddleware struct {
	authUseCase *usecase.AuthUseCase
}

func NewAuthMiddleware(authUseCase *usecase.AuthUseCase) *AuthMiddleware {
	return &AuthMiddleware{
		authUseCase: authUseCase,
	}
}

// Authenticate accepts a bearer token, the auth cookie, or a token query
// parameter (browsers cannot set headers on websocket upgrades).
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := tokenFrom(c)
		if raw == "" {
			return response.Error(c, errors.Unauthorized("Authentication required", nil))
		}

		identity, err := m.authUseCase.ParseToken(raw)
		if err != nil {
			return response.Error(c, err)
		}

		c.Set(identityKey, identity)
		return next(c)
	}
}

// RequireSupport must run after Authenticate.
func (m *AuthMiddleware) RequireSupport(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		identity := IdentityFrom(c)
		if identity == nil {
			return response.Error(c, errors.Unauthorized("Authentication required", nil))
		}
		if !identity.IsSupport() {
			return response.Error(c, errors.Forbidden("Support role required", nil))
		}
		return next(c)
	}
}

// IdentityFrom returns the identity set by Authenticate, or nil.
func IdentityFrom(c echo.Context) *entity.Identity {
	identity, _ := c.Get(identityKey).(*entity.Identity)
	return identity
}

func tokenFrom(c echo.Context) string {
	if header := c.Request().Header.Get(echo.HeaderAuthorization); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}

	if cookie, err := c.Cookie(AuthCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	return c.QueryParam("token")
}
