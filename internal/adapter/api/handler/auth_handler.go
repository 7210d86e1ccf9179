package handler

import (
	"time"

	"github.com/labstack/echo/v4"

	"supportchat/internal/adapter/api/middleware"
	"supportchat/internal/domain/entity"
	"supportchat/internal/usecase"
	"supportchat/pkg/errors"
	"supportchat/pkg/response"
)

type AuthHandler struct {
	authUseCase *usecase.AuthUseCase
	cookies     CookieConfig
}

func NewAuthHandler(authUseCase *usecase.AuthUseCase, cookies CookieConfig) *AuthHandler {
	return &AuthHandler{
		authUseCase: authUseCase,
		cookies:     cookies,
	}
}

type loginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	User      *entity.Identity `json:"user"`
}

// Login verifies the credentials and persists the identity in the auth cookie.
// The token is returned as well for non-browser clients.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	result, err := h.authUseCase.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return response.Error(c, err)
	}

	h.cookies.setCookie(c, middleware.AuthCookieName, result.Token, "/", result.ExpiresAt, false)

	return response.Success(c, authResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User:      result.Identity,
	})
}

func (h *AuthHandler) Logout(c echo.Context) error {
	if err := h.authUseCase.Logout(c.Request().Context(), middleware.IdentityFrom(c)); err != nil {
		return response.Error(c, err)
	}

	h.cookies.clearCookie(c, middleware.AuthCookieName, "/")
	return response.Success(c, map[string]bool{"logged_out": true})
}

func (h *AuthHandler) Me(c echo.Context) error {
	return response.Success(c, middleware.IdentityFrom(c))
}
