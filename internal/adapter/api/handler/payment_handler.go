package handler

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"supportchat/internal/adapter/api/middleware"
	"supportchat/internal/domain/entity"
	"supportchat/internal/infrastructure/token"
	"supportchat/internal/infrastructure/websocket"
	"supportchat/internal/usecase"
	"supportchat/pkg/errors"
	"supportchat/pkg/logger"
	"supportchat/pkg/response"
)

const (
	// PendingPaymentCookieName holds the signed pending payment during the
	// provider round trip.
	PendingPaymentCookieName = "chat_pending_payment"

	pendingCookiePath = "/v1/payments"
)

type PaymentHandler struct {
	payments  *usecase.PaymentUseCase
	signer    *token.Signer
	cookies   CookieConfig
	returnURL string
}

func NewPaymentHandler(payments *usecase.PaymentUseCase, signer *token.Signer, cookies CookieConfig, returnURL string) *PaymentHandler {
	return &PaymentHandler{
		payments:  payments,
		signer:    signer,
		cookies:   cookies,
		returnURL: returnURL,
	}
}

type initiatePaymentRequest struct {
	Amount string `json:"amount" validate:"required"`
}

type paymentResultResponse struct {
	Status  string                `json:"status"`
	Message websocket.MessageView `json:"message"`
}

// InitiatePayment starts a deposit for the calling client. The browser posts
// the returned session fields to the provider.
func (h *PaymentHandler) InitiatePayment(c echo.Context) error {
	identity := middleware.IdentityFrom(c)
	if identity == nil || identity.Role != entity.RoleClient {
		return response.Error(c, errors.Forbidden("Only clients can make deposits", nil))
	}

	var req initiatePaymentRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	result, err := h.payments.InitiatePayment(c.Request().Context(), identity.Username, req.Amount)
	if err != nil {
		return response.Error(c, err)
	}

	raw, err := h.signer.IssuePending(result.Pending)
	if err != nil {
		return response.Error(c, errors.Internal("Failed to store pending payment", err))
	}
	h.cookies.setCookie(c, PendingPaymentCookieName, raw, pendingCookiePath, result.Pending.ExpiresAt, true)

	return response.Success(c, result.Session)
}

// Callback receives the provider redirect. The pending cookie is cleared on
// every outcome, so a reload can never record the payment twice.
func (h *PaymentHandler) Callback(c echo.Context) error {
	encResponse := c.FormValue("encResponse")
	pending := h.pendingFrom(c)
	h.cookies.clearCookie(c, PendingPaymentCookieName, pendingCookiePath)

	msg, err := h.payments.OnPaymentResult(c.Request().Context(), pending, encResponse)

	if h.returnURL != "" {
		outcome := "success"
		if err != nil {
			outcome = "failed"
		}
		return c.Redirect(http.StatusSeeOther, withQuery(h.returnURL, "payment", outcome))
	}

	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, paymentResultResponse{
		Status:  entity.PaymentStatusSuccess,
		Message: websocket.NewMessageView(msg),
	})
}

func (h *PaymentHandler) pendingFrom(c echo.Context) *entity.PendingPayment {
	cookie, err := c.Cookie(PendingPaymentCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	pending, err := h.signer.ParsePending(cookie.Value)
	if err != nil {
		logger.Warn("Discarding pending payment cookie: %v", err)
		return nil
	}
	return pending
}

func withQuery(rawURL, key, value string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
