package usecase

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"github.com/benbjohnson/clock"

	"supportchat/internal/domain/entity"
	"supportchat/internal/domain/service"
	"supportchat/internal/infrastructure/metrics"
	"supportchat/internal/infrastructure/ratelimit"
	"supportchat/pkg/errors"
	"supportchat/pkg/logger"
)

var amountPattern = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)

const txnSuffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

type PaymentUseCase struct {
	gateway     service.PaymentGateway
	messages    *MessageStreamUseCase
	rateLimiter *ratelimit.RateLimiter
	clock       clock.Clock
	callbackURL string
	pendingTTL  time.Duration
}

func NewPaymentUseCase(
	gateway service.PaymentGateway,
	messages *MessageStreamUseCase,
	rateLimiter *ratelimit.RateLimiter,
	clk clock.Clock,
	callbackURL string,
	pendingTTL time.Duration,
) *PaymentUseCase {
	return &PaymentUseCase{
		gateway:     gateway,
		messages:    messages,
		rateLimiter: rateLimiter,
		clock:       clk,
		callbackURL: callbackURL,
		pendingTTL:  pendingTTL,
	}
}

// Enabled reports whether a provider is configured. Without one every payment
// operation answers PAYMENT_FAILED and the rest of the gateway keeps running.
func (uc *PaymentUseCase) Enabled() bool {
	return uc.gateway != nil
}

type InitiatePaymentResult struct {
	Session *entity.PaymentSession
	Pending *entity.PendingPayment
}

// InitiatePayment asks the provider for a session. The caller keeps Pending
// until the provider redirects back.
func (uc *PaymentUseCase) InitiatePayment(ctx context.Context, username, amount string) (*InitiatePaymentResult, error) {
	if !uc.Enabled() {
		return nil, errors.PaymentFailed("Payments are not available", nil)
	}
	if !amountPattern.MatchString(amount) || isZeroAmount(amount) {
		return nil, errors.BadRequest("Amount must be a positive number", nil)
	}

	if uc.rateLimiter != nil {
		if allowed, _ := uc.rateLimiter.Allow(username, ratelimit.ActionPayment); !allowed {
			return nil, errors.TooManyRequests("Too many payment attempts")
		}
	}

	now := uc.clock.Now()
	txnID, err := newClientTxnID(username, now)
	if err != nil {
		return nil, errors.Internal("Failed to generate transaction id", err)
	}

	session, err := uc.gateway.CreateSession(ctx, service.PaymentSessionRequest{
		ClientTxnID: txnID,
		Amount:      amount,
		PayerName:   username,
		CallbackURL: uc.callbackURL,
	})
	if err != nil {
		return nil, errors.PaymentFailed("Failed to start payment", err)
	}

	return &InitiatePaymentResult{
		Session: session,
		Pending: &entity.PendingPayment{
			Username:      username,
			Amount:        amount,
			CorrelationID: txnID,
			ExpiresAt:     now.Add(uc.pendingTTL),
		},
	}, nil
}

// OnPaymentResult turns a provider redirect into at most one payment message in
// the payer's own conversation. Anything but a matching success is
// PAYMENT_FAILED and writes nothing.
func (uc *PaymentUseCase) OnPaymentResult(ctx context.Context, pending *entity.PendingPayment, encResponse string) (*entity.Message, error) {
	if !uc.Enabled() {
		metrics.RecordPaymentOutcome("disabled")
		return nil, errors.PaymentFailed("Payments are not available", nil)
	}
	if pending == nil {
		metrics.RecordPaymentOutcome("no_pending")
		return nil, errors.PaymentFailed("No payment in progress", nil)
	}
	if !uc.clock.Now().Before(pending.ExpiresAt) {
		metrics.RecordPaymentOutcome("expired")
		return nil, errors.PaymentFailed("Payment session expired", nil)
	}
	if encResponse == "" {
		metrics.RecordPaymentOutcome("invalid")
		return nil, errors.PaymentFailed("Missing payment response", nil)
	}

	result, err := uc.gateway.DecodeResult(encResponse)
	if err != nil {
		metrics.RecordPaymentOutcome("invalid")
		return nil, errors.PaymentFailed("Could not read payment response", err)
	}

	if result.CorrelationID != pending.CorrelationID {
		metrics.RecordPaymentOutcome("mismatch")
		logger.Warn("Payment response %s does not match pending %s for %s", result.CorrelationID, pending.CorrelationID, pending.Username)
		return nil, errors.PaymentFailed("Payment does not match the pending transaction", nil)
	}

	if !result.Succeeded() {
		metrics.RecordPaymentOutcome("declined")
		return nil, errors.PaymentFailed(fmt.Sprintf("Payment %s", result.Status), nil)
	}

	payload := entity.NewPaymentPayload(result, pending)
	msg, err := uc.messages.SendPayment(ctx, pending.Username, pending.Username, payload)
	if err != nil {
		metrics.RecordPaymentOutcome("send_failed")
		return nil, errors.PaymentFailed("Payment succeeded but could not be recorded", err)
	}

	metrics.RecordPaymentOutcome("success")
	logger.Info("Recorded payment %s for %s", payload.ClientTxnID, pending.Username)
	return msg, nil
}

// newClientTxnID returns TXN_{username}_{unixMillis}_{6 random [a-z0-9]}.
func newClientTxnID(username string, now time.Time) (string, error) {
	suffix := make([]byte, 6)
	max := big.NewInt(int64(len(txnSuffixAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		suffix[i] = txnSuffixAlphabet[n.Int64()]
	}
	return fmt.Sprintf("TXN_%s_%d_%s", username, now.UnixMilli(), suffix), nil
}

func isZeroAmount(amount string) bool {
	for _, r := range amount {
		if r != '0' && r != '.' {
			return false
		}
	}
	return true
}
