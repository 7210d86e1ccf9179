package service

import (
	"context"

	"supportchat/internal/domain/entity"
)

// PaymentSessionRequest is what the server knows when a payer starts a deposit.
type PaymentSessionRequest struct {
	ClientTxnID string
	Amount      string
	PayerName   string
	CallbackURL string
}

// PaymentGateway hides the provider protocol. Sessions never expose provider
// credentials to the browser.
type PaymentGateway interface {
	CreateSession(ctx context.Context, req PaymentSessionRequest) (*entity.PaymentSession, error)
	DecodeResult(encResponse string) (*entity.PaymentResult, error)
}
