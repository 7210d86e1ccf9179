package entity

import (
	"encoding/json"
	"time"
)

const (
	PaymentStatusSuccess = "SUCCESS"
	PaymentStatusFailure = "FAILURE"

	PaymentPayloadType = "payment"
)

// PaymentSession is what the browser needs to post the payer to the provider.
// It carries no provider secrets.
type PaymentSession struct {
	Action        string            `json:"action"`
	Fields        map[string]string `json:"fields"`
	CorrelationID string            `json:"correlation_id"`
	Amount        string            `json:"amount"`
	PayerName     string            `json:"payer_name"`
}

// PendingPayment correlates a provider redirect with the payer who started it.
// It lives only as long as the redirect round trip.
type PendingPayment struct {
	Username      string    `json:"username"`
	Amount        string    `json:"amount"`
	CorrelationID string    `json:"client_txn_id"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// PaymentResult is the provider's decoded answer.
type PaymentResult struct {
	Status        string `json:"status"`
	Amount        string `json:"amount"`
	CorrelationID string `json:"client_txn_id"`
	ProviderTxnID string `json:"provider_txn_id"`
	PaymentMode   string `json:"payment_mode"`
}

func (r *PaymentResult) Succeeded() bool {
	return r != nil && r.Status == PaymentStatusSuccess
}

// PaymentPayload is serialized into Message.Text for kind=payment messages.
type PaymentPayload struct {
	Type        string `json:"type"`
	Amount      string `json:"amount"`
	ClientTxnID string `json:"clientTxnId"`
	BankTxnID   string `json:"bankTxnId"`
	PaymentMode string `json:"paymentMode"`
	Status      string `json:"status"`
}

func NewPaymentPayload(result *PaymentResult, pending *PendingPayment) PaymentPayload {
	payload := PaymentPayload{
		Type:        PaymentPayloadType,
		Amount:      result.Amount,
		ClientTxnID: result.CorrelationID,
		BankTxnID:   result.ProviderTxnID,
		PaymentMode: result.PaymentMode,
		Status:      result.Status,
	}
	if payload.Amount == "" && pending != nil {
		payload.Amount = pending.Amount
	}
	if payload.ClientTxnID == "" && pending != nil {
		payload.ClientTxnID = pending.CorrelationID
	}
	return payload
}

func (p PaymentPayload) Encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
