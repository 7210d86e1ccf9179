package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPaymentPayload(t *testing.T) {
	pending := &PendingPayment{Username: "alice", Amount: "250", CorrelationID: "TXN_alice_1_abcdef"}

	full := NewPaymentPayload(&PaymentResult{
		Status:        PaymentStatusSuccess,
		Amount:        "250.00",
		CorrelationID: "TXN_alice_1_abcdef",
		ProviderTxnID: "BANK-9",
		PaymentMode:   "UPI",
	}, pending)
	assert.Equal(t, PaymentPayload{
		Type:        PaymentPayloadType,
		Amount:      "250.00",
		ClientTxnID: "TXN_alice_1_abcdef",
		BankTxnID:   "BANK-9",
		PaymentMode: "UPI",
		Status:      PaymentStatusSuccess,
	}, full)

	sparse := NewPaymentPayload(&PaymentResult{Status: PaymentStatusSuccess}, pending)
	assert.Equal(t, "250", sparse.Amount)
	assert.Equal(t, "TXN_alice_1_abcdef", sparse.ClientTxnID)
}

func TestPaymentResultSucceeded(t *testing.T) {
	var missing *PaymentResult
	assert.False(t, missing.Succeeded())
	assert.False(t, (&PaymentResult{Status: PaymentStatusFailure}).Succeeded())
	assert.True(t, (&PaymentResult{Status: PaymentStatusSuccess}).Succeeded())
}

func TestIdentityCanAccessConversation(t *testing.T) {
	support := Identity{Username: "support1", Role: RoleSupport}
	client := Identity{Username: "alice", Role: RoleClient}

	assert.True(t, support.CanAccessConversation("alice"))
	assert.False(t, support.CanAccessConversation("support1"))
	assert.False(t, support.CanAccessConversation(""))
	assert.True(t, client.CanAccessConversation("alice"))
	assert.False(t, client.CanAccessConversation("bob"))
	assert.False(t, Identity{Username: "alice", Role: "admin"}.CanAccessConversation("alice"))
}
