package usecase

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"supportchat/internal/domain/entity"
	"supportchat/internal/domain/service"
	"supportchat/pkg/errors"
)

type paymentFixture struct {
	uc      *PaymentUseCase
	gateway *mockPaymentGateway
	repos   memoryRepos
	clock   *clock.Mock
}

func newPaymentFixture() paymentFixture {
	clk := newMockClock()
	stream, repos := newMessageStream(clk)
	gateway := &mockPaymentGateway{}
	uc := NewPaymentUseCase(gateway, stream, nil, clk, "https://chat.example/v1/payments/callback", 15*time.Minute)
	return paymentFixture{uc: uc, gateway: gateway, repos: repos, clock: clk}
}

func (f paymentFixture) pending() *entity.PendingPayment {
	return &entity.PendingPayment{
		Username:      "alice",
		Amount:        "100",
		CorrelationID: "TXN_alice_1714557600000_abc123",
		ExpiresAt:     f.clock.Now().Add(15 * time.Minute),
	}
}

func (f paymentFixture) messages(t *testing.T) []*entity.Message {
	t.Helper()
	msgs, err := f.repos.chats.GetMessages(context.Background(), "alice")
	require.NoError(t, err)
	return msgs
}

func TestInitiatePayment(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.On("CreateSession", mock.Anything, mock.MatchedBy(func(req service.PaymentSessionRequest) bool {
		return req.Amount == "250" && req.PayerName == "alice" && req.CallbackURL != ""
	})).Return(&entity.PaymentSession{Action: "https://pay.example", CorrelationID: "ignored"}, nil)

	res, err := f.uc.InitiatePayment(context.Background(), "alice", "250")
	require.NoError(t, err)

	pattern := regexp.MustCompile(fmt.Sprintf(`^TXN_alice_%d_[a-z0-9]{6}$`, testNow.UnixMilli()))
	assert.Regexp(t, pattern, res.Pending.CorrelationID)
	assert.Equal(t, "alice", res.Pending.Username)
	assert.Equal(t, "250", res.Pending.Amount)
	assert.Equal(t, testNow.Add(15*time.Minute), res.Pending.ExpiresAt)
	f.gateway.AssertExpectations(t)
}

func TestInitiatePayment_InvalidAmount(t *testing.T) {
	f := newPaymentFixture()

	for _, amount := range []string{"", "0", "0.00", "-5", "abc", "1.234", "1e3"} {
		_, err := f.uc.InitiatePayment(context.Background(), "alice", amount)
		assert.True(t, errors.Is(err, errors.CodeBadRequest), "amount %q", amount)
	}
	f.gateway.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
}

func TestInitiatePayment_GatewayFailure(t *testing.T) {
	f := newPaymentFixture()
	f.gateway.On("CreateSession", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("provider down"))

	_, err := f.uc.InitiatePayment(context.Background(), "alice", "100")
	assert.True(t, errors.Is(err, errors.CodePaymentFailed))
}

func TestOnPaymentResult_SuccessWritesOneMessage(t *testing.T) {
	f := newPaymentFixture()
	pending := f.pending()
	f.gateway.On("DecodeResult", "enc").Return(&entity.PaymentResult{
		Status:        entity.PaymentStatusSuccess,
		Amount:        "100.00",
		CorrelationID: pending.CorrelationID,
		ProviderTxnID: "SP42",
		PaymentMode:   "UPI",
	}, nil)

	msg, err := f.uc.OnPaymentResult(context.Background(), pending, "enc")
	require.NoError(t, err)
	assert.Equal(t, "alice", msg.User)

	msgs := f.messages(t)
	require.Len(t, msgs, 1)
	body, err := msgs[0].Body()
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentBody{Payment: entity.PaymentPayload{
		Type:        entity.PaymentPayloadType,
		Amount:      "100.00",
		ClientTxnID: pending.CorrelationID,
		BankTxnID:   "SP42",
		PaymentMode: "UPI",
		Status:      entity.PaymentStatusSuccess,
	}}, body)
}

func TestOnPaymentResult_FallsBackToPendingAmount(t *testing.T) {
	f := newPaymentFixture()
	pending := f.pending()
	f.gateway.On("DecodeResult", "enc").Return(&entity.PaymentResult{
		Status:        entity.PaymentStatusSuccess,
		CorrelationID: pending.CorrelationID,
	}, nil)

	_, err := f.uc.OnPaymentResult(context.Background(), pending, "enc")
	require.NoError(t, err)

	body, err := f.messages(t)[0].Body()
	require.NoError(t, err)
	assert.Equal(t, "100", body.(entity.PaymentBody).Payment.Amount)
}

func TestOnPaymentResult_FailuresWriteNothing(t *testing.T) {
	cases := []struct {
		name    string
		pending func(f paymentFixture) *entity.PendingPayment
		enc     string
		result  *entity.PaymentResult
		decErr  error
	}{
		{
			name:    "no pending payment",
			pending: func(f paymentFixture) *entity.PendingPayment { return nil },
			enc:     "enc",
		},
		{
			name: "expired pending payment",
			pending: func(f paymentFixture) *entity.PendingPayment {
				p := f.pending()
				p.ExpiresAt = f.clock.Now().Add(-time.Second)
				return p
			},
			enc: "enc",
		},
		{
			name:    "missing response",
			pending: paymentFixture.pending,
		},
		{
			name:    "undecodable response",
			pending: paymentFixture.pending,
			enc:     "enc",
			decErr:  fmt.Errorf("bad padding"),
		},
		{
			name:    "declined",
			pending: paymentFixture.pending,
			enc:     "enc",
			result:  &entity.PaymentResult{Status: "FAILED", CorrelationID: "TXN_alice_1714557600000_abc123"},
		},
		{
			name:    "correlation mismatch",
			pending: paymentFixture.pending,
			enc:     "enc",
			result:  &entity.PaymentResult{Status: entity.PaymentStatusSuccess, CorrelationID: "TXN_mallory_1_zzzzzz"},
		},
		{
			name:    "missing correlation",
			pending: paymentFixture.pending,
			enc:     "enc",
			result:  &entity.PaymentResult{Status: entity.PaymentStatusSuccess},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newPaymentFixture()
			if tc.result != nil || tc.decErr != nil {
				f.gateway.On("DecodeResult", tc.enc).Return(tc.result, tc.decErr)
			}

			_, err := f.uc.OnPaymentResult(context.Background(), tc.pending(f), tc.enc)
			assert.True(t, errors.Is(err, errors.CodePaymentFailed))
			assert.Empty(t, f.messages(t))
		})
	}
}

func TestPayments_DisabledWithoutGateway(t *testing.T) {
	clk := newMockClock()
	stream, repos := newMessageStream(clk)
	uc := NewPaymentUseCase(nil, stream, nil, clk, "", 15*time.Minute)
	assert.False(t, uc.Enabled())

	_, err := uc.InitiatePayment(context.Background(), "alice", "100")
	assert.True(t, errors.Is(err, errors.CodePaymentFailed))

	_, err = uc.OnPaymentResult(context.Background(), &entity.PendingPayment{
		Username:      "alice",
		Amount:        "100",
		CorrelationID: "TXN_alice_1_abc123",
		ExpiresAt:     clk.Now().Add(time.Minute),
	}, "SUCCESS|TXN_alice_1_abc123|100")
	assert.True(t, errors.Is(err, errors.CodePaymentFailed))

	msgs, err := repos.chats.GetMessages(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
