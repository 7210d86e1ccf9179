package token

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportchat/internal/domain/entity"
)

func newTestSigner() (*Signer, *clock.Mock) {
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	return NewSigner("test-secret", clk), clk
}

func TestIdentity_RoundTrip(t *testing.T) {
	s, _ := newTestSigner()

	raw, expiresAt, err := s.IssueIdentity(entity.Identity{Username: "alice", Role: entity.RoleClient}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC), expiresAt)

	identity, err := s.ParseIdentity(raw)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.Username)
	assert.Equal(t, entity.RoleClient, identity.Role)
}

func TestIdentity_Expired(t *testing.T) {
	s, clk := newTestSigner()

	raw, _, err := s.IssueIdentity(entity.Identity{Username: "alice", Role: entity.RoleSupport}, time.Minute)
	require.NoError(t, err)

	clk.Add(2 * time.Minute)
	_, err = s.ParseIdentity(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIdentity_WrongSecret(t *testing.T) {
	s, clk := newTestSigner()
	other := NewSigner("another-secret", clk)

	raw, _, err := other.IssueIdentity(entity.Identity{Username: "alice", Role: entity.RoleClient}, time.Hour)
	require.NoError(t, err)

	_, err = s.ParseIdentity(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPending_NotAcceptedAsIdentity(t *testing.T) {
	s, clk := newTestSigner()

	raw, err := s.IssuePending(&entity.PendingPayment{
		Username:      "alice",
		Amount:        "100",
		CorrelationID: "TXN_alice_1_abcdef",
		ExpiresAt:     clk.Now().Add(15 * time.Minute),
	})
	require.NoError(t, err)

	_, err = s.ParseIdentity(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	pending, err := s.ParsePending(raw)
	require.NoError(t, err)
	assert.Equal(t, "alice", pending.Username)
	assert.Equal(t, "100", pending.Amount)
	assert.Equal(t, "TXN_alice_1_abcdef", pending.CorrelationID)
}

func TestPending_Expired(t *testing.T) {
	s, clk := newTestSigner()

	raw, err := s.IssuePending(&entity.PendingPayment{
		Username:      "alice",
		Amount:        "100",
		CorrelationID: "TXN_alice_1_abcdef",
		ExpiresAt:     clk.Now().Add(15 * time.Minute),
	})
	require.NoError(t, err)

	clk.Add(16 * time.Minute)
	_, err = s.ParsePending(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
