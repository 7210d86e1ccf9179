package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v4"

	"supportchat/internal/domain/entity"
)

const (
	audienceIdentity = "supportchat:identity"
	audiencePending  = "supportchat:pending-payment"
)

var ErrInvalidToken = errors.New("invalid token")

type identityClaims struct {
	Role entity.Role `json:"role"`
	jwt.RegisteredClaims
}

type pendingClaims struct {
	Amount        string `json:"amount"`
	CorrelationID string `json:"client_txn_id"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 tokens for identities and pending payments.
type Signer struct {
	secret []byte
	clock  clock.Clock
}

func NewSigner(secret string, clk clock.Clock) *Signer {
	return &Signer{secret: []byte(secret), clock: clk}
}

func (s *Signer) IssueIdentity(identity entity.Identity, ttl time.Duration) (string, time.Time, error) {
	now := s.clock.Now()
	expiresAt := now.Add(ttl)

	claims := identityClaims{
		Role: identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Username,
			Audience:  jwt.ClaimStrings{audienceIdentity},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign identity token: %w", err)
	}
	return signed, expiresAt, nil
}

func (s *Signer) ParseIdentity(raw string) (*entity.Identity, error) {
	claims := &identityClaims{}
	if err := s.parse(raw, claims, audienceIdentity); err != nil {
		return nil, err
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return &entity.Identity{Username: claims.Subject, Role: claims.Role}, nil
}

func (s *Signer) IssuePending(pending *entity.PendingPayment) (string, error) {
	claims := pendingClaims{
		Amount:        pending.Amount,
		CorrelationID: pending.CorrelationID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   pending.Username,
			Audience:  jwt.ClaimStrings{audiencePending},
			IssuedAt:  jwt.NewNumericDate(s.clock.Now()),
			ExpiresAt: jwt.NewNumericDate(pending.ExpiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign pending payment: %w", err)
	}
	return signed, nil
}

func (s *Signer) ParsePending(raw string) (*entity.PendingPayment, error) {
	claims := &pendingClaims{}
	if err := s.parse(raw, claims, audiencePending); err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.CorrelationID == "" || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	return &entity.PendingPayment{
		Username:      claims.Subject,
		Amount:        claims.Amount,
		CorrelationID: claims.CorrelationID,
		ExpiresAt:     claims.ExpiresAt.Time,
	}, nil
}

type audienceClaims interface {
	jwt.Claims
	VerifyAudience(cmp string, req bool) bool
	VerifyExpiresAt(cmp time.Time, req bool) bool
}

func (s *Signer) parse(raw string, claims audienceClaims, audience string) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	// Expiry is checked against the injected clock, not wall time.
	if !claims.VerifyExpiresAt(s.clock.Now(), true) {
		return fmt.Errorf("%w: expired", ErrInvalidToken)
	}
	if !claims.VerifyAudience(audience, true) {
		return fmt.Errorf("%w: wrong audience", ErrInvalidToken)
	}
	return nil
}
