package usecase

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"supportchat/internal/domain/entity"
	"supportchat/internal/domain/repository"
	"supportchat/internal/infrastructure/token"
	"supportchat/pkg/errors"
	"supportchat/pkg/logger"
)

type AuthUseCase struct {
	userRepo repository.UserRepository
	signer   *token.Signer
	tokenTTL time.Duration
}

func NewAuthUseCase(userRepo repository.UserRepository, signer *token.Signer, tokenTTL time.Duration) *AuthUseCase {
	return &AuthUseCase{
		userRepo: userRepo,
		signer:   signer,
		tokenTTL: tokenTTL,
	}
}

type AuthResult struct {
	Identity  *entity.Identity
	Token     string
	ExpiresAt time.Time
}

// Login checks the stored secret and returns the identity with a signed token.
// Errors are NOT_FOUND, INVALID_CREDENTIAL or CONNECTION_ERROR.
func (uc *AuthUseCase) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, errors.BadRequest("Username and password are required", nil)
	}

	user, err := uc.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return nil, errors.NotFound("User", nil)
		}
		logger.Error("Login lookup for %s failed: %v", username, err)
		return nil, errors.ConnectionError(err)
	}

	if !checkSecret(user.Password, password) {
		return nil, errors.InvalidCredential(nil)
	}
	if !user.Role.Valid() {
		logger.Warn("User %s has unknown role %q", username, user.Role)
		return nil, errors.Forbidden("Account has no chat role", nil)
	}

	identity := &entity.Identity{Username: user.Username, Role: user.Role}
	return uc.IssueToken(identity)
}

func (uc *AuthUseCase) IssueToken(identity *entity.Identity) (*AuthResult, error) {
	raw, expiresAt, err := uc.signer.IssueIdentity(*identity, uc.tokenTTL)
	if err != nil {
		return nil, errors.Internal("Failed to issue token", err)
	}
	return &AuthResult{Identity: identity, Token: raw, ExpiresAt: expiresAt}, nil
}

func (uc *AuthUseCase) ParseToken(raw string) (*entity.Identity, error) {
	identity, err := uc.signer.ParseIdentity(raw)
	if err != nil {
		return nil, errors.Unauthorized("Invalid or expired token", err)
	}
	return identity, nil
}

// Logout has no remote effect; the session ends when the client drops its token.
func (uc *AuthUseCase) Logout(ctx context.Context, identity *entity.Identity) error {
	if identity != nil {
		logger.Info("User %s logged out", identity.Username)
	}
	return nil
}

// HashPassword is used by the provisioning tool.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// checkSecret accepts bcrypt hashes and, for records provisioned before
// hashing, plaintext compared in constant time.
func checkSecret(stored, given string) bool {
	if isBcryptHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(given)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
