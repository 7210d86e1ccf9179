package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"supportchat/internal/domain/entity"
	"supportchat/internal/infrastructure/token"
	"supportchat/pkg/errors"
)

func newAuthFixture(t *testing.T) (*AuthUseCase, memoryRepos) {
	t.Helper()
	clk := newMockClock()
	repos := newMemoryRepos(clk)

	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, repos.users.Create(ctx, &entity.User{Username: "support1", Password: hash, Role: entity.RoleSupport}))
	require.NoError(t, repos.users.Create(ctx, &entity.User{Username: "alice", Password: "legacy-plain", Role: entity.RoleClient}))
	require.NoError(t, repos.users.Create(ctx, &entity.User{Username: "ghost", Password: "pw", Role: "admin"}))

	return NewAuthUseCase(repos.users, token.NewSigner("test-secret", clk), 30*24*time.Hour), repos
}

func TestLogin(t *testing.T) {
	uc, _ := newAuthFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
		code     string
		role     entity.Role
	}{
		{name: "bcrypt secret", username: "support1", password: "s3cret", role: entity.RoleSupport},
		{name: "legacy plaintext secret", username: "alice", password: "legacy-plain", role: entity.RoleClient},
		{name: "trims username", username: "  alice ", password: "legacy-plain", role: entity.RoleClient},
		{name: "wrong bcrypt password", username: "support1", password: "nope", code: errors.CodeInvalidCredential},
		{name: "wrong plaintext password", username: "alice", password: "legacy", code: errors.CodeInvalidCredential},
		{name: "unknown user", username: "nobody", password: "x", code: errors.CodeNotFound},
		{name: "unknown role", username: "ghost", password: "pw", code: errors.CodeForbidden},
		{name: "empty input", username: "", password: "", code: errors.CodeBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := uc.Login(ctx, tc.username, tc.password)
			if tc.code != "" {
				assert.True(t, errors.Is(err, tc.code), "got %v", err)
				assert.Nil(t, res)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.role, res.Identity.Role)
			assert.NotEmpty(t, res.Token)

			identity, err := uc.ParseToken(res.Token)
			require.NoError(t, err)
			assert.Equal(t, res.Identity, identity)
		})
	}
}

func TestLogin_StoreUnavailable(t *testing.T) {
	repo := &mockUserRepository{}
	repo.On("GetByUsername", mock.Anything, "alice").Return(nil, fmt.Errorf("dial tcp: timeout"))
	uc := NewAuthUseCase(repo, token.NewSigner("s", newMockClock()), time.Hour)

	_, err := uc.Login(context.Background(), "alice", "pw")
	assert.True(t, errors.Is(err, errors.CodeConnection))
}

func TestParseToken_Invalid(t *testing.T) {
	uc, _ := newAuthFixture(t)

	_, err := uc.ParseToken("not-a-token")
	assert.True(t, errors.Is(err, errors.CodeUnauthorized))
}

func TestCheckSecret(t *testing.T) {
	hash, err := HashPassword("pw")
	require.NoError(t, err)

	assert.True(t, checkSecret(hash, "pw"))
	assert.False(t, checkSecret(hash, "pw2"))
	assert.True(t, checkSecret("plain", "plain"))
	assert.False(t, checkSecret("plain", "plain "))
	assert.False(t, checkSecret("", "x"))
}
