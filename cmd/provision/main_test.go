package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportchat/internal/domain/entity"
)

func TestNewUser(t *testing.T) {
	user, err := newUser("  alice ", "s3cret", entity.RoleClient)
	require.NoError(t, err)

	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, entity.RoleClient, user.Role)
	assert.True(t, strings.HasPrefix(user.Password, "$2a$"))
	assert.NotContains(t, user.Password, "s3cret")
}

func TestNewUser_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		role     entity.Role
	}{
		{"missing username", "", "pw", entity.RoleClient},
		{"missing password", "bob", "", entity.RoleClient},
		{"slash in username", "a/b", "pw", entity.RoleClient},
		{"unknown role", "bob", "pw", "admin"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newUser(tc.username, tc.password, tc.role)
			assert.Error(t, err)
		})
	}
}

func TestRun_Help(t *testing.T) {
	assert.NoError(t, run([]string{"--help"}))
}
