// provision creates chat accounts. Chat flows never create users, so every
// support agent and client is added here.
//
//	provision --username alice --role client --password s3cret
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"supportchat/internal/adapter/repository"
	"supportchat/internal/domain/entity"
	"supportchat/internal/infrastructure/firebase"
	"supportchat/internal/usecase"
	"supportchat/pkg/config"
	"supportchat/pkg/logger"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var username, password, role string
	var help bool

	flagSet := pflag.NewFlagSet("provision", pflag.ContinueOnError)
	flagSet.StringVarP(&username, "username", "u", "", "account name; for clients this is also the conversation key")
	flagSet.StringVarP(&password, "password", "p", "", "initial password, stored as a bcrypt hash")
	flagSet.StringVarP(&role, "role", "r", string(entity.RoleClient), "support or client")
	flagSet.BoolVarP(&help, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if help {
		fmt.Println("Usage: provision --username NAME --password SECRET [--role support|client]")
		flagSet.PrintDefaults()
		return nil
	}

	user, err := newUser(username, password, entity.Role(role))
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.StoreBackend != config.StoreBackendFirestore {
		return fmt.Errorf("provisioning needs STORE_BACKEND=%s; the memory store does not outlive this process", config.StoreBackendFirestore)
	}
	logger.Configure(cfg.LogLevel, cfg.Environment)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := firebase.NewFirestoreClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := repository.NewFirestoreUserRepository(client).Create(ctx, user); err != nil {
		return err
	}

	logger.Info("Provisioned %s user %s", user.Role, user.Username)
	return nil
}

func newUser(username, password string, role entity.Role) (*entity.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("--username and --password are required")
	}
	if strings.ContainsAny(username, "/") {
		return nil, fmt.Errorf("username %q must not contain '/'", username)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("role must be %q or %q, got %q", entity.RoleSupport, entity.RoleClient, role)
	}

	hash, err := usecase.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	return &entity.User{Username: username, Password: hash, Role: role}, nil
}
