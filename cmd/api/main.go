package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/benbjohnson/clock"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	"supportchat/internal/adapter/api"
	"supportchat/internal/adapter/api/handler"
	apimiddleware "supportchat/internal/adapter/api/middleware"
	"supportchat/internal/adapter/api/router"
	"supportchat/internal/adapter/repository"
	domainrepo "supportchat/internal/domain/repository"
	"supportchat/internal/domain/service"
	"supportchat/internal/infrastructure/firebase"
	"supportchat/internal/infrastructure/ratelimit"
	"supportchat/internal/infrastructure/token"
	"supportchat/internal/infrastructure/websocket"
	"supportchat/internal/usecase"
	"supportchat/pkg/config"
	"supportchat/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

type stores struct {
	users    domainrepo.UserRepository
	chats    domainrepo.ChatRepository
	presence domainrepo.PresenceRepository
	close    func()
}

func openStores(ctx context.Context, cfg *config.Config, clk clock.Clock) (*stores, error) {
	if cfg.StoreBackend == config.StoreBackendMemory {
		logger.Warn("Using in-memory store; data is lost on restart")
		store := repository.NewMemoryStore(clk)
		return &stores{
			users:    repository.NewMemoryUserRepository(store),
			chats:    repository.NewMemoryChatRepository(store),
			presence: repository.NewMemoryPresenceRepository(store),
			close:    func() {},
		}, nil
	}

	client, err := firebase.NewFirestoreClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &stores{
		users:    repository.NewFirestoreUserRepository(client),
		chats:    repository.NewFirestoreChatRepository(client),
		presence: repository.NewFirestorePresenceRepository(client),
		close:    func() { closeFirestore(client) },
	}, nil
}

func closeFirestore(client *firestore.Client) {
	if err := client.Close(); err != nil {
		logger.Warn("Closing Firestore client: %v", err)
	}
}

// newPaymentGateway returns nil when SabPaisa is unconfigured or rejects its
// credentials. Payments are then disabled and everything else still serves.
func newPaymentGateway(cfg *config.Config) service.PaymentGateway {
	if !cfg.PaymentsEnabled() {
		logger.Warn("SABPAISA_* credentials are not set; payments are disabled")
		return nil
	}

	gateway, err := service.NewSabPaisaPaymentService(service.SabPaisaConfig{
		BaseURL:           cfg.SabPaisa.BaseURL,
		ClientCode:        cfg.SabPaisa.ClientCode,
		TransUserName:     cfg.SabPaisa.TransUserName,
		TransUserPassword: cfg.SabPaisa.TransUserPassword,
		AuthKey:           cfg.SabPaisa.AuthKey,
		AuthIV:            cfg.SabPaisa.AuthIV,
	})
	if err != nil {
		logger.Warn("SabPaisa rejected its configuration; payments are disabled: %v", err)
		return nil
	}
	return gateway
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger.Configure(cfg.LogLevel, cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.New()

	st, err := openStores(ctx, cfg, clk)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.StoreBackend, err)
	}
	defer st.close()

	paymentGateway := newPaymentGateway(cfg)

	rateLimiter := ratelimit.NewRateLimiter(clk)
	signer := token.NewSigner(cfg.JWTSecret, clk)

	authUseCase := usecase.NewAuthUseCase(st.users, signer, cfg.TokenTTL())
	messageUseCase := usecase.NewMessageStreamUseCase(st.chats, st.users, rateLimiter)
	chatListUseCase := usecase.NewChatListUseCase(st.chats, cfg.DiscoveryStrategy, cfg.DiscoveryFanInLimit).
		WithReadyTimeout(clk, cfg.DiscoveryReadyTimeout)
	presenceUseCase := usecase.NewPresenceUseCase(st.presence, clk, cfg.PresenceHeartbeat, cfg.PresenceLiveness, cfg.TypingDebounce)
	paymentUseCase := usecase.NewPaymentUseCase(paymentGateway, messageUseCase, rateLimiter, clk, cfg.PaymentCallbackURL, cfg.PendingPaymentTTL)

	wsManager := websocket.NewManager(websocket.Services{
		Messages:    messageUseCase,
		ChatList:    chatListUseCase,
		Presence:    presenceUseCase,
		RateLimiter: rateLimiter,
	})
	wsManager.Start(ctx)

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     allowOrigins(cfg.AllowedOrigins),
		AllowCredentials: len(cfg.AllowedOrigins) > 0,
	}))

	e.Validator = api.NewValidator()

	cookies := handler.CookieConfig{Secure: cfg.SecureCookies}
	router.Setup(e, router.Handlers{
		Auth:      handler.NewAuthHandler(authUseCase, cookies),
		Chat:      handler.NewChatHandler(messageUseCase, chatListUseCase),
		Presence:  handler.NewPresenceHandler(presenceUseCase),
		Payment:   handler.NewPaymentHandler(paymentUseCase, signer, cookies, cfg.PaymentReturnURL),
		WebSocket: handler.NewWebSocketHandler(wsManager, cfg.AllowedOrigins),
		Health:    handler.NewHealthHandler(wsManager, cfg.StoreBackend),
	}, apimiddleware.NewAuthMiddleware(authUseCase), rateLimiter)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rateLimiter.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("Starting server on port %s (store=%s, discovery=%s)", cfg.ServerPort, cfg.StoreBackend, cfg.DiscoveryStrategy)
		if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Hijacked websocket connections are not tracked by the server.
		wsManager.CloseAll()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped: %v", err)
		os.Exit(1)
	}
}

func allowOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
