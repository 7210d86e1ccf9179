package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	StoreBackendFirestore = "firestore"
	StoreBackendMemory    = "memory"

	DiscoveryFanOut = "fanout"
	DiscoveryFanIn  = "fanin"

	defaultJWTSecret = "your-secret-key"
)

type Config struct {
	ServerPort  string `env:"SERVER_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// AllowedOrigins restricts CORS and websocket upgrades. Empty allows any origin.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	SecureCookies  bool     `env:"SECURE_COOKIES" envDefault:"false"`

	StoreBackend               string `env:"STORE_BACKEND" envDefault:"firestore"`
	FirebaseProject            string `env:"FIREBASE_PROJECT_ID"`
	FirebaseServiceAccountJSON string `env:"FIREBASE_SERVICE_ACCOUNT_JSON"`
	FirebaseServiceAccountPath string `env:"FIREBASE_SERVICE_ACCOUNT_PATH"`

	JWTSecret string `env:"JWT_SECRET" envDefault:"your-secret-key"`
	JWTExpiry int64  `env:"JWT_EXPIRY" envDefault:"2592000"` // 30 days, in seconds

	DiscoveryStrategy     string        `env:"DISCOVERY_STRATEGY" envDefault:"fanout"`
	DiscoveryFanInLimit   int           `env:"DISCOVERY_FANIN_LIMIT" envDefault:"500"`
	DiscoveryReadyTimeout time.Duration `env:"DISCOVERY_READY_TIMEOUT" envDefault:"5s"`

	PresenceHeartbeat time.Duration `env:"PRESENCE_HEARTBEAT" envDefault:"30s"`
	PresenceLiveness  time.Duration `env:"PRESENCE_LIVENESS" envDefault:"60s"`
	TypingDebounce    time.Duration `env:"TYPING_DEBOUNCE" envDefault:"2s"`

	SabPaisa           SabPaisaConfig `envPrefix:"SABPAISA_"`
	PaymentCallbackURL string         `env:"PAYMENT_CALLBACK_URL" envDefault:"http://localhost:8080/v1/payments/callback"`
	PendingPaymentTTL  time.Duration  `env:"PENDING_PAYMENT_TTL" envDefault:"15m"`

	// PaymentReturnURL is where the browser lands after the callback. Empty answers with JSON.
	PaymentReturnURL string `env:"PAYMENT_RETURN_URL"`
}

// SabPaisaConfig holds the provider credentials. None of these leave the server.
type SabPaisaConfig struct {
	BaseURL           string `env:"BASE_URL" envDefault:"https://stage-securepay.sabpaisa.in/SabPaisa/sabPaisaInit?v=1"`
	ClientCode        string `env:"CLIENT_CODE"`
	TransUserName     string `env:"TRANS_USERNAME"`
	TransUserPassword string `env:"TRANS_PASSWORD"`
	AuthKey           string `env:"AUTH_KEY"`
	AuthIV            string `env:"AUTH_IV"`
}

func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case StoreBackendFirestore:
		if strings.TrimSpace(c.FirebaseProject) == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID is required when STORE_BACKEND is %q", StoreBackendFirestore)
		}
	case StoreBackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be one of %q, %q", StoreBackendFirestore, StoreBackendMemory)
	}

	switch c.DiscoveryStrategy {
	case DiscoveryFanOut, DiscoveryFanIn:
	default:
		return fmt.Errorf("DISCOVERY_STRATEGY must be one of %q, %q", DiscoveryFanOut, DiscoveryFanIn)
	}

	if c.DiscoveryFanInLimit <= 0 {
		return fmt.Errorf("DISCOVERY_FANIN_LIMIT must be positive")
	}

	if c.PresenceHeartbeat <= 0 || c.TypingDebounce <= 0 {
		return fmt.Errorf("PRESENCE_HEARTBEAT and TYPING_DEBOUNCE must be positive")
	}

	// A reader must see at least one heartbeat per liveness window.
	if c.PresenceLiveness <= c.PresenceHeartbeat {
		return fmt.Errorf("PRESENCE_LIVENESS (%s) must exceed PRESENCE_HEARTBEAT (%s)", c.PresenceLiveness, c.PresenceHeartbeat)
	}

	if c.IsProduction() && (c.JWTSecret == "" || c.JWTSecret == defaultJWTSecret) {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}

	return nil
}

// PaymentsEnabled reports whether the SabPaisa credentials are present.
func (c *Config) PaymentsEnabled() bool {
	s := c.SabPaisa
	return s.ClientCode != "" && s.TransUserName != "" && s.TransUserPassword != "" && s.AuthKey != "" && s.AuthIV != ""
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.JWTExpiry) * time.Second
}
