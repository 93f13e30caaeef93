package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig    `envPrefix:"SERVER_"`
	Postgres  PostgresConfig  `envPrefix:"POSTGRES_"`
	Redis     RedisConfig     `envPrefix:"REDIS_"`
	Payment   PaymentConfig   `envPrefix:"PAYMENT_"`
	Session   SessionConfig   `envPrefix:"SESSION_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	Notify    NotifyConfig    `envPrefix:"NOTIFY_"`
}

// ServerConfig.PublicURL is the externally reachable base URL, used for
// provider redirects and webhook registration.
type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"localhost"`
	Port            int           `env:"PORT" envDefault:"8080"`
	PublicURL       string        `env:"PUBLIC_URL" envDefault:"http://localhost:8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type PostgresConfig struct {
	User     string `env:"USER,required,notEmpty"`
	Password string `env:"PASSWORD,required,notEmpty"`
	Name     string `env:"DB,required,notEmpty"`
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"5432"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`
	MaxConns int32  `env:"MAX_CONNS" envDefault:"10"`

	// MaxTxAttempts bounds how often a serialization failure is retried.
	MaxTxAttempts int `env:"MAX_TX_ATTEMPTS" envDefault:"5"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
		c.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6380"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`

	// IdempotencyTTL is how long a checkout response is replayed for the
	// same Idempotency-Key.
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"2h"`
}

// PaymentConfig.Provider is the gateway new checkouts are created with.
type PaymentConfig struct {
	Provider string       `env:"PROVIDER" envDefault:"stripe"`
	Currency string       `env:"CURRENCY" envDefault:"gbp"`
	Stripe   StripeConfig `envPrefix:"STRIPE_"`
	Square   SquareConfig `envPrefix:"SQUARE_"`
}

type StripeConfig struct {
	SecretKey     string `env:"SECRET_KEY"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`
}

type SquareConfig struct {
	AccessToken     string `env:"ACCESS_TOKEN"`
	LocationID      string `env:"LOCATION_ID"`
	SignatureKey    string `env:"SIGNATURE_KEY"`
	NotificationURL string `env:"NOTIFICATION_URL"`
	Sandbox         bool   `env:"SANDBOX" envDefault:"false"`
}

type SessionConfig struct {
	TTL           time.Duration `env:"TTL" envDefault:"12h"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
}

type RateLimitConfig struct {
	Limit  int           `env:"LIMIT" envDefault:"10"`
	Window time.Duration `env:"WINDOW" envDefault:"1m"`
}

type NotifyConfig struct {
	Timeout time.Duration `env:"TIMEOUT" envDefault:"5s"`
	Buffer  int           `env:"BUFFER" envDefault:"64"`
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	switch cfg.Payment.Provider {
	case "stripe", "square":
	default:
		return nil, fmt.Errorf("%s: invalid PAYMENT_PROVIDER %q", op, cfg.Payment.Provider)
	}

	return &cfg, nil
}
