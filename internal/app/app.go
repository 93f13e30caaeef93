package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/chobbledotcom/tickets-sub006/internal/config"
	"github.com/chobbledotcom/tickets-sub006/internal/metrics"
	"github.com/chobbledotcom/tickets-sub006/internal/notify"
	"github.com/chobbledotcom/tickets-sub006/internal/payment"
	"github.com/chobbledotcom/tickets-sub006/internal/payment/square"
	"github.com/chobbledotcom/tickets-sub006/internal/payment/stripe"
	"github.com/chobbledotcom/tickets-sub006/internal/postgres"
	"github.com/chobbledotcom/tickets-sub006/internal/redis"
	postgresrepo "github.com/chobbledotcom/tickets-sub006/internal/repository/postgres"
	redisrepo "github.com/chobbledotcom/tickets-sub006/internal/repository/redis"
	"github.com/chobbledotcom/tickets-sub006/internal/service"
	"github.com/chobbledotcom/tickets-sub006/internal/session"
	httpgin "github.com/chobbledotcom/tickets-sub006/internal/transport/http/gin"
	"github.com/chobbledotcom/tickets-sub006/internal/uow"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	rdb        *goredis.Client
	closeDB    func()
	notifier   *notify.Dispatcher
	sessions   *session.Store
	metrics    *metrics.Metrics
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.New"

	pool, err := postgres.New(ctx, postgres.Config{
		DSN:             cfg.Postgres.DSN(),
		MaxConns:        cfg.Postgres.MaxConns,
		ConnectAttempts: 10,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: postgres:%w", op, err)
	}

	rdb, err := redis.New(ctx, redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: redis:%w", op, err)
	}

	store := postgresrepo.NewStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	gateways, err := newGateways(cfg, logger)
	if err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	notifier := notify.New(notify.Config{
		Timeout: cfg.Notify.Timeout,
		Buffer:  cfg.Notify.Buffer,
	}, nil)
	sessions := session.NewStore(cfg.Session.TTL)

	services := service.NewServices(service.Deps{
		UoW: uow.NewUoW(store,
			uow.WithMaxAttempts(cfg.Postgres.MaxTxAttempts),
			uow.WithLogger(logger),
		),
		Cache:    redisrepo.New(rdb),
		PubSub:   redisrepo.NewEventsPubSub(rdb),
		Limiter:  redisrepo.NewSlidingWindowLimiter(rdb, "checkout", cfg.RateLimit.Limit, cfg.RateLimit.Window),
		Gateways: gateways,
		Notifier: notifier,
		Sessions: sessions,
		Metrics:  m,
		Log:      logger,
	}, service.Config{})

	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, cfg.Redis.IdempotencyTTL)

	router := httpgin.NewRouter(services, idempotencyStore, reg, logger)

	return &App{
		cfg:    cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		rdb:      rdb,
		closeDB:  pool.Close,
		notifier: notifier,
		sessions: sessions,
		metrics:  m,
	}, nil
}

// newGateways builds both adapters. Only the configured provider receives
// new checkouts; the other one still settles sessions it created earlier.
func newGateways(cfg *config.Config, logger *slog.Logger) (*payment.Registry, error) {
	base := strings.TrimRight(cfg.Server.PublicURL, "/")

	stripeGW := stripe.New(stripe.Config{
		SecretKey:     cfg.Payment.Stripe.SecretKey,
		WebhookSecret: cfg.Payment.Stripe.WebhookSecret,
		Currency:      cfg.Payment.Currency,
		SuccessURL:    base + "/checkout/success?provider=stripe&session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     base + "/",
		Logger:        logger.With(slog.String("component", "stripe")),
	}, nil)

	squareCfg := square.Config{
		AccessToken:     cfg.Payment.Square.AccessToken,
		LocationID:      cfg.Payment.Square.LocationID,
		SignatureKey:    cfg.Payment.Square.SignatureKey,
		NotificationURL: cfg.Payment.Square.NotificationURL,
		Currency:        cfg.Payment.Currency,
		RedirectURL:     base + "/checkout/success?provider=square",
	}
	if cfg.Payment.Square.Sandbox {
		squareCfg.BaseURL = square.SandboxURL
	}
	if squareCfg.NotificationURL == "" {
		squareCfg.NotificationURL = base + "/webhooks/square"
	}

	return payment.NewRegistry(
		payment.Provider(cfg.Payment.Provider),
		stripeGW,
		square.New(squareCfg, nil),
	)
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "addr", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.notifier.Drain(gCtx, a.logger, a.metrics)
	})

	g.Go(func() error {
		return a.sessions.Sweep(gCtx, a.cfg.Session.SweepInterval)
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

// close waits for in-flight organizer notifications before releasing the
// connections.
func (a *App) close() {
	a.notifier.Wait()
	_ = a.rdb.Close()
	a.closeDB()
}
