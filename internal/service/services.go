package service

import (
	"log/slog"

	"github.com/chobbledotcom/tickets-sub006/internal/metrics"
	"github.com/chobbledotcom/tickets-sub006/internal/notify"
	"github.com/chobbledotcom/tickets-sub006/internal/payment"
	redisrepo "github.com/chobbledotcom/tickets-sub006/internal/repository/redis"
	"github.com/chobbledotcom/tickets-sub006/internal/service/admin"
	"github.com/chobbledotcom/tickets-sub006/internal/service/attendees"
	"github.com/chobbledotcom/tickets-sub006/internal/service/checkout"
	"github.com/chobbledotcom/tickets-sub006/internal/service/keyring"
	"github.com/chobbledotcom/tickets-sub006/internal/service/query"
	"github.com/chobbledotcom/tickets-sub006/internal/service/registration"
	"github.com/chobbledotcom/tickets-sub006/internal/service/settlement"
	"github.com/chobbledotcom/tickets-sub006/internal/session"
	"github.com/chobbledotcom/tickets-sub006/internal/uow"
)

type Services struct {
	Keyring      *keyring.Service
	Registration *registration.Service
	Settlement   *settlement.Service
	Checkout     *checkout.Service
	Attendees    *attendees.Service
	Query        *query.Service
	Admin        *admin.Service
	Sessions     *session.Store
}

type Config struct {
	Registration registration.Config
	Checkout     checkout.Config
	Query        query.Config
	Keyring      []keyring.Option
}

// Deps are the shared collaborators every service is built from.
type Deps struct {
	UoW      uow.Runner
	Cache    *redisrepo.Cache
	PubSub   *redisrepo.EventsPubSub
	Limiter  *redisrepo.SlidingWindowLimiter
	Gateways *payment.Registry
	Notifier *notify.Dispatcher
	Sessions *session.Store
	Metrics  *metrics.Metrics
	Log      *slog.Logger
}

func NewServices(d Deps, cfg Config) *Services {
	keys := keyring.New(d.UoW, d.Log, cfg.Keyring...)

	reg := registration.New(
		d.UoW,
		keys,
		d.Cache,
		d.PubSub,
		d.Notifier,
		d.Metrics,
		d.Log,
		cfg.Registration,
	)

	return &Services{
		Keyring:      keys,
		Registration: reg,
		Settlement:   settlement.New(d.UoW, d.Gateways, reg, d.Metrics, d.Log),
		Checkout:     checkout.New(d.UoW, d.Gateways, d.Limiter, d.Log, cfg.Checkout),
		Attendees:    attendees.New(d.UoW, keys, d.Gateways, d.Cache, d.Log),
		Query:        query.New(d.UoW, d.Cache, cfg.Query),
		Admin:        admin.New(d.UoW, d.Cache, d.PubSub, d.Gateways, d.Log),
		Sessions:     d.Sessions,
	}
}
