package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chobbledotcom/tickets-sub006/internal/domain"
	"github.com/chobbledotcom/tickets-sub006/internal/payment"
	redisrepo "github.com/chobbledotcom/tickets-sub006/internal/repository/redis"
	"github.com/chobbledotcom/tickets-sub006/internal/service/registration"
	"github.com/chobbledotcom/tickets-sub006/internal/testkit/fakepay"
	"github.com/chobbledotcom/tickets-sub006/internal/testkit/memstore"
)

var today = time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)

type stubLimiter struct {
	allowed bool
	hits    []string
}

func (l *stubLimiter) Allow(_ context.Context, id string) (redisrepo.Decision, error) {
	l.hits = append(l.hits, id)
	if l.allowed {
		return redisrepo.Decision{Allowed: true, Current: 1}, nil
	}
	return redisrepo.Decision{Current: 6, RetryAfter: 30 * time.Second}, nil
}

var ada = domain.Contact{Name: "Ada", Email: "ada@example.com"}

func newService(t *testing.T, limiter Limiter) (*Service, *memstore.Store, *fakepay.Gateway) {
	t.Helper()

	store := memstore.New()
	gw := fakepay.New(payment.ProviderStripe)
	gateways, err := payment.NewRegistry(payment.ProviderStripe, gw)
	require.NoError(t, err)

	return New(store, gateways, limiter, nil, Config{Now: func() time.Time { return today }}), store, gw
}

func paidEvent(slug, price string, capacity int) domain.Event {
	p := decimal.RequireFromString(price)
	return domain.Event{
		Name:         slug,
		Slug:         slug,
		Kind:         domain.EventStandard,
		MaxAttendees: capacity,
		UnitPrice:    &p,
		Active:       true,
	}
}

func TestCreateCheckout(t *testing.T) {
	ctx := context.Background()
	limiter := &stubLimiter{allowed: true}
	s, store, gw := newService(t, limiter)
	id := store.SeedEvent(paidEvent("gig", "12.50", 10))

	co, err := s.CreateCheckout(ctx, payment.Intent{Item: payment.Item{EventID: id, Quantity: 2}, Contact: ada}, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, payment.ProviderStripe, co.Provider)
	assert.True(t, decimal.RequireFromString("25").Equal(co.Total))
	assert.Equal(t, []string{"ip:1.2.3.4"}, limiter.hits)

	sess, err := gw.RetrieveSession(ctx, co.SessionID)
	require.NoError(t, err)
	booking, err := payment.DecodeIntent(sess.Metadata)
	require.NoError(t, err)
	assert.Equal(t, []payment.Item{{EventID: id, Quantity: 2}}, booking.Items)
	assert.Equal(t, "Ada", booking.Contact.Name)
}

func TestCreateMultiCheckout_Total(t *testing.T) {
	ctx := context.Background()
	s, store, _ := newService(t, nil)
	a := store.SeedEvent(paidEvent("a", "10.00", 10))
	b := store.SeedEvent(paidEvent("b", "0.10", 10))

	co, err := s.CreateMultiCheckout(ctx, []payment.Item{
		{EventID: a, Quantity: 1},
		{EventID: b, Quantity: 3},
	}, ada, "")
	require.NoError(t, err)
	assert.Equal(t, "10.30", co.Total.StringFixed(2))
}

func TestCreateCheckout_Rejections(t *testing.T) {
	ctx := context.Background()
	s, store, _ := newService(t, nil)

	full := store.SeedEvent(paidEvent("full", "5", 2))
	free := store.SeedEvent(domain.Event{Name: "free", Slug: "free", Kind: domain.EventStandard, MaxAttendees: 5, Active: true})

	cases := []struct {
		name  string
		items []payment.Item
		want  error
	}{
		{"empty", nil, ErrEmptyCheckout},
		{"free event", []payment.Item{{EventID: free, Quantity: 1}}, ErrFreeEvent},
		{"missing event", []payment.Item{{EventID: 404, Quantity: 1}}, registration.ErrEventNotFound},
		{"over capacity", []payment.Item{{EventID: full, Quantity: 3}}, registration.ErrCapacityExceeded},
		{"split over capacity", []payment.Item{{EventID: full, Quantity: 1}, {EventID: full, Quantity: 2}}, registration.ErrCapacityExceeded},
		{"date on standard", []payment.Item{{EventID: full, Quantity: 1, Date: "2026-06-01"}}, registration.ErrDateNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.CreateMultiCheckout(ctx, tc.items, ada, "")
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := s.CreateCheckout(ctx, payment.Intent{Item: payment.Item{EventID: full, Quantity: 1}}, "")
	assert.ErrorIs(t, err, ErrContactRequired)
}

func TestCreateCheckout_RateLimited(t *testing.T) {
	s, store, _ := newService(t, &stubLimiter{})
	id := store.SeedEvent(paidEvent("gig", "5", 10))

	_, err := s.CreateCheckout(context.Background(), payment.Intent{Item: payment.Item{EventID: id, Quantity: 1}, Contact: ada}, "ip:9.9.9.9")
	require.ErrorIs(t, err, ErrRateLimited)

	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 30*time.Second, rl.RetryAfter)
}
