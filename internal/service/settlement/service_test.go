package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chobbledotcom/tickets-sub006/internal/domain"
	"github.com/chobbledotcom/tickets-sub006/internal/notify"
	"github.com/chobbledotcom/tickets-sub006/internal/payment"
	"github.com/chobbledotcom/tickets-sub006/internal/service/registration"
	"github.com/chobbledotcom/tickets-sub006/internal/testkit/fakepay"
	"github.com/chobbledotcom/tickets-sub006/internal/testkit/memstore"
	"github.com/chobbledotcom/tickets-sub006/internal/uow"
)

type plainEncrypter struct{}

func (plainEncrypter) EncryptContact(_ context.Context, c domain.Contact) (domain.Contact, error) {
	if c.Name != "" {
		c.Name = "enc1:" + c.Name
	}
	return c, nil
}

type fixture struct {
	store *memstore.Store
	gw    *fakepay.Gateway
	svc   *Service
}

func newFixture(t *testing.T, notifier registration.Notifier) *fixture {
	t.Helper()

	store := memstore.New()
	gw := fakepay.New(payment.ProviderStripe)
	gateways, err := payment.NewRegistry(payment.ProviderStripe, gw)
	require.NoError(t, err)

	reg := registration.New(store, plainEncrypter{}, nil, nil, notifier, nil, nil, registration.Config{})

	return &fixture{
		store: store,
		gw:    gw,
		svc:   New(store, gateways, reg, nil, nil),
	}
}

func (f *fixture) paidEvent(t *testing.T, slug string, capacity int) int64 {
	t.Helper()
	price := decimal.RequireFromString("10.00")
	return f.store.SeedEvent(domain.Event{
		Name:         slug,
		Slug:         slug,
		Kind:         domain.EventStandard,
		MaxAttendees: capacity,
		UnitPrice:    &price,
		Active:       true,
	})
}

func (f *fixture) paidSession(t *testing.T, sessionID, ref string, items ...payment.Item) {
	t.Helper()
	require.NoError(t, f.gw.AddSession(sessionID, items, domain.Contact{Name: "Ada", Email: "ada@example.com"}))
	f.gw.Pay(sessionID, ref)
}

func (f *fixture) anomalies(t *testing.T) []domain.PaymentAnomaly {
	t.Helper()
	var out []domain.PaymentAnomaly
	require.NoError(t, f.store.Read(context.Background(), func(ctx context.Context, tx uow.Tx) error {
		var err error
		out, err = tx.Anomalies().List(ctx, true)
		return err
	}))
	return out
}

func webhook(t *testing.T, sessionID string, completed bool) []byte {
	t.Helper()
	b, err := json.Marshal(fakepay.Webhook{SessionID: sessionID, Completed: completed})
	require.NoError(t, err)
	return b
}

func TestSettle_RegistersOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	ev := f.paidEvent(t, "gig", 10)
	f.paidSession(t, "cs_1", "pi_1", payment.Item{EventID: ev, Quantity: 2})

	first, err := f.svc.Settle(ctx, payment.ProviderStripe, "cs_1", TriggerRedirect)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	require.Len(t, first.Tickets, 1)
	assert.Equal(t, 2, first.Tickets[0].Quantity)

	again, err := f.svc.Settle(ctx, payment.ProviderStripe, "cs_1", TriggerWebhook)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, first.AttendeeID, again.AttendeeID)
	assert.Equal(t, first.Tickets, again.Tickets)

	attendees := f.store.Attendees()
	require.Len(t, attendees, 1)
	assert.Equal(t, "pi_1", attendees[0].PaymentID)
	assert.Equal(t, string(payment.ProviderStripe), attendees[0].PaymentProvider)
	assert.Equal(t, "enc1:Ada", attendees[0].Name)
}

func TestSettle_ConcurrentDeliveries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	ev := f.paidEvent(t, "gig", 10)
	f.paidSession(t, "cs_123", "pi_123", payment.Item{EventID: ev, Quantity: 1})

	const n = 12
	results := make([]*Result, n)
	errs := make([]error, n)
	payload := webhook(t, "cs_123", true)

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				results[i], errs[i] = f.svc.HandleWebhook(ctx, payment.ProviderStripe, payload, f.gw.Secret)
				return
			}
			results[i], errs[i] = f.svc.Settle(ctx, payment.ProviderStripe, "cs_123", TriggerRedirect)
		}()
	}
	wg.Wait()

	fresh := 0
	for i := range n {
		require.NoError(t, errs[i])
		if !results[i].Duplicate {
			fresh++
		}
		assert.Equal(t, results[0].AttendeeID, results[i].AttendeeID)
	}

	assert.Equal(t, 1, fresh)
	assert.Len(t, f.store.Attendees(), 1)
	assert.Equal(t, 1, f.store.Committed(ev, ""))
}

func TestSettle_MultipleEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	a := f.paidEvent(t, "a", 5)
	b := f.paidEvent(t, "b", 5)
	f.paidSession(t, "cs_multi", "pi_multi",
		payment.Item{EventID: a, Quantity: 1},
		payment.Item{EventID: b, Quantity: 3},
	)

	res, err := f.svc.Settle(ctx, payment.ProviderStripe, "cs_multi", TriggerRedirect)
	require.NoError(t, err)
	require.Len(t, res.Tickets, 2)
	assert.Equal(t, res.Tickets[0].AttendeeID, res.AttendeeID)

	dup, err := f.svc.Settle(ctx, payment.ProviderStripe, "cs_multi", TriggerWebhook)
	require.NoError(t, err)
	assert.Len(t, dup.Tickets, 2)
}

func TestSettle_OversoldRecordsAnomaly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	ev := f.paidEvent(t, "gig", 2)
	f.paidSession(t, "cs_a", "pi_a", payment.Item{EventID: ev, Quantity: 2})
	f.paidSession(t, "cs_b", "pi_b", payment.Item{EventID: ev, Quantity: 1})

	_, err := f.svc.Settle(ctx, payment.ProviderStripe, "cs_a", TriggerWebhook)
	require.NoError(t, err)

	_, err = f.svc.Settle(ctx, payment.ProviderStripe, "cs_b", TriggerWebhook)
	require.ErrorIs(t, err, ErrOversoldAnomaly)

	anomalies := f.anomalies(t)
	require.Len(t, anomalies, 1)
	assert.Equal(t, "cs_b", anomalies[0].SessionID)
	assert.Equal(t, "pi_b", anomalies[0].PaymentReference)
	assert.Equal(t, string(payment.ProviderStripe), anomalies[0].Provider)
	assert.Equal(t, []int64{ev}, anomalies[0].EventIDs)

	// A redelivery reports the same anomaly without recording another.
	_, err = f.svc.Settle(ctx, payment.ProviderStripe, "cs_b", TriggerRedirect)
	require.ErrorIs(t, err, ErrOversoldAnomaly)
	assert.Len(t, f.anomalies(t), 1)

	assert.Equal(t, 2, f.store.Committed(ev, ""))
}

func TestSettle_RejectsUnpaidAndUnknown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	ev := f.paidEvent(t, "gig", 5)
	require.NoError(t, f.gw.AddSession("cs_open", []payment.Item{{EventID: ev, Quantity: 1}}, domain.Contact{}))

	_, err := f.svc.Settle(ctx, payment.ProviderStripe, "cs_open", TriggerRedirect)
	assert.ErrorIs(t, err, ErrPaymentNotCompleted)

	_, err = f.svc.Settle(ctx, payment.ProviderStripe, "cs_missing", TriggerRedirect)
	assert.ErrorIs(t, err, payment.ErrSessionNotFound)

	_, err = f.svc.Settle(ctx, payment.ProviderSquare, "cs_open", TriggerRedirect)
	assert.ErrorIs(t, err, payment.ErrUnknownProvider)

	assert.Empty(t, f.store.Attendees())
}

func TestSettle_ProviderDownLeavesSessionUnclaimed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	ev := f.paidEvent(t, "gig", 5)
	f.paidSession(t, "cs_1", "pi_1", payment.Item{EventID: ev, Quantity: 1})

	f.gw.RetrieveErr = fmt.Errorf("dial: %w", payment.ErrProviderUnavailable)
	_, err := f.svc.Settle(ctx, payment.ProviderStripe, "cs_1", TriggerWebhook)
	require.ErrorIs(t, err, payment.ErrProviderUnavailable)

	f.gw.RetrieveErr = nil
	res, err := f.svc.Settle(ctx, payment.ProviderStripe, "cs_1", TriggerWebhook)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
}

func TestSettle_RollbackReleasesClaim(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	ev := f.paidEvent(t, "gig", 5)
	f.paidSession(t, "cs_1", "pi_1", payment.Item{EventID: ev, Quantity: 1})

	f.store.FailNextCommit(errors.New("connection reset"))
	_, err := f.svc.Settle(ctx, payment.ProviderStripe, "cs_1", TriggerWebhook)
	require.Error(t, err)
	assert.Empty(t, f.store.Attendees())

	res, err := f.svc.Settle(ctx, payment.ProviderStripe, "cs_1", TriggerWebhook)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
}

func TestHandleWebhook_InvalidSignature(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.HandleWebhook(context.Background(), payment.ProviderStripe, webhook(t, "cs_1", true), "forged")
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)
	assert.Zero(t, f.gw.Retrieves())
}

func TestHandleWebhook_IgnoresNonCompletion(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.svc.HandleWebhook(context.Background(), payment.ProviderStripe, webhook(t, "cs_1", false), f.gw.Secret)
	require.NoError(t, err)
	assert.True(t, res.Ignored)
	assert.Zero(t, f.gw.Retrieves())
}

func TestSettle_NotifierFailureDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	defer close(release)

	d := notify.New(notify.Config{Timeout: 5 * time.Second}, srv.Client())
	f := newFixture(t, d)

	price := decimal.RequireFromString("10.00")
	ev := f.store.SeedEvent(domain.Event{
		Name:         "gig",
		Slug:         "gig",
		Kind:         domain.EventStandard,
		MaxAttendees: 5,
		UnitPrice:    &price,
		Active:       true,
		WebhookURL:   srv.URL,
	})
	f.paidSession(t, "cs_1", "pi_1", payment.Item{EventID: ev, Quantity: 1})

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Settle(context.Background(), payment.ProviderStripe, "cs_1", TriggerWebhook)
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("settlement waited for the organizer webhook")
	}

	release <- struct{}{}
	d.Wait()

	select {
	case fail := <-d.Errors():
		assert.Equal(t, ev, fail.EventID)
	default:
		t.Fatal("expected a notification failure")
	}
}
