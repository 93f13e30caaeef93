package attendees

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/chobbledotcom/tickets-sub006/internal/domain"
	"github.com/chobbledotcom/tickets-sub006/internal/envelope"
	"github.com/chobbledotcom/tickets-sub006/internal/payment"
	"github.com/chobbledotcom/tickets-sub006/internal/service/keyring"
	"github.com/chobbledotcom/tickets-sub006/internal/testkit/fakepay"
	"github.com/chobbledotcom/tickets-sub006/internal/testkit/memstore"
	"github.com/chobbledotcom/tickets-sub006/internal/uow"
)

type fixture struct {
	store   *memstore.Store
	gw      *fakepay.Gateway
	square  *fakepay.Gateway
	keys    *keyring.Service
	key     *envelope.SessionKey
	svc     *Service
	eventID int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memstore.New()
	keys := keyring.New(store, nil, keyring.WithBcryptCost(bcrypt.MinCost))
	admin, err := keys.Setup(context.Background(), "alice", "correct horse")
	require.NoError(t, err)

	gw := fakepay.New(payment.ProviderStripe)
	sq := fakepay.New(payment.ProviderSquare)
	gateways, err := payment.NewRegistry(payment.ProviderStripe, gw, sq)
	require.NoError(t, err)

	f := &fixture{
		store:  store,
		gw:     gw,
		square: sq,
		keys:   keys,
		key:    admin.Key,
		svc:    New(store, keys, gateways, nil, nil),
	}
	f.eventID = store.SeedEvent(domain.Event{Name: "Gig", Slug: "gig", Kind: domain.EventStandard, MaxAttendees: 10, Active: true})

	return f
}

func (f *fixture) addAttendee(t *testing.T, eventID int64, contact domain.Contact, paymentID string) *domain.Attendee {
	t.Helper()
	ctx := context.Background()

	enc, err := f.keys.EncryptContact(ctx, contact)
	require.NoError(t, err)

	a := &domain.Attendee{
		EventID:     eventID,
		Name:        enc.Name,
		Email:       enc.Email,
		Quantity:    1,
		TicketToken: fmt.Sprintf("tok-%s-%d", paymentID, len(f.store.Attendees())),
		PaymentID:   paymentID,
	}
	require.NoError(t, f.store.Do(ctx, func(ctx context.Context, tx uow.Tx, _ func(uow.AfterCommit)) error {
		var err error
		a.ID, err = tx.Attendees().InsertWithinCapacity(ctx, a, 100)
		return err
	}))

	return a
}

func TestList_DecryptsContact(t *testing.T) {
	f := newFixture(t)
	f.addAttendee(t, f.eventID, domain.Contact{Name: "Ada", Email: "ada@example.com"}, "")

	list, err := f.svc.List(context.Background(), f.eventID, f.key)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Ada", list[0].Contact.Name)
	assert.Equal(t, "ada@example.com", list[0].Contact.Email)
	assert.True(t, envelope.IsCiphertext(list[0].Attendee.Name))

	_, err = f.svc.List(context.Background(), 404, f.key)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestList_WrongKeyFails(t *testing.T) {
	f := newFixture(t)
	f.addAttendee(t, f.eventID, domain.Contact{Name: "Ada"}, "")

	stray, err := envelope.GenerateKeySet()
	require.NoError(t, err)

	_, err = f.svc.List(context.Background(), f.eventID, stray.DataKey)
	assert.ErrorIs(t, err, envelope.ErrDecryptFailed)
}

func TestCheckIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.addAttendee(t, f.eventID, domain.Contact{Name: "Ada"}, "")

	got, err := f.svc.CheckInByToken(ctx, a.TicketToken)
	require.NoError(t, err)
	assert.True(t, got.CheckedIn)

	_, err = f.svc.CheckIn(ctx, a.ID)
	assert.ErrorIs(t, err, ErrAlreadyCheckedIn)

	_, err = f.svc.CheckInByToken(ctx, "nope")
	assert.ErrorIs(t, err, ErrAttendeeNotFound)
}

func TestCheckIn_RefundedRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.addAttendee(t, f.eventID, domain.Contact{Name: "Ada"}, "pi_1")

	_, err := f.svc.Refund(ctx, a.ID)
	require.NoError(t, err)

	_, err = f.svc.CheckIn(ctx, a.ID)
	assert.ErrorIs(t, err, ErrRefunded)
}

func TestRefund_WithoutPaymentReference(t *testing.T) {
	f := newFixture(t)
	a := f.addAttendee(t, f.eventID, domain.Contact{Name: "Ada"}, "")

	_, err := f.svc.Refund(context.Background(), a.ID)
	assert.ErrorIs(t, err, ErrNoPaymentReference)
	assert.Empty(t, f.gw.Refunds())
}

func TestRefund_MarksWholePayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	other := f.store.SeedEvent(domain.Event{Name: "Other", Slug: "other", Kind: domain.EventStandard, MaxAttendees: 10, Active: true})

	a := f.addAttendee(t, f.eventID, domain.Contact{Name: "Ada"}, "pi_multi")
	f.addAttendee(t, other, domain.Contact{Name: "Ada"}, "pi_multi")
	untouched := f.addAttendee(t, f.eventID, domain.Contact{Name: "Bob"}, "pi_bob")

	refunded, err := f.svc.Refund(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, refunded, 2)
	assert.Equal(t, []string{"pi_multi"}, f.gw.Refunds())

	_, err = f.svc.Refund(ctx, a.ID)
	assert.ErrorIs(t, err, ErrAlreadyRefunded)

	for _, row := range f.store.Attendees() {
		assert.Equal(t, row.ID != untouched.ID, row.Refunded)
	}

	// Refunded places still count.
	assert.Equal(t, 2, f.store.Committed(f.eventID, ""))
}

func TestRefund_UsesProviderThatTookPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a := &domain.Attendee{
		EventID:         f.eventID,
		Name:            "sealed",
		Email:           "sealed",
		Quantity:        1,
		TicketToken:     "tok-sq",
		PaymentID:       "sq_pay_1",
		PaymentProvider: string(payment.ProviderSquare),
	}
	require.NoError(t, f.store.Do(ctx, func(ctx context.Context, tx uow.Tx, _ func(uow.AfterCommit)) error {
		var err error
		a.ID, err = tx.Attendees().InsertWithinCapacity(ctx, a, 100)
		return err
	}))
	legacy := f.addAttendee(t, f.eventID, domain.Contact{Name: "Bob"}, "pi_legacy")

	_, err := f.svc.Refund(ctx, a.ID)
	require.NoError(t, err)
	_, err = f.svc.Refund(ctx, legacy.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{"sq_pay_1"}, f.square.Refunds())
	assert.Equal(t, []string{"pi_legacy"}, f.gw.Refunds())
}

func TestRefund_UnknownProviderNotContacted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a := &domain.Attendee{
		EventID:         f.eventID,
		Quantity:        1,
		TicketToken:     "tok-pp",
		PaymentID:       "pp_1",
		PaymentProvider: "paypal",
	}
	require.NoError(t, f.store.Do(ctx, func(ctx context.Context, tx uow.Tx, _ func(uow.AfterCommit)) error {
		var err error
		a.ID, err = tx.Attendees().InsertWithinCapacity(ctx, a, 100)
		return err
	}))

	_, err := f.svc.Refund(ctx, a.ID)
	assert.ErrorIs(t, err, payment.ErrUnknownProvider)
	assert.Empty(t, f.gw.Refunds())
	assert.Empty(t, f.square.Refunds())
	assert.False(t, f.store.Attendees()[0].Refunded)
}

func TestRefund_ProviderFailureLeavesRow(t *testing.T) {
	f := newFixture(t)
	a := f.addAttendee(t, f.eventID, domain.Contact{Name: "Ada"}, "pi_1")
	f.gw.RefundErr = fmt.Errorf("timeout:%w", payment.ErrProviderUnavailable)

	_, err := f.svc.Refund(context.Background(), a.ID)
	assert.ErrorIs(t, err, payment.ErrProviderUnavailable)
	assert.False(t, f.store.Attendees()[0].Refunded)
}

func TestResolveAnomaly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.store.Do(ctx, func(ctx context.Context, tx uow.Tx, _ func(uow.AfterCommit)) error {
		return tx.Anomalies().Record(ctx, &domain.PaymentAnomaly{
			SessionID:        "cs_over",
			PaymentReference: "sq_over",
			Provider:         string(payment.ProviderSquare),
			EventIDs:         []int64{f.eventID},
			Quantity:         2,
			Reason:           "sold out",
		})
	}))

	open, err := f.svc.ListAnomalies(ctx, false)
	require.NoError(t, err)
	require.Len(t, open, 1)

	require.NoError(t, f.svc.ResolveAnomaly(ctx, "cs_over", true))
	assert.Equal(t, []string{"sq_over"}, f.square.Refunds())
	assert.Empty(t, f.gw.Refunds())

	open, err = f.svc.ListAnomalies(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, open)

	assert.ErrorIs(t, f.svc.ResolveAnomaly(ctx, "cs_over", false), ErrAnomalyResolved)
	assert.ErrorIs(t, f.svc.ResolveAnomaly(ctx, "cs_missing", false), ErrAnomalyNotFound)
}
