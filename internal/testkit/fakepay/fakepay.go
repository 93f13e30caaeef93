// Package fakepay is an in-memory payment.Gateway for service and handler
// tests.
package fakepay

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/chobbledotcom/tickets-sub006/internal/domain"
	"github.com/chobbledotcom/tickets-sub006/internal/payment"
)

// MetadataLimit matches the tighter of the real adapters.
const MetadataLimit = 255

// Webhook is the payload VerifyWebhookSignature accepts. The signature is
// valid when it equals the gateway's Secret.
type Webhook struct {
	SessionID string `json:"session_id"`
	Completed bool   `json:"completed"`
}

type Gateway struct {
	P      payment.Provider
	Secret string

	mu        sync.Mutex
	sessions  map[string]*payment.Session
	seq       int
	refunds   []string
	retrieves int
	// RetrieveErr and RefundErr, when set, are returned by those calls.
	RetrieveErr error
	RefundErr   error
	SetupErr    error
}

func New(p payment.Provider) *Gateway {
	return &Gateway{
		P:        p,
		Secret:   "whsec_fake",
		sessions: make(map[string]*payment.Session),
	}
}

// Pay marks a session as paid by payment reference ref.
func (g *Gateway) Pay(sessionID, ref string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.sessions[sessionID]
	if s == nil {
		s = &payment.Session{ID: sessionID, Metadata: map[string]string{}}
		g.sessions[sessionID] = s
	}
	s.PaymentStatus = payment.StatusPaid
	s.PaymentReference = ref
}

// AddSession stores a session with the given booking metadata.
func (g *Gateway) AddSession(sessionID string, items []payment.Item, contact domain.Contact) error {
	md, err := payment.EncodeIntent(items, contact, MetadataLimit)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[sessionID] = &payment.Session{ID: sessionID, PaymentStatus: payment.StatusUnpaid, Metadata: md}

	return nil
}

func (g *Gateway) Refunds() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.refunds...)
}

func (g *Gateway) Retrieves() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.retrieves
}

func (g *Gateway) Provider() payment.Provider {
	return g.P
}

func (g *Gateway) CreateCheckoutSession(
	_ context.Context,
	ev *domain.Event,
	in payment.Intent,
) (*payment.CheckoutSession, error) {
	return g.create([]payment.Item{in.Item}, in.Contact)
}

func (g *Gateway) CreateMultiCheckoutSession(_ context.Context, in payment.MultiIntent) (*payment.CheckoutSession, error) {
	return g.create(in.Items, in.Contact)
}

func (g *Gateway) create(items []payment.Item, contact domain.Contact) (*payment.CheckoutSession, error) {
	md, err := payment.EncodeIntent(items, contact, MetadataLimit)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.seq++
	id := "cs_fake_" + strconv.Itoa(g.seq)
	g.sessions[id] = &payment.Session{ID: id, PaymentStatus: payment.StatusUnpaid, Metadata: md}

	return &payment.CheckoutSession{SessionID: id, CheckoutURL: "https://pay.example/" + id}, nil
}

func (g *Gateway) RetrieveSession(_ context.Context, sessionID string) (*payment.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.retrieves++
	if g.RetrieveErr != nil {
		return nil, g.RetrieveErr
	}

	s, ok := g.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("fakepay: %s:%w", sessionID, payment.ErrSessionNotFound)
	}
	cp := *s

	return &cp, nil
}

func (g *Gateway) VerifyWebhookSignature(payload []byte, signature string) (*payment.WebhookEvent, error) {
	if signature == "" || signature != g.Secret {
		return nil, payment.ErrInvalidSignature
	}

	var w Webhook
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("fakepay: %v:%w", err, payment.ErrInvalidSignature)
	}

	return &payment.WebhookEvent{SessionID: w.SessionID, Completed: w.Completed}, nil
}

func (g *Gateway) RefundPayment(_ context.Context, ref string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.RefundErr != nil {
		return g.RefundErr
	}
	g.refunds = append(g.refunds, ref)

	return nil
}

func (g *Gateway) SetupWebhookEndpoint(
	_ context.Context,
	_ string,
	_ string,
	_ string,
) (*payment.WebhookSetup, error) {
	if g.SetupErr != nil {
		return nil, g.SetupErr
	}
	return &payment.WebhookSetup{EndpointID: "we_fake", Secret: g.Secret}, nil
}
