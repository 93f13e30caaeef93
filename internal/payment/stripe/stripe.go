// Package stripe is the Stripe Checkout adapter, built on stripe-go.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/stripe/stripe-go/v82/webhookendpoint"

	"github.com/chobbledotcom/tickets-sub006/internal/domain"
	"github.com/chobbledotcom/tickets-sub006/internal/payment"
)

const (
	// MetadataLimit is the longest metadata value Stripe accepts.
	MetadataLimit = 500

	defaultTolerance = 5 * time.Minute
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	// SuccessURL may contain {CHECKOUT_SESSION_ID}, which Stripe replaces.
	SuccessURL string
	CancelURL  string
	// Tolerance bounds the age of a signed webhook timestamp.
	Tolerance time.Duration
	// BaseURL overrides the API host. Tests point it at a local server.
	BaseURL string
	Logger  *slog.Logger
}

type Client struct {
	cfg       Config
	sessions  session.Client
	refunds   refund.Client
	endpoints webhookendpoint.Client

	mu            sync.RWMutex
	webhookSecret string
}

func New(cfg Config, hc *http.Client) *Client {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = defaultTolerance
	}
	if cfg.Currency == "" {
		cfg.Currency = "gbp"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}

	bc := &stripego.BackendConfig{
		HTTPClient:        hc,
		LeveledLogger:     leveledLogger{cfg.Logger},
		MaxNetworkRetries: stripego.Int64(0),
	}
	if cfg.BaseURL != "" {
		bc.URL = stripego.String(cfg.BaseURL)
	}
	backend := stripego.GetBackendWithConfig(stripego.APIBackend, bc)

	return &Client{
		cfg:           cfg,
		sessions:      session.Client{B: backend, Key: cfg.SecretKey},
		refunds:       refund.Client{B: backend, Key: cfg.SecretKey},
		endpoints:     webhookendpoint.Client{B: backend, Key: cfg.SecretKey},
		webhookSecret: cfg.WebhookSecret,
	}
}

func (c *Client) Provider() payment.Provider {
	return payment.ProviderStripe
}

// CreateCheckoutSession starts a hosted checkout for one event.
func (c *Client) CreateCheckoutSession(
	ctx context.Context,
	ev *domain.Event,
	in payment.Intent,
) (*payment.CheckoutSession, error) {
	const op = "stripe.Client.CreateCheckoutSession"

	if !ev.IsPaid() {
		return nil, fmt.Errorf("%s: event %d has no price", op, ev.ID)
	}

	line := payment.LineItem{Name: ev.Name, UnitPrice: *ev.UnitPrice, Quantity: in.Quantity}

	cs, err := c.createSession(ctx, []payment.Item{in.Item}, []payment.LineItem{line}, in.Contact)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return cs, nil
}

func (c *Client) CreateMultiCheckoutSession(
	ctx context.Context,
	in payment.MultiIntent,
) (*payment.CheckoutSession, error) {
	const op = "stripe.Client.CreateMultiCheckoutSession"

	cs, err := c.createSession(ctx, in.Items, in.Lines, in.Contact)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return cs, nil
}

func (c *Client) createSession(
	ctx context.Context,
	items []payment.Item,
	lines []payment.LineItem,
	contact domain.Contact,
) (*payment.CheckoutSession, error) {
	md, err := payment.EncodeIntent(items, contact, MetadataLimit)
	if err != nil {
		return nil, err
	}

	params := &stripego.CheckoutSessionParams{
		Mode:       stripego.String(string(stripego.CheckoutSessionModePayment)),
		SuccessURL: stripego.String(c.cfg.SuccessURL),
		CancelURL:  stripego.String(c.cfg.CancelURL),
	}
	if contact.Email != "" {
		params.CustomerEmail = stripego.String(contact.Email)
	}
	for _, l := range lines {
		params.LineItems = append(params.LineItems, &stripego.CheckoutSessionLineItemParams{
			Quantity: stripego.Int64(int64(l.Quantity)),
			PriceData: &stripego.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripego.String(c.cfg.Currency),
				UnitAmount: stripego.Int64(payment.MinorUnits(l.UnitPrice)),
				ProductData: &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripego.String(l.Name),
				},
			},
		})
	}
	for k, v := range md {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	params.SetIdempotencyKey(uuid.NewString())

	cs, err := c.sessions.New(params)
	if err != nil {
		return nil, classify(err)
	}

	return &payment.CheckoutSession{SessionID: cs.ID, CheckoutURL: cs.URL}, nil
}

func (c *Client) RetrieveSession(ctx context.Context, sessionID string) (*payment.Session, error) {
	const op = "stripe.Client.RetrieveSession"

	params := &stripego.CheckoutSessionParams{}
	params.Context = ctx

	cs, err := c.sessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, classify(err))
	}

	status := payment.StatusUnpaid
	// no_payment_required is a fully discounted checkout.
	switch cs.PaymentStatus {
	case stripego.CheckoutSessionPaymentStatusPaid, stripego.CheckoutSessionPaymentStatusNoPaymentRequired:
		status = payment.StatusPaid
	}

	var ref string
	if cs.PaymentIntent != nil {
		ref = cs.PaymentIntent.ID
	}

	return &payment.Session{
		ID:               cs.ID,
		PaymentStatus:    status,
		PaymentReference: ref,
		Metadata:         cs.Metadata,
	}, nil
}

// VerifyWebhookSignature checks the Stripe-Signature header and the age of
// its timestamp.
func (c *Client) VerifyWebhookSignature(payload []byte, signature string) (*payment.WebhookEvent, error) {
	const op = "stripe.Client.VerifyWebhookSignature"

	c.mu.RLock()
	secret := c.webhookSecret
	c.mu.RUnlock()

	if secret == "" {
		return nil, fmt.Errorf("%s: no webhook secret:%w", op, payment.ErrInvalidSignature)
	}

	ev, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		Tolerance:                c.cfg.Tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %v:%w", op, err, payment.ErrInvalidSignature)
	}

	completed := ev.Type == stripego.EventTypeCheckoutSessionCompleted ||
		ev.Type == stripego.EventTypeCheckoutSessionAsyncPaymentSucceeded

	out := &payment.WebhookEvent{ID: ev.ID, Type: string(ev.Type), Completed: completed}

	if ev.Data != nil && len(ev.Data.Raw) > 0 {
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(ev.Data.Raw, &obj); err != nil {
			return nil, fmt.Errorf("%s: bad payload:%w", op, payment.ErrInvalidSignature)
		}
		out.SessionID = obj.ID
	}

	return out, nil
}

func (c *Client) RefundPayment(ctx context.Context, paymentReference string) error {
	const op = "stripe.Client.RefundPayment"

	params := &stripego.RefundParams{PaymentIntent: stripego.String(paymentReference)}
	params.Context = ctx
	params.SetIdempotencyKey(uuid.NewString())

	if _, err := c.refunds.New(params); err != nil {
		return fmt.Errorf("%s:%w", op, classify(err))
	}

	return nil
}

// SetupWebhookEndpoint replaces existingID with a new endpoint for url.
// Stripe generates the signing secret, so the secret argument is ignored;
// the returned secret is used for verification from now on.
func (c *Client) SetupWebhookEndpoint(
	ctx context.Context,
	_ string,
	endpointURL string,
	existingID string,
) (*payment.WebhookSetup, error) {
	const op = "stripe.Client.SetupWebhookEndpoint"

	if existingID != "" {
		del := &stripego.WebhookEndpointParams{}
		del.Context = ctx
		if _, err := c.endpoints.Del(existingID, del); err != nil {
			if err := classify(err); !errors.Is(err, payment.ErrSessionNotFound) {
				return nil, fmt.Errorf("%s:%w", op, err)
			}
		}
	}

	params := &stripego.WebhookEndpointParams{
		URL: stripego.String(endpointURL),
		EnabledEvents: stripego.StringSlice([]string{
			string(stripego.EventTypeCheckoutSessionCompleted),
			string(stripego.EventTypeCheckoutSessionAsyncPaymentSucceeded),
		}),
	}
	params.Context = ctx

	we, err := c.endpoints.New(params)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, classify(err))
	}

	c.mu.Lock()
	c.webhookSecret = we.Secret
	c.mu.Unlock()

	return &payment.WebhookSetup{EndpointID: we.ID, Secret: we.Secret}, nil
}

// classify turns API errors into payment.StatusError. Anything without an
// HTTP status, such as a dropped connection, is an outage.
func classify(err error) error {
	var se *stripego.Error
	if errors.As(err, &se) && se.HTTPStatusCode != 0 {
		return &payment.StatusError{Provider: payment.ProviderStripe, Status: se.HTTPStatusCode}
	}
	return fmt.Errorf("%v:%w", err, payment.ErrProviderUnavailable)
}

// leveledLogger sends stripe-go's request logs to slog.
type leveledLogger struct{ log *slog.Logger }

func (l leveledLogger) Debugf(format string, v ...any) { l.log.Debug(fmt.Sprintf(format, v...)) }
func (l leveledLogger) Infof(format string, v ...any)  { l.log.Info(fmt.Sprintf(format, v...)) }
func (l leveledLogger) Warnf(format string, v ...any)  { l.log.Warn(fmt.Sprintf(format, v...)) }
func (l leveledLogger) Errorf(format string, v ...any) { l.log.Error(fmt.Sprintf(format, v...)) }
