// Package square is the Square payment-links adapter, built on the Square Go
// SDK. A checkout is a payment link; the Square order it creates is the
// session.
package square

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	squaresdk "github.com/square/square-go-sdk"
	"github.com/square/square-go-sdk/checkout"
	squareclient "github.com/square/square-go-sdk/client"
	"github.com/square/square-go-sdk/core"
	"github.com/square/square-go-sdk/option"

	"github.com/chobbledotcom/tickets-sub006/internal/domain"
	"github.com/chobbledotcom/tickets-sub006/internal/payment"
)

// MetadataLimit is the longest order metadata value Square accepts.
const MetadataLimit = 255

// SandboxURL is the API host for Square sandbox accounts.
var SandboxURL = squaresdk.Environments.Sandbox

type Config struct {
	AccessToken string
	LocationID  string
	// SignatureKey is the webhook subscription's signature key.
	SignatureKey string
	// NotificationURL is the exact URL Square posts webhooks to. It is part
	// of the signed message.
	NotificationURL string
	// BaseURL overrides the API host; empty means production.
	BaseURL     string
	Currency    string
	RedirectURL string
}

type Client struct {
	cfg Config
	api *squareclient.Client
}

func New(cfg Config, hc *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = squaresdk.Environments.Production
	}
	if cfg.Currency == "" {
		cfg.Currency = "GBP"
	}
	cfg.Currency = strings.ToUpper(cfg.Currency)
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}

	api := squareclient.NewClient(
		option.WithToken(cfg.AccessToken),
		option.WithBaseURL(cfg.BaseURL),
		option.WithHTTPClient(hc),
		// Retries are the caller's decision; settlement is idempotent.
		option.WithMaxAttempts(1),
	)

	return &Client{cfg: cfg, api: api}
}

func (c *Client) Provider() payment.Provider {
	return payment.ProviderSquare
}

func (c *Client) CreateCheckoutSession(
	ctx context.Context,
	ev *domain.Event,
	in payment.Intent,
) (*payment.CheckoutSession, error) {
	const op = "square.Client.CreateCheckoutSession"

	if !ev.IsPaid() {
		return nil, fmt.Errorf("%s: event %d has no price", op, ev.ID)
	}

	line := payment.LineItem{Name: ev.Name, UnitPrice: *ev.UnitPrice, Quantity: in.Quantity}

	cs, err := c.createLink(ctx, []payment.Item{in.Item}, []payment.LineItem{line}, in.Contact)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return cs, nil
}

func (c *Client) CreateMultiCheckoutSession(
	ctx context.Context,
	in payment.MultiIntent,
) (*payment.CheckoutSession, error) {
	const op = "square.Client.CreateMultiCheckoutSession"

	cs, err := c.createLink(ctx, in.Items, in.Lines, in.Contact)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return cs, nil
}

func (c *Client) createLink(
	ctx context.Context,
	items []payment.Item,
	lines []payment.LineItem,
	contact domain.Contact,
) (*payment.CheckoutSession, error) {
	md, err := payment.EncodeIntent(items, contact, MetadataLimit)
	if err != nil {
		return nil, err
	}

	li := make([]*squaresdk.OrderLineItem, 0, len(lines))
	for _, l := range lines {
		li = append(li, &squaresdk.OrderLineItem{
			Name:           squaresdk.String(l.Name),
			Quantity:       strconv.Itoa(l.Quantity),
			BasePriceMoney: c.money(payment.MinorUnits(l.UnitPrice)),
		})
	}

	req := &checkout.CreatePaymentLinkRequest{
		IdempotencyKey: squaresdk.String(uuid.NewString()),
		Order: &squaresdk.Order{
			LocationID: c.cfg.LocationID,
			LineItems:  li,
			Metadata:   toMetadata(md),
		},
		CheckoutOptions: &squaresdk.CheckoutOptions{
			RedirectURL: squaresdk.String(c.cfg.RedirectURL),
		},
	}
	if contact.Email != "" {
		req.PrePopulatedData = &squaresdk.PrePopulatedData{BuyerEmail: squaresdk.String(contact.Email)}
	}

	resp, err := c.api.Checkout.PaymentLinks.Create(ctx, req)
	if err != nil {
		return nil, classify(err)
	}
	if resp.PaymentLink == nil {
		return nil, fmt.Errorf("no payment link in response:%w", payment.ErrProviderUnavailable)
	}

	return &payment.CheckoutSession{
		SessionID:   deref(resp.PaymentLink.OrderID),
		CheckoutURL: deref(resp.PaymentLink.URL),
	}, nil
}

// RetrieveSession loads the order behind a payment link. The order is paid
// once it is completed or carries a tender.
func (c *Client) RetrieveSession(ctx context.Context, orderID string) (*payment.Session, error) {
	const op = "square.Client.RetrieveSession"

	resp, err := c.api.Orders.Get(ctx, &squaresdk.GetOrdersRequest{OrderID: orderID})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, classify(err))
	}
	if resp.Order == nil {
		return nil, fmt.Errorf("%s:%w", op, payment.ErrSessionNotFound)
	}

	o := resp.Order
	s := &payment.Session{
		ID:            deref(o.ID),
		PaymentStatus: payment.StatusUnpaid,
		Metadata:      fromMetadata(o.Metadata),
	}
	for _, t := range o.Tenders {
		if t != nil && deref(t.PaymentID) != "" {
			s.PaymentReference = *t.PaymentID
			break
		}
	}
	if (o.State != nil && *o.State == squaresdk.OrderStateCompleted) || s.PaymentReference != "" {
		s.PaymentStatus = payment.StatusPaid
	}

	return s, nil
}

// VerifyWebhookSignature checks the x-square-hmacsha256-signature header:
// base64(HMAC-SHA256(signature key, notification URL || body)).
func (c *Client) VerifyWebhookSignature(payload []byte, signature string) (*payment.WebhookEvent, error) {
	const op = "square.Client.VerifyWebhookSignature"

	if c.cfg.SignatureKey == "" || signature == "" {
		return nil, fmt.Errorf("%s:%w", op, payment.ErrInvalidSignature)
	}

	expected := Sign(c.cfg.SignatureKey, c.cfg.NotificationURL, payload)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return nil, fmt.Errorf("%s:%w", op, payment.ErrInvalidSignature)
	}

	var ev struct {
		EventID string `json:"event_id"`
		Type    string `json:"type"`
		Data    struct {
			Object struct {
				Payment struct {
					OrderID string `json:"order_id"`
					Status  string `json:"status"`
				} `json:"payment"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%s: bad payload:%w", op, payment.ErrInvalidSignature)
	}

	p := ev.Data.Object.Payment

	return &payment.WebhookEvent{
		ID:        ev.EventID,
		Type:      ev.Type,
		SessionID: p.OrderID,
		Completed: strings.HasPrefix(ev.Type, "payment.") && p.Status == "COMPLETED",
	}, nil
}

// RefundPayment refunds the full amount of a payment. Square needs the
// amount, so the payment is looked up first.
func (c *Client) RefundPayment(ctx context.Context, paymentID string) error {
	const op = "square.Client.RefundPayment"

	got, err := c.api.Payments.Get(ctx, &squaresdk.GetPaymentsRequest{PaymentID: paymentID})
	if err != nil {
		return fmt.Errorf("%s:%w", op, classify(err))
	}
	if got.Payment == nil || got.Payment.AmountMoney == nil {
		return fmt.Errorf("%s: payment %s has no amount:%w", op, paymentID, payment.ErrProviderUnavailable)
	}

	_, err = c.api.Refunds.RefundPayment(ctx, &squaresdk.RefundPaymentRequest{
		IdempotencyKey: uuid.NewString(),
		PaymentID:      squaresdk.String(paymentID),
		AmountMoney:    got.Payment.AmountMoney,
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, classify(err))
	}

	return nil
}

// SetupWebhookEndpoint always fails: Square webhook subscriptions and their
// signature keys are managed in the developer dashboard.
func (c *Client) SetupWebhookEndpoint(
	_ context.Context,
	_ string,
	endpointURL string,
	_ string,
) (*payment.WebhookSetup, error) {
	return nil, &payment.ManualSetupError{
		Provider: payment.ProviderSquare,
		Steps: fmt.Sprintf(
			"create a webhook subscription for payment.updated pointing at %s "+
				"and set SQUARE_SIGNATURE_KEY and SQUARE_NOTIFICATION_URL to its values",
			endpointURL,
		),
	}
}

// Sign computes the signature Square sends for body posted to
// notificationURL.
func Sign(key, notificationURL string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(notificationURL))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *Client) money(amount int64) *squaresdk.Money {
	return &squaresdk.Money{
		Amount:   squaresdk.Int64(amount),
		Currency: squaresdk.Currency(c.cfg.Currency).Ptr(),
	}
}

// classify turns SDK errors into payment.StatusError. Anything without an
// HTTP status, such as a dropped connection, is an outage.
func classify(err error) error {
	var apiErr *core.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		return &payment.StatusError{Provider: payment.ProviderSquare, Status: apiErr.StatusCode}
	}
	return fmt.Errorf("%v:%w", err, payment.ErrProviderUnavailable)
}

// toMetadata converts encoded intent values to the SDK's nullable form.
func toMetadata(md map[string]string) map[string]*string {
	out := make(map[string]*string, len(md))
	for k, v := range md {
		out[k] = squaresdk.String(v)
	}
	return out
}

func fromMetadata(md map[string]*string) map[string]string {
	if md == nil {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = deref(v)
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
