package stripe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/chobbledotcom/tickets-sub006/internal/domain"
	"github.com/chobbledotcom/tickets-sub006/internal/payment"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return New(Config{
		SecretKey:     "sk_test",
		WebhookSecret: "whsec_test",
		BaseURL:       srv.URL,
		Currency:      "gbp",
		SuccessURL:    "https://tickets.example/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     "https://tickets.example/",
	}, srv.Client())
}

func writeAPIError(w http.ResponseWriter, status int, typ string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"type": typ, "message": http.StatusText(status)},
	})
}

func signed(t *testing.T, secret string, at time.Time, payload []byte) string {
	t.Helper()
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: at,
	}).Header
}

func TestCreateCheckoutSession(t *testing.T) {
	price := decimal.RequireFromString("12.50")
	ev := &domain.Event{ID: 3, Name: "Gig", UnitPrice: &price}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))

		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "payment", r.PostForm.Get("mode"))
		assert.Equal(t, "1250", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
		assert.Equal(t, "gbp", r.PostForm.Get("line_items[0][price_data][currency]"))
		assert.Equal(t, "Gig", r.PostForm.Get("line_items[0][price_data][product_data][name]"))
		assert.Equal(t, "2", r.PostForm.Get("line_items[0][quantity]"))
		assert.Equal(t, "ada@example.com", r.PostForm.Get("customer_email"))
		assert.Equal(t, "3", r.PostForm.Get("metadata[event_id]"))
		assert.Equal(t, "Ada", r.PostForm.Get("metadata[name]"))

		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":     "cs_123",
			"object": "checkout.session",
			"url":    "https://checkout.stripe.com/cs_123",
		})
	})

	cs, err := c.CreateCheckoutSession(context.Background(), ev, payment.Intent{
		Item:    payment.Item{EventID: 3, Quantity: 2},
		Contact: domain.Contact{Name: "Ada", Email: "ada@example.com"},
	})

	require.NoError(t, err)
	assert.Equal(t, "cs_123", cs.SessionID)
	assert.Equal(t, "https://checkout.stripe.com/cs_123", cs.CheckoutURL)
}

func TestCreateCheckoutSession_FreeEventRefused(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("provider must not be called")
	})

	_, err := c.CreateCheckoutSession(context.Background(), &domain.Event{ID: 1}, payment.Intent{
		Item: payment.Item{EventID: 1, Quantity: 1},
	})
	assert.Error(t, err)
}

func TestRetrieveSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/checkout/sessions/cs_missing" {
			writeAPIError(w, http.StatusNotFound, "invalid_request_error")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":             "cs_123",
			"object":         "checkout.session",
			"payment_status": "paid",
			"payment_intent": "pi_9",
			"metadata":       map[string]string{"event_id": "3", "quantity": "2"},
		})
	})

	s, err := c.RetrieveSession(context.Background(), "cs_123")
	require.NoError(t, err)
	assert.True(t, s.Paid())
	assert.Equal(t, "pi_9", s.PaymentReference)
	assert.Equal(t, "3", s.Metadata["event_id"])

	_, err = c.RetrieveSession(context.Background(), "cs_missing")
	assert.ErrorIs(t, err, payment.ErrSessionNotFound)
}

func TestRetrieveSession_Unpaid(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":             "cs_123",
			"object":         "checkout.session",
			"payment_status": "unpaid",
		})
	})

	s, err := c.RetrieveSession(context.Background(), "cs_123")
	require.NoError(t, err)
	assert.False(t, s.Paid())
	assert.Empty(t, s.PaymentReference)
}

func TestRetrieveSession_ProviderDown(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusBadGateway, "api_error")
	})

	_, err := c.RetrieveSession(context.Background(), "cs_123")
	assert.ErrorIs(t, err, payment.ErrProviderUnavailable)
}

func TestRetrieveSession_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := New(Config{SecretKey: "sk_test", BaseURL: srv.URL}, nil)

	_, err := c.RetrieveSession(context.Background(), "cs_123")
	assert.ErrorIs(t, err, payment.ErrProviderUnavailable)
}

func TestVerifyWebhookSignature(t *testing.T) {
	c := New(Config{WebhookSecret: "whsec_test"}, nil)
	now := time.Now()

	payload := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_123","object":"checkout.session"}}}`)
	header := signed(t, "whsec_test", now, payload)

	ev, err := c.VerifyWebhookSignature(payload, header)
	require.NoError(t, err)
	assert.True(t, ev.Completed)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, "cs_123", ev.SessionID)

	t.Run("tampered payload", func(t *testing.T) {
		tampered := append(append([]byte(nil), payload...), ' ')
		_, err := c.VerifyWebhookSignature(tampered, header)
		assert.ErrorIs(t, err, payment.ErrInvalidSignature)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := c.VerifyWebhookSignature(payload, signed(t, "other", now, payload))
		assert.ErrorIs(t, err, payment.ErrInvalidSignature)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		_, err := c.VerifyWebhookSignature(payload, signed(t, "whsec_test", now.Add(-10*time.Minute), payload))
		assert.ErrorIs(t, err, payment.ErrInvalidSignature)
	})

	t.Run("malformed header", func(t *testing.T) {
		_, err := c.VerifyWebhookSignature(payload, "garbage")
		assert.ErrorIs(t, err, payment.ErrInvalidSignature)
	})
}

func TestVerifyWebhookSignature_NonCompletion(t *testing.T) {
	c := New(Config{WebhookSecret: "whsec_test"}, nil)

	payload := []byte(`{"id":"evt_2","object":"event","type":"checkout.session.expired","data":{"object":{"id":"cs_9"}}}`)

	ev, err := c.VerifyWebhookSignature(payload, signed(t, "whsec_test", time.Now(), payload))
	require.NoError(t, err)
	assert.False(t, ev.Completed)
	assert.Equal(t, "cs_9", ev.SessionID)
}

func TestSetupWebhookEndpoint_ReplacesAndRotatesSecret(t *testing.T) {
	var deleted bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodDelete && r.URL.Path == "/v1/webhook_endpoints/we_old":
			deleted = true
			_, _ = w.Write([]byte(`{"id":"we_old","object":"webhook_endpoint","deleted":true}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v1/webhook_endpoints":
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "https://tickets.example/webhooks/stripe", r.PostForm.Get("url"))
			assert.Equal(t, "checkout.session.completed", r.PostForm.Get("enabled_events[0]"))
			_ = json.NewEncoder(w).Encode(map[string]string{
				"id":     "we_new",
				"object": "webhook_endpoint",
				"secret": "whsec_new",
			})
		default:
			writeAPIError(w, http.StatusNotFound, "invalid_request_error")
		}
	})

	setup, err := c.SetupWebhookEndpoint(context.Background(), "", "https://tickets.example/webhooks/stripe", "we_old")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, "we_new", setup.EndpointID)

	payload := []byte(`{"id":"evt_3","object":"event","type":"ping"}`)
	_, err = c.VerifyWebhookSignature(payload, signed(t, "whsec_new", time.Now(), payload))
	assert.NoError(t, err)

	_, err = c.VerifyWebhookSignature(payload, signed(t, "whsec_test", time.Now(), payload))
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)
}

func TestSetupWebhookEndpoint_MissingOldEndpointIgnored(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			writeAPIError(w, http.StatusNotFound, "invalid_request_error")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "we_new", "object": "webhook_endpoint", "secret": "whsec_new"})
	})

	setup, err := c.SetupWebhookEndpoint(context.Background(), "", "https://tickets.example/webhooks/stripe", "we_gone")
	require.NoError(t, err)
	assert.Equal(t, "whsec_new", setup.Secret)
}

func TestRefundPayment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/refunds", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "pi_9", r.PostForm.Get("payment_intent"))
		_, _ = w.Write([]byte(`{"id":"re_1","object":"refund"}`))
	})

	assert.NoError(t, c.RefundPayment(context.Background(), "pi_9"))
}

func TestRefundPayment_Rejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusServiceUnavailable, "api_error")
	})

	assert.ErrorIs(t, c.RefundPayment(context.Background(), "pi_9"), payment.ErrProviderUnavailable)
}
