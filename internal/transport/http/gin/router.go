package httpgin

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/chobbledotcom/tickets-sub006/internal/domain"
	"github.com/chobbledotcom/tickets-sub006/internal/envelope"
	"github.com/chobbledotcom/tickets-sub006/internal/payment"
	redisrepo "github.com/chobbledotcom/tickets-sub006/internal/repository/redis"
	"github.com/chobbledotcom/tickets-sub006/internal/service"
	"github.com/chobbledotcom/tickets-sub006/internal/service/admin"
	"github.com/chobbledotcom/tickets-sub006/internal/service/attendees"
	"github.com/chobbledotcom/tickets-sub006/internal/service/checkout"
	"github.com/chobbledotcom/tickets-sub006/internal/service/keyring"
	"github.com/chobbledotcom/tickets-sub006/internal/service/query"
	"github.com/chobbledotcom/tickets-sub006/internal/service/registration"
	"github.com/chobbledotcom/tickets-sub006/internal/service/settlement"
)

// signatureHeaders names the header each provider signs webhooks in.
var signatureHeaders = map[payment.Provider]string{
	payment.ProviderStripe: "Stripe-Signature",
	payment.ProviderSquare: "X-Square-Hmacsha256-Signature",
}

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	gatherer prometheus.Gatherer,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// Public API
	r.GET("/events/:id", handleGetEvent(svcs))
	r.GET("/events/:id/availability", handleGetAvailability(svcs))
	r.GET("/events/:id/dates", handleGetDates(svcs))
	r.POST("/events/:id/register", handleRegister(svcs))
	r.POST("/events/:id/checkout", handleCreateCheckout(svcs, idem))
	r.POST("/checkout", handleCreateMultiCheckout(svcs, idem))
	r.GET("/checkout/success", handleCheckoutSuccess(svcs))

	r.POST("/webhooks/:provider", handleWebhook(svcs))

	// Admin API
	r.POST("/admin/setup", handleSetup(svcs))
	r.POST("/admin/login", handleLogin(svcs))

	adm := r.Group("/admin", AdminAuth(svcs.Sessions))
	{
		adm.POST("/logout", handleLogout(svcs))
		adm.POST("/admins", handleAddAdmin(svcs))
		adm.POST("/events", handleCreateEvent(svcs))
		adm.POST("/holidays", handleAddHoliday(svcs))
		adm.GET("/events/:id/attendees", handleListAttendees(svcs))
		adm.POST("/attendees/:id/checkin", handleCheckIn(svcs))
		adm.POST("/tickets/:token/checkin", handleCheckInByToken(svcs))
		adm.POST("/attendees/:id/refund", handleRefund(svcs))
		adm.GET("/anomalies", handleListAnomalies(svcs))
		adm.POST("/anomalies/:id/resolve", handleResolveAnomaly(svcs))
		adm.POST("/webhook/setup", handleSetupWebhook(svcs))
	}

	return r
}

// --- Public handlers ---

// @Summary  Get event
// @Param    id  path  int  true  "Event ID"
// @Success  200  {object}  EventResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id} [get]
func handleGetEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		ev, err := svcs.Query.GetEvent(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, newEventResponse(ev), cacheEvent)
	}
}

// @Summary  Get remaining capacity
// @Param    id    path   int     true   "Event ID"
// @Param    date  query  string  false  "YYYY-MM-DD, daily events only"
// @Success  200  {object}  domain.Availability
// @Failure  400  {object}  ErrorResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id}/availability [get]
func handleGetAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		av, err := svcs.Query.Availability(c.Request.Context(), eventID, c.Query("date"))
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, av, cacheAvailability)
	}
}

// @Summary  List bookable dates of a daily event
// @Param    id  path  int  true  "Event ID"
// @Success  200  {object}  DatesResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id}/dates [get]
func handleGetDates(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		dates, err := svcs.Query.BookableDates(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, DatesResponse{EventID: eventID, Dates: dates}, cacheDates)
	}
}

// @Summary  Register for a free event
// @Param    id   path  int              true  "Event ID"
// @Param    req  body  RegisterRequest  true  "payload"
// @Success  201  {object}  RegisterResponse
// @Failure  400  {object}  ErrorResponse
// @Failure  402  {object}  ErrorResponse  "paid event, use checkout"
// @Failure  409  {object}  ErrorResponse  "sold out"
// @Router   /events/{id}/register [post]
func handleRegister(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		reg, err := svcs.Registration.Register(c.Request.Context(), registration.Input{
			EventID:  eventID,
			Date:     req.Date,
			Quantity: req.Quantity,
			Contact:  req.Contact.toDomain(),
		})
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, RegisterResponse{
			Ticket:    reg.Attendee.Ticket(),
			Remaining: reg.Event.MaxAttendees - reg.Committed,
		})
	}
}

// @Summary  Start a paid checkout for one event (idempotent)
// @Param    id   path  int              true  "Event ID"
// @Param    req  body  CheckoutRequest  true  "payload"
// @Header   201  {string}  Idempotency-Key  "echo"
// @Success  201  {object}  CheckoutResponse
// @Failure  400  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse  "sold out / idem in progress"
// @Failure  429  {object}  ErrorResponse  "rate limited"
// @Router   /events/{id}/checkout [post]
func handleCreateCheckout(svcs *service.Services, idem *redisrepo.IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req CheckoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		scope := "event:" + strconv.FormatInt(eventID, 10)
		idempotent(c, idem, scope, func() (any, error) {
			co, err := svcs.Checkout.CreateCheckout(c.Request.Context(), payment.Intent{
				Item:    payment.Item{EventID: eventID, Quantity: req.Quantity, Date: req.Date},
				Contact: req.Contact.toDomain(),
			}, "ip:"+c.ClientIP())
			if err != nil {
				return nil, err
			}
			return newCheckoutResponse(co), nil
		})
	}
}

// @Summary  Start a paid checkout covering several events (idempotent)
// @Param    req  body  MultiCheckoutRequest  true  "payload"
// @Header   201  {string}  Idempotency-Key  "echo"
// @Success  201  {object}  CheckoutResponse
// @Failure  400  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse  "sold out / idem in progress"
// @Failure  422  {object}  ErrorResponse  "too many items for the provider"
// @Failure  429  {object}  ErrorResponse  "rate limited"
// @Router   /checkout [post]
func handleCreateMultiCheckout(svcs *service.Services, idem *redisrepo.IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req MultiCheckoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idempotent(c, idem, "multi", func() (any, error) {
			co, err := svcs.Checkout.CreateMultiCheckout(
				c.Request.Context(),
				req.items(),
				req.Contact.toDomain(),
				"ip:"+c.ClientIP(),
			)
			if err != nil {
				return nil, err
			}
			return newCheckoutResponse(co), nil
		})
	}
}

// @Summary  Checkout completion redirect
// @Param    provider    query  string  true   "stripe or square"
// @Param    session_id  query  string  false  "Stripe checkout session"
// @Param    orderId     query  string  false  "Square order"
// @Success  200  {object}  SettlementResponse
// @Failure  402  {object}  ErrorResponse  "not paid yet"
// @Failure  409  {object}  ErrorResponse  "paid but sold out"
// @Router   /checkout/success [get]
func handleCheckoutSuccess(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		provider := payment.Provider(c.Query("provider"))
		sessionID := c.Query("session_id")
		if sessionID == "" {
			sessionID = c.Query("orderId")
		}
		if provider == "" || sessionID == "" {
			badRequest(c, "provider and session id are required")
			return
		}

		res, err := svcs.Settlement.Settle(c.Request.Context(), provider, sessionID, settlement.TriggerRedirect)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, SettlementResponse{
			SessionID: res.SessionID,
			Tickets:   res.Tickets,
			Duplicate: res.Duplicate,
		})
	}
}

// @Summary  Provider webhook
// @Param    provider  path  string  true  "stripe or square"
// @Success  200  {object}  WebhookResponse
// @Failure  400  {object}  ErrorResponse  "invalid signature"
// @Failure  404  {object}  ErrorResponse  "unknown provider"
// @Failure  500  {object}  ErrorResponse
// @Failure  502  {object}  ErrorResponse  "provider unavailable"
// @Router   /webhooks/{provider} [post]
func handleWebhook(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		provider := payment.Provider(c.Param("provider"))
		header, ok := signatureHeaders[provider]
		if !ok {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown payment provider"})
			return
		}

		payload, err := c.GetRawData()
		if err != nil {
			badRequest(c, "unreadable body")
			return
		}

		res, err := svcs.Settlement.HandleWebhook(c.Request.Context(), provider, payload, c.GetHeader(header))
		if err != nil {
			respondWebhookErr(c, err)
			return
		}

		status := "settled"
		switch {
		case res.Ignored:
			status = "ignored"
		case res.Duplicate:
			status = "duplicate"
		}

		c.JSON(http.StatusOK, WebhookResponse{Received: true, Status: status, SessionID: res.SessionID})
	}
}

// respondWebhookErr answers a failed delivery. Only a bad signature is a
// client error. Outcomes a redelivery cannot change are acknowledged with
// 200, and everything else is a 5xx so the provider retries.
func respondWebhookErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, payment.ErrInvalidSignature):
		respondErr(c, err)
	case errors.Is(err, settlement.ErrOversoldAnomaly):
		// The payment is on record as an anomaly.
		c.JSON(http.StatusOK, WebhookResponse{Received: true, Status: "anomaly"})
	case errors.Is(err, settlement.ErrPaymentNotCompleted):
		// Delayed methods send another event once the money clears.
		c.JSON(http.StatusOK, WebhookResponse{Received: true, Status: "pending"})
	case errors.Is(err, payment.ErrSessionNotFound), errors.Is(err, payment.ErrInvalidMetadata):
		// Not a checkout this service created.
		_ = c.Error(err)
		c.JSON(http.StatusOK, WebhookResponse{Received: true, Status: "rejected"})
	case errors.Is(err, payment.ErrProviderUnavailable):
		respondErr(c, err)
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

// --- Admin handlers ---

// @Summary  First-time setup: create the key set and the first admin
// @Param    req  body  CredentialsRequest  true  "payload"
// @Success  201  {object}  LoginResponse
// @Failure  409  {object}  ErrorResponse  "already set up"
// @Router   /admin/setup [post]
func handleSetup(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CredentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		u, err := svcs.Keyring.Setup(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			respondErr(c, err)
			return
		}

		sess := svcs.Sessions.Create(u.AdminID, u.Username, u.Key)
		c.JSON(http.StatusCreated, LoginResponse{Token: sess.Token, ExpiresAt: sess.Expires})
	}
}

// @Summary  Log in and unlock the data key
// @Param    req  body  CredentialsRequest  true  "payload"
// @Success  200  {object}  LoginResponse
// @Failure  401  {object}  ErrorResponse
// @Router   /admin/login [post]
func handleLogin(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CredentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		u, err := svcs.Keyring.Unlock(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			respondErr(c, err)
			return
		}

		sess := svcs.Sessions.Create(u.AdminID, u.Username, u.Key)
		c.JSON(http.StatusOK, LoginResponse{Token: sess.Token, ExpiresAt: sess.Expires})
	}
}

// @Summary  Log out and forget the data key
// @Security AdminSession
// @Success  204
// @Router   /admin/logout [post]
func handleLogout(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		svcs.Sessions.Delete(adminSession(c).Token)
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Add another admin sharing the data key
// @Security AdminSession
// @Param    req  body  CredentialsRequest  true  "payload"
// @Success  201  {object}  CreateAdminResponse
// @Failure  409  {object}  ErrorResponse
// @Router   /admin/admins [post]
func handleAddAdmin(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CredentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		id, err := svcs.Keyring.AddAdmin(c.Request.Context(), adminSession(c).Key, req.Username, req.Password)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateAdminResponse{AdminID: id})
	}
}

// @Summary  Create event
// @Security AdminSession
// @Param    req  body  CreateEventRequest  true  "payload"
// @Success  201  {object}  CreateEventResponse
// @Failure  400  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse  "slug taken"
// @Router   /admin/events [post]
func handleCreateEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		ev, err := req.toDomain()
		if err != nil {
			badRequest(c, err.Error())
			return
		}

		id, err := svcs.Admin.CreateEvent(c.Request.Context(), ev)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateEventResponse{EventID: id})
	}
}

// @Summary  Add a holiday closing daily events
// @Security AdminSession
// @Param    req  body  CreateHolidayRequest  true  "payload"
// @Success  201  {object}  CreateHolidayResponse
// @Failure  400  {object}  ErrorResponse
// @Router   /admin/holidays [post]
func handleAddHoliday(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateHolidayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		id, err := svcs.Admin.AddHoliday(c.Request.Context(), &domain.Holiday{
			Name:      req.Name,
			StartDate: req.StartDate,
			EndDate:   req.EndDate,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateHolidayResponse{HolidayID: id})
	}
}

// @Summary  List attendees with decrypted contact details
// @Security AdminSession
// @Param    id  path  int  true  "Event ID"
// @Success  200  {array}   AttendeeResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /admin/events/{id}/attendees [get]
func handleListAttendees(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		list, err := svcs.Attendees.List(c.Request.Context(), eventID, adminSession(c).Key)
		if err != nil {
			respondErr(c, err)
			return
		}

		out := make([]AttendeeResponse, 0, len(list))
		for _, a := range list {
			out = append(out, newDecryptedAttendeeResponse(a))
		}
		c.Header("Cache-Control", "no-store")
		c.JSON(http.StatusOK, out)
	}
}

// @Summary  Check in an attendee
// @Security AdminSession
// @Param    id  path  int  true  "Attendee ID"
// @Success  200  {object}  AttendeeResponse
// @Failure  409  {object}  ErrorResponse  "refunded or already checked in"
// @Router   /admin/attendees/{id}/checkin [post]
func handleCheckIn(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		a, err := svcs.Attendees.CheckIn(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, newAttendeeResponse(*a))
	}
}

// @Summary  Check in by ticket token
// @Security AdminSession
// @Param    token  path  string  true  "Ticket token"
// @Success  200  {object}  AttendeeResponse
// @Failure  404  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse  "refunded or already checked in"
// @Router   /admin/tickets/{token}/checkin [post]
func handleCheckInByToken(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := svcs.Attendees.CheckInByToken(c.Request.Context(), c.Param("token"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, newAttendeeResponse(*a))
	}
}

// @Summary  Refund an attendee's payment
// @Security AdminSession
// @Param    id  path  int  true  "Attendee ID"
// @Success  200  {array}   AttendeeResponse  "every attendee of the payment"
// @Failure  409  {object}  ErrorResponse     "no payment or already refunded"
// @Failure  502  {object}  ErrorResponse
// @Router   /admin/attendees/{id}/refund [post]
func handleRefund(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		refunded, err := svcs.Attendees.Refund(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		out := make([]AttendeeResponse, 0, len(refunded))
		for _, a := range refunded {
			out = append(out, newAttendeeResponse(a))
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary  List oversold-but-paid anomalies
// @Security AdminSession
// @Param    all  query  bool  false  "include resolved"
// @Success  200  {array}  domain.PaymentAnomaly
// @Router   /admin/anomalies [get]
func handleListAnomalies(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svcs.Attendees.ListAnomalies(c.Request.Context(), c.Query("all") == "true")
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// @Summary  Resolve an anomaly, optionally refunding the payment
// @Security AdminSession
// @Param    id   path  string                 true  "Provider session ID"
// @Param    req  body  ResolveAnomalyRequest  false "payload"
// @Success  204
// @Failure  404  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse  "already resolved"
// @Router   /admin/anomalies/{id}/resolve [post]
func handleResolveAnomaly(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ResolveAnomalyRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err.Error())
				return
			}
		}

		if err := svcs.Attendees.ResolveAnomaly(c.Request.Context(), c.Param("id"), req.Refund); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Register the webhook endpoint with the active provider
// @Security AdminSession
// @Param    req  body  WebhookSetupRequest  true  "payload"
// @Success  200  {object}  WebhookSetupResponse
// @Failure  422  {object}  ErrorResponse  "provider needs manual setup"
// @Router   /admin/webhook/setup [post]
func handleSetupWebhook(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req WebhookSetupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		setup, err := svcs.Admin.SetupWebhook(c.Request.Context(), req.URL)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, WebhookSetupResponse{EndpointID: setup.EndpointID, Secret: setup.Secret})
	}
}

// --- Helpers ---

// idempotent runs fn once per Idempotency-Key and scope. Repeated requests
// replay the stored 201 body; a request racing the first one gets 409.
func idempotent(c *gin.Context, idem *redisrepo.IdempotencyStore, scope string, fn func() (any, error)) {
	ctx := c.Request.Context()

	idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	var idemStorageKey string
	if idem != nil && idemKey != "" {
		idemStorageKey = redisrepo.KeyIdemCheckout(scope, idemKey)

		if payload, ok, _ := idem.GetResult(ctx, idemStorageKey); ok {
			replay(c, idemKey, payload)
			return
		}

		locked, err := idem.AcquireLock(ctx, idemStorageKey, 60*time.Second)
		if err != nil {
			respondErr(c, err)
			return
		}
		if !locked {
			if payload, ok, _ := idem.GetResult(ctx, idemStorageKey); ok {
				replay(c, idemKey, payload)
				return
			}
			c.Header("Retry-After", "1")
			c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
			return
		}
	}

	resp, err := fn()
	if err != nil {
		if idemStorageKey != "" {
			_ = idem.Release(ctx, idemStorageKey)
		}
		respondErr(c, err)
		return
	}

	if idemStorageKey != "" {
		b, _ := json.Marshal(resp)
		_ = idem.SaveResult(ctx, idemStorageKey, string(b))
		c.Header("Idempotency-Key", idemKey)
	}

	c.JSON(http.StatusCreated, resp)
}

func replay(c *gin.Context, idemKey, payload string) {
	c.Header("Idempotency-Key", idemKey)
	c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
}

func newCheckoutResponse(co *checkout.Checkout) CheckoutResponse {
	return CheckoutResponse{
		Provider:    string(co.Provider),
		SessionID:   co.SessionID,
		CheckoutURL: co.CheckoutURL,
		Total:       co.Total.StringFixed(2),
	}
}

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

type errorMapping struct {
	target error
	status int
	msg    string
}

// errorMappings is checked in order; keyring.ErrLocked must precede
// envelope.ErrDecryptFailed, which it wraps.
var errorMappings = []errorMapping{
	// payment gateways
	{payment.ErrInvalidSignature, http.StatusBadRequest, "invalid signature"},
	{payment.ErrUnknownProvider, http.StatusNotFound, "unknown payment provider"},
	{payment.ErrSessionNotFound, http.StatusNotFound, "checkout session not found"},
	{payment.ErrMetadataTooLong, http.StatusUnprocessableEntity, "too many items for one checkout"},
	{payment.ErrInvalidMetadata, http.StatusUnprocessableEntity, "checkout session carries no booking"},
	{payment.ErrProviderUnavailable, http.StatusBadGateway, "payment provider unavailable"},
	// settlement service
	{settlement.ErrOversoldAnomaly, http.StatusConflict, "payment received but the event is sold out, the organizer will contact you"},
	{settlement.ErrPaymentNotCompleted, http.StatusPaymentRequired, "payment not completed"},
	// registration service
	{registration.ErrCapacityExceeded, http.StatusConflict, "sold out"},
	{registration.ErrEventNotFound, http.StatusNotFound, "event not found"},
	{registration.ErrEventInactive, http.StatusConflict, "event is not accepting registrations"},
	{registration.ErrInvalidQuantity, http.StatusBadRequest, "quantity must be positive"},
	{registration.ErrQuantityTooLarge, http.StatusBadRequest, "quantity exceeds the per-purchase limit"},
	{registration.ErrDateRequired, http.StatusBadRequest, "date is required"},
	{registration.ErrDateNotAllowed, http.StatusBadRequest, "date is not accepted for this event"},
	{registration.ErrDateUnavailable, http.StatusUnprocessableEntity, "date is not bookable"},
	{registration.ErrPaymentRequired, http.StatusPaymentRequired, "event requires payment"},
	// checkout service
	{checkout.ErrFreeEvent, http.StatusBadRequest, "event is free, register directly"},
	{checkout.ErrEmptyCheckout, http.StatusBadRequest, "checkout has no items"},
	{checkout.ErrContactRequired, http.StatusBadRequest, "name and email are required"},
	// keyring service
	{keyring.ErrAlreadySetUp, http.StatusConflict, "already set up"},
	{keyring.ErrNotSetUp, http.StatusConflict, "not set up"},
	{keyring.ErrInvalidCredentials, http.StatusUnauthorized, "invalid username or password"},
	{keyring.ErrAdminExists, http.StatusConflict, "admin already exists"},
	{keyring.ErrLocked, http.StatusUnauthorized, "session key is not available"},
	{keyring.ErrInvalidInput, http.StatusBadRequest, "invalid username or password format"},
	// attendees service
	{attendees.ErrEventNotFound, http.StatusNotFound, "event not found"},
	{attendees.ErrAttendeeNotFound, http.StatusNotFound, "attendee not found"},
	{attendees.ErrRefunded, http.StatusConflict, "attendee has been refunded"},
	{attendees.ErrAlreadyCheckedIn, http.StatusConflict, "attendee already checked in"},
	{attendees.ErrNoPaymentReference, http.StatusConflict, "attendee has no payment to refund"},
	{attendees.ErrAlreadyRefunded, http.StatusConflict, "attendee already refunded"},
	{attendees.ErrAnomalyNotFound, http.StatusNotFound, "anomaly not found"},
	{attendees.ErrAnomalyResolved, http.StatusConflict, "anomaly already resolved"},
	// query service
	{query.ErrEventNotFound, http.StatusNotFound, "event not found"},
	{query.ErrDateRequired, http.StatusBadRequest, "date is required"},
	{query.ErrDateNotAllowed, http.StatusBadRequest, "date is not accepted for this event"},
	{query.ErrInvalidDate, http.StatusBadRequest, "invalid date"},
	// admin service
	{admin.ErrEventConflict, http.StatusConflict, "event conflict"},
	{admin.ErrInvalidEvent, http.StatusBadRequest, "invalid event"},
	{admin.ErrInvalidHoliday, http.StatusBadRequest, "invalid holiday"},
	{admin.ErrInvalidURL, http.StatusBadRequest, "webhook url must be absolute https"},
	// encryption
	{envelope.ErrDecryptFailed, http.StatusInternalServerError, "internal error"},
	{envelope.ErrEncryptFailed, http.StatusInternalServerError, "internal error"},
}

// respondErr maps classified errors to fixed messages. Internal error text
// is only recorded on the context for the access log.
func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var rl *checkout.RateLimitedError
	if errors.As(err, &rl) {
		c.Header("Retry-After", strconv.Itoa(max(int(math.Ceil(rl.RetryAfter.Seconds())), 1)))
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many checkout attempts"})
		return
	}

	var ce *registration.CapacityError
	if errors.As(err, &ce) {
		c.JSON(http.StatusConflict, ErrorResponse{Error: fmt.Sprintf("sold out, %d remaining", max(ce.Remaining, 0))})
		return
	}

	var manual *payment.ManualSetupError
	if errors.As(err, &manual) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: manual.Error()})
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			if m.status >= http.StatusInternalServerError {
				_ = c.Error(err)
			}
			c.JSON(m.status, ErrorResponse{Error: m.msg})
			return
		}
	}

	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
