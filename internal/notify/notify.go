// Package notify delivers best-effort organizer webhooks. Deliveries run
// detached from the request that caused them; failures are reported on an
// error channel and never reach the caller.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/chobbledotcom/tickets-sub006/internal/metrics"
)

// Payload is the organizer notification. It carries identifiers and counts
// only, never attendee PII.
type Payload struct {
	EventID        int64  `json:"event_id"`
	AttendeeID     int64  `json:"attendee_id"`
	Quantity       int    `json:"quantity"`
	Date           string `json:"date,omitempty"`
	AttendeesTotal int    `json:"attendees_total"`
	MaxAttendees   int    `json:"max_attendees"`
	SessionID      string `json:"provider_session_id,omitempty"`
}

type Failure struct {
	EventID    int64
	AttendeeID int64
	Err        error
}

type Config struct {
	Timeout time.Duration
	// Buffer is the capacity of the error channel. Failures beyond it are
	// dropped.
	Buffer int
}

type Dispatcher struct {
	hc      *http.Client
	timeout time.Duration
	errs    chan Failure
	wg      sync.WaitGroup
}

func New(cfg Config, hc *http.Client) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	if hc == nil {
		hc = &http.Client{}
	}

	return &Dispatcher{
		hc:      hc,
		timeout: cfg.Timeout,
		errs:    make(chan Failure, cfg.Buffer),
	}
}

// Dispatch posts p to url in the background and returns immediately.
func (d *Dispatcher) Dispatch(url string, p Payload) {
	if url == "" {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		if err := d.send(url, p); err != nil {
			select {
			case d.errs <- Failure{EventID: p.EventID, AttendeeID: p.AttendeeID, Err: err}:
			default:
			}
		}
	}()
}

func (d *Dispatcher) Errors() <-chan Failure {
	return d.errs
}

// Wait blocks until every dispatched delivery finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Drain logs failures until ctx is done.
func (d *Dispatcher) Drain(ctx context.Context, log *slog.Logger, m *metrics.Metrics) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-d.errs:
			m.NotifyFailed()
			log.Warn("organizer notification failed",
				slog.Int64("event_id", f.EventID),
				slog.Int64("attendee_id", f.AttendeeID),
				slog.String("error", f.Err.Error()),
			)
		}
	}
}

func (d *Dispatcher) send(url string, p Payload) error {
	const op = "notify.Dispatcher.send"

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s: organizer responded %d", op, resp.StatusCode)
	}

	return nil
}
