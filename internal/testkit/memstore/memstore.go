// Package memstore is an in-memory uow.Runner for service tests.
//
// Write transactions run one at a time against a private copy of the
// committed state; the copy replaces the committed state only when the
// transaction function returns nil. Read transactions see the last committed
// state and may run alongside a writer.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/chobbledotcom/tickets-sub006/internal/domain"
	"github.com/chobbledotcom/tickets-sub006/internal/repository"
	"github.com/chobbledotcom/tickets-sub006/internal/uow"
)

var errReadOnly = errors.New("memstore: write in read transaction")

// sequences holds one id counter per table, like a BIGSERIAL column.
type sequences struct {
	events    int64
	holidays  int64
	attendees int64
	admins    int64
}

type state struct {
	seq       sequences
	events    map[int64]domain.Event
	holidays  []domain.Holiday
	attendees map[int64]domain.Attendee
	payments  map[string]domain.ProcessedPayment
	anomalies map[string]domain.PaymentAnomaly
	keySet    *domain.KeySet
	admins    map[int64]domain.Admin
}

func newState() *state {
	return &state{
		events:    map[int64]domain.Event{},
		attendees: map[int64]domain.Attendee{},
		payments:  map[string]domain.ProcessedPayment{},
		anomalies: map[string]domain.PaymentAnomaly{},
		admins:    map[int64]domain.Admin{},
	}
}

func (s *state) clone() *state {
	cp := &state{
		seq:       s.seq,
		events:    maps.Clone(s.events),
		holidays:  slices.Clone(s.holidays),
		attendees: maps.Clone(s.attendees),
		payments:  maps.Clone(s.payments),
		anomalies: maps.Clone(s.anomalies),
		admins:    maps.Clone(s.admins),
	}
	if s.keySet != nil {
		ks := *s.keySet
		cp.keySet = &ks
	}

	return cp
}

// Store implements uow.Runner.
type Store struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	current *state

	commits  int
	failNext error
}

func New() *Store {
	return &Store{current: newState()}
}

func (s *Store) Do(ctx context.Context, fn uow.Func) error {
	s.writeMu.Lock()

	s.mu.RLock()
	work := s.current.clone()
	s.mu.RUnlock()

	var hooks []uow.AfterCommit
	err := fn(ctx, &tx{st: work}, func(h uow.AfterCommit) {
		hooks = append(hooks, h)
	})
	if err == nil && s.failNext != nil {
		err, s.failNext = s.failNext, nil
	}
	if err == nil {
		s.mu.Lock()
		s.current = work
		s.commits++
		s.mu.Unlock()
	}

	s.writeMu.Unlock()

	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}

func (s *Store) Read(ctx context.Context, fn func(ctx context.Context, tx uow.Tx) error) error {
	s.mu.RLock()
	snap := s.current
	s.mu.RUnlock()

	return fn(ctx, &tx{st: snap, readOnly: true})
}

// FailNextCommit makes the next write transaction roll back with err after
// its function succeeded.
func (s *Store) FailNextCommit(err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.failNext = err
}

// Commits returns how many write transactions committed.
func (s *Store) Commits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.commits
}

// SeedEvent stores ev and returns its ID.
func (s *Store) SeedEvent(ev domain.Event) int64 {
	var id int64
	_ = s.Do(context.Background(), func(ctx context.Context, tx uow.Tx, _ func(uow.AfterCommit)) error {
		var err error
		id, err = tx.Events().Create(ctx, &ev)
		return err
	})

	return id
}

// Attendees returns every committed attendee ordered by ID.
func (s *Store) Attendees() []domain.Attendee {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := slices.Collect(maps.Values(s.current.attendees))
	slices.SortFunc(out, func(a, b domain.Attendee) int { return int(a.ID - b.ID) })

	return out
}

// Committed sums committed quantity the same way the capacity check does.
func (s *Store) Committed(eventID int64, date string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return committed(s.current, eventID, date)
}

func committed(st *state, eventID int64, date string) int {
	n := 0
	for _, a := range st.attendees {
		if a.EventID != eventID {
			continue
		}
		if date != "" && a.Date != date {
			continue
		}
		n += a.Quantity
	}

	return n
}

type tx struct {
	st       *state
	readOnly bool
}

func (t *tx) Events() repository.EventRepository       { return eventRepo{t} }
func (t *tx) Holidays() repository.HolidayRepository   { return holidayRepo{t} }
func (t *tx) Attendees() repository.AttendeeRepository { return attendeeRepo{t} }
func (t *tx) Payments() repository.PaymentRepository   { return paymentRepo{t} }
func (t *tx) Anomalies() repository.AnomalyRepository  { return anomalyRepo{t} }
func (t *tx) Keys() repository.KeyRepository           { return keyRepo{t} }

func (t *tx) write() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

type eventRepo struct{ *tx }

func (r eventRepo) Get(_ context.Context, id int64) (*domain.Event, error) {
	ev, ok := r.st.events[id]
	if !ok {
		return nil, fmt.Errorf("memstore.Events.Get:%w", repository.ErrNotFound)
	}
	ev.BookableDays = slices.Clone(ev.BookableDays)

	return &ev, nil
}

func (r eventRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Event, error) {
	return r.Get(ctx, id)
}

func (r eventRepo) Create(_ context.Context, ev *domain.Event) (int64, error) {
	if err := r.write(); err != nil {
		return 0, err
	}
	for _, e := range r.st.events {
		if e.Slug == ev.Slug {
			return 0, fmt.Errorf("memstore.Events.Create:%w", repository.ErrConflict)
		}
	}

	cp := *ev
	r.st.seq.events++
	cp.ID = r.st.seq.events
	if cp.Created.IsZero() {
		cp.Created = time.Now()
	}
	r.st.events[cp.ID] = cp

	return cp.ID, nil
}

type holidayRepo struct{ *tx }

func (r holidayRepo) List(context.Context) ([]domain.Holiday, error) {
	return slices.Clone(r.st.holidays), nil
}

func (r holidayRepo) Create(_ context.Context, h *domain.Holiday) (int64, error) {
	if err := r.write(); err != nil {
		return 0, err
	}

	cp := *h
	r.st.seq.holidays++
	cp.ID = r.st.seq.holidays
	r.st.holidays = append(r.st.holidays, cp)

	return cp.ID, nil
}

type attendeeRepo struct{ *tx }

func (r attendeeRepo) InsertWithinCapacity(_ context.Context, a *domain.Attendee, capacity int) (int64, error) {
	if err := r.write(); err != nil {
		return 0, err
	}
	if committed(r.st, a.EventID, a.Date)+a.Quantity > capacity {
		return 0, fmt.Errorf("memstore.Attendees.InsertWithinCapacity:%w", repository.ErrCapacityExceeded)
	}
	for _, other := range r.st.attendees {
		if other.TicketToken == a.TicketToken {
			return 0, fmt.Errorf("memstore.Attendees.InsertWithinCapacity:%w", repository.ErrConflict)
		}
	}

	cp := *a
	r.st.seq.attendees++
	cp.ID = r.st.seq.attendees
	if cp.Created.IsZero() {
		cp.Created = time.Now()
	}
	r.st.attendees[cp.ID] = cp

	return cp.ID, nil
}

func (r attendeeRepo) CommittedQuantity(_ context.Context, eventID int64, date string) (int, error) {
	return committed(r.st, eventID, date), nil
}

func (r attendeeRepo) Get(_ context.Context, id int64) (*domain.Attendee, error) {
	a, ok := r.st.attendees[id]
	if !ok {
		return nil, fmt.Errorf("memstore.Attendees.Get:%w", repository.ErrNotFound)
	}

	return &a, nil
}

func (r attendeeRepo) GetByToken(_ context.Context, token string) (*domain.Attendee, error) {
	for _, a := range r.st.attendees {
		if a.TicketToken == token {
			return &a, nil
		}
	}

	return nil, fmt.Errorf("memstore.Attendees.GetByToken:%w", repository.ErrNotFound)
}

func (r attendeeRepo) ListByEvent(_ context.Context, eventID int64) ([]domain.Attendee, error) {
	return r.filter(func(a domain.Attendee) bool { return a.EventID == eventID }), nil
}

func (r attendeeRepo) ListByPaymentID(_ context.Context, paymentID string) ([]domain.Attendee, error) {
	if paymentID == "" {
		return nil, nil
	}

	return r.filter(func(a domain.Attendee) bool { return a.PaymentID == paymentID }), nil
}

func (r attendeeRepo) MarkCheckedIn(_ context.Context, id int64) error {
	if err := r.write(); err != nil {
		return err
	}

	a, ok := r.st.attendees[id]
	if !ok || a.Refunded {
		return fmt.Errorf("memstore.Attendees.MarkCheckedIn:%w", repository.ErrConflict)
	}
	a.CheckedIn = true
	r.st.attendees[id] = a

	return nil
}

func (r attendeeRepo) MarkRefunded(_ context.Context, id int64) error {
	if err := r.write(); err != nil {
		return err
	}

	a, ok := r.st.attendees[id]
	if !ok {
		return fmt.Errorf("memstore.Attendees.MarkRefunded:%w", repository.ErrNotFound)
	}
	a.Refunded = true
	r.st.attendees[id] = a

	return nil
}

func (r attendeeRepo) filter(keep func(domain.Attendee) bool) []domain.Attendee {
	var out []domain.Attendee
	for _, a := range r.st.attendees {
		if keep(a) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b domain.Attendee) int { return int(a.ID - b.ID) })

	return out
}

type paymentRepo struct{ *tx }

func (r paymentRepo) Claim(_ context.Context, sessionID string, attendeeID int64) (bool, error) {
	if err := r.write(); err != nil {
		return false, err
	}
	if _, ok := r.st.payments[sessionID]; ok {
		return false, nil
	}

	r.st.payments[sessionID] = domain.ProcessedPayment{
		SessionID:   sessionID,
		AttendeeID:  attendeeID,
		ProcessedAt: time.Now(),
	}

	return true, nil
}

func (r paymentRepo) Lookup(_ context.Context, sessionID string) (int64, error) {
	p, ok := r.st.payments[sessionID]
	if !ok {
		return 0, fmt.Errorf("memstore.Payments.Lookup:%w", repository.ErrNotFound)
	}

	return p.AttendeeID, nil
}

func (r paymentRepo) Link(_ context.Context, sessionID string, attendeeID int64) error {
	if err := r.write(); err != nil {
		return err
	}

	p, ok := r.st.payments[sessionID]
	if !ok {
		return fmt.Errorf("memstore.Payments.Link:%w", repository.ErrNotFound)
	}
	p.AttendeeID = attendeeID
	r.st.payments[sessionID] = p

	return nil
}

type anomalyRepo struct{ *tx }

func (r anomalyRepo) Record(_ context.Context, a *domain.PaymentAnomaly) error {
	if err := r.write(); err != nil {
		return err
	}
	if _, ok := r.st.anomalies[a.SessionID]; ok {
		return fmt.Errorf("memstore.Anomalies.Record:%w", repository.ErrConflict)
	}

	cp := *a
	cp.EventIDs = slices.Clone(a.EventIDs)
	r.st.anomalies[a.SessionID] = cp

	return nil
}

func (r anomalyRepo) Get(_ context.Context, sessionID string) (*domain.PaymentAnomaly, error) {
	a, ok := r.st.anomalies[sessionID]
	if !ok {
		return nil, fmt.Errorf("memstore.Anomalies.Get:%w", repository.ErrNotFound)
	}

	return &a, nil
}

func (r anomalyRepo) List(_ context.Context, includeResolved bool) ([]domain.PaymentAnomaly, error) {
	var out []domain.PaymentAnomaly
	for _, a := range r.st.anomalies {
		if includeResolved || !a.Resolved {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b domain.PaymentAnomaly) int { return a.DetectedAt.Compare(b.DetectedAt) })

	return out, nil
}

func (r anomalyRepo) Resolve(_ context.Context, sessionID string) error {
	if err := r.write(); err != nil {
		return err
	}

	a, ok := r.st.anomalies[sessionID]
	if !ok {
		return fmt.Errorf("memstore.Anomalies.Resolve:%w", repository.ErrNotFound)
	}
	a.Resolved = true
	r.st.anomalies[sessionID] = a

	return nil
}

type keyRepo struct{ *tx }

func (r keyRepo) GetKeySet(context.Context) (*domain.KeySet, error) {
	if r.st.keySet == nil {
		return nil, fmt.Errorf("memstore.Keys.GetKeySet:%w", repository.ErrNotFound)
	}
	ks := *r.st.keySet

	return &ks, nil
}

func (r keyRepo) SaveKeySet(_ context.Context, ks *domain.KeySet) error {
	if err := r.write(); err != nil {
		return err
	}
	if r.st.keySet != nil {
		return fmt.Errorf("memstore.Keys.SaveKeySet:%w", repository.ErrConflict)
	}

	cp := *ks
	r.st.keySet = &cp

	return nil
}

func (r keyRepo) CountAdmins(context.Context) (int, error) {
	return len(r.st.admins), nil
}

func (r keyRepo) CreateAdmin(_ context.Context, a *domain.Admin) (int64, error) {
	if err := r.write(); err != nil {
		return 0, err
	}
	for _, other := range r.st.admins {
		if other.Username == a.Username {
			return 0, fmt.Errorf("memstore.Keys.CreateAdmin:%w", repository.ErrConflict)
		}
	}

	cp := *a
	r.st.seq.admins++
	cp.ID = r.st.seq.admins
	r.st.admins[cp.ID] = cp

	return cp.ID, nil
}

func (r keyRepo) GetAdminByUsername(_ context.Context, username string) (*domain.Admin, error) {
	for _, a := range r.st.admins {
		if a.Username == username {
			return &a, nil
		}
	}

	return nil, fmt.Errorf("memstore.Keys.GetAdminByUsername:%w", repository.ErrNotFound)
}
