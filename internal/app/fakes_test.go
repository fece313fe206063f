package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"psirt_report_bot/internal/domain/advisory"
	"psirt_report_bot/internal/domain/messaging"
	"psirt_report_bot/internal/domain/request"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// memRepo is an in-memory request.Repository with the same guarded-write rules
// as the Postgres implementation.
type memRepo struct {
	mu      sync.Mutex
	records map[int64]*request.Record
	writes  int

	failMarkDuplicate map[int64]bool
	failGet           map[int64]bool
}

func newMemRepo(records ...*request.Record) *memRepo {
	r := &memRepo{records: map[int64]*request.Record{}, failMarkDuplicate: map[int64]bool{}, failGet: map[int64]bool{}}
	for _, rec := range records {
		r.records[rec.ID] = rec
	}
	return r
}

func (r *memRepo) get(id int64) *request.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := *r.records[id]
	return &rec
}

func (r *memRepo) ListPendingIDs(ctx context.Context) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for id, rec := range r.records {
		if rec.Outcome == request.OutcomeNone {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *memRepo) GetByID(ctx context.Context, id int64) (*request.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failGet[id] {
		return nil, errors.New("connection reset")
	}
	rec, ok := r.records[id]
	if !ok {
		return nil, request.ErrRequestNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *memRepo) NormalizeCreatedAt(ctx context.Context, id int64, createdAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return request.ErrRequestNotFound
	}
	rec.CreatedAt.Time = sql.NullTime{Time: createdAt, Valid: true}
	r.writes++
	return nil
}

func (r *memRepo) MarkDuplicate(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failMarkDuplicate[id] {
		return false, errors.New("connection reset")
	}
	rec, ok := r.records[id]
	if !ok || rec.Outcome != request.OutcomeNone {
		return false, nil
	}
	rec.Outcome = request.OutcomeDuplicate
	r.writes++
	return true, nil
}

func (r *memRepo) Classify(ctx context.Context, id int64, c request.Classification, o request.Outcome) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.Outcome != request.OutcomeNone {
		return false, nil
	}
	rec.Classification = c
	if o != request.OutcomeNone {
		rec.Outcome = o
	}
	r.writes++
	return true, nil
}

func (r *memRepo) MarkUnknownRequest(ctx context.Context, id int64, diagnostic string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.Outcome != request.OutcomeNone {
		return false, nil
	}
	rec.Outcome = request.OutcomeUnknownRequest
	rec.Diagnostic = sql.NullString{String: diagnostic, Valid: true}
	r.writes++
	return true, nil
}

func (r *memRepo) ClaimDispatch(ctx context.Context, id int64, now, staleBefore time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return false, nil
	}
	fresh := rec.Outcome == request.OutcomeNone
	stale := rec.IsDeliveryPending() && rec.DispatchClaimedAt.Valid && rec.DispatchClaimedAt.Time.Before(staleBefore)
	if !fresh && !stale {
		return false, nil
	}
	rec.Outcome = request.OutcomeValid
	rec.DispatchClaimedAt = sql.NullTime{Time: now, Valid: true}
	r.writes++
	return true, nil
}

func (r *memRepo) RecordDelivery(ctx context.Context, id int64, statusCode int, deliveredAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || !rec.IsDeliveryPending() {
		return false, nil
	}
	rec.DeliveryStatusCode = sql.NullInt32{Int32: int32(statusCode), Valid: true}
	rec.DeliveredAt = sql.NullTime{Time: deliveredAt, Valid: true}
	r.writes++
	return true, nil
}

func (r *memRepo) ListStaleClaims(ctx context.Context, staleBefore time.Time) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for id, rec := range r.records {
		if rec.IsDeliveryPending() && rec.DispatchClaimedAt.Valid && rec.DispatchClaimedAt.Time.Before(staleBefore) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// memCounters is an in-memory request.CounterRepository.
type memCounters struct {
	mu       sync.Mutex
	counters map[string]*request.RunCounter
	failInc  error
}

func newMemCounters() *memCounters {
	return &memCounters{counters: map[string]*request.RunCounter{}}
}

func (c *memCounters) Get(ctx context.Context, name string) (*request.RunCounter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rc, ok := c.counters[name]
	if !ok {
		return nil, request.ErrCounterNotFound
	}
	cp := *rc
	return &cp, nil
}

func (c *memCounters) Create(ctx context.Context, counter *request.RunCounter) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.counters[counter.Name]; ok {
		return request.ErrDuplicateCounter
	}
	cp := *counter
	c.counters[counter.Name] = &cp
	return nil
}

func (c *memCounters) Increment(ctx context.Context, name string) (*request.RunCounter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failInc != nil {
		return nil, c.failInc
	}
	rc, ok := c.counters[name]
	if !ok {
		return nil, request.ErrCounterNotFound
	}
	rc.Count++
	cp := *rc
	return &cp, nil
}

// sentMessage is one call observed by fakeTransport.
type sentMessage struct {
	Target string
	Msg    messaging.Message
}

// fakeTransport answers each Send with the next configured status (default 200).
type fakeTransport struct {
	mu       sync.Mutex
	sent     []sentMessage
	statuses []int
	errs     []error
}

func (t *fakeTransport) Send(ctx context.Context, target string, msg messaging.Message) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	call := len(t.sent)
	t.sent = append(t.sent, sentMessage{Target: target, Msg: msg})
	if call < len(t.errs) && t.errs[call] != nil {
		return 0, t.errs[call]
	}
	if call < len(t.statuses) {
		return t.statuses[call], nil
	}
	return 200, nil
}

func (t *fakeTransport) calls() []sentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sentMessage(nil), t.sent...)
}

type fakeFeed struct {
	snapshot *advisory.Snapshot
	err      error
	calls    int
}

func (f *fakeFeed) Fetch(ctx context.Context, from, to time.Time) (*advisory.Snapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshot, nil
}

var baseTime = time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return baseTime }

// userRecord builds a pending request from a person, created offset after baseTime.
func userRecord(id int64, requester string, offset time.Duration) *request.Record {
	return &request.Record{
		ID:                id,
		RequesterID:       sql.NullString{String: requester, Valid: true},
		CreatedAt:         request.Timestamp{Time: sql.NullTime{Time: baseTime.Add(-time.Hour).Add(offset), Valid: true}},
		SenderDisplayName: sql.NullString{String: "Ada", Valid: true},
		ReplyTarget:       sql.NullString{String: "room-" + requester, Valid: true},
		ReportVariant:     sql.NullString{String: "xlxs", Valid: true},
		ReportWindowDays:  sql.NullInt32{Int32: 7, Valid: true},
	}
}

var testLinks = LinkTable{7: "link7", 14: "link14", 30: "link30"}
