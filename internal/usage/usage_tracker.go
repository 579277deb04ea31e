package usage

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"sheetwright/internal/logging"
	"sheetwright/internal/store"
)

const dayLayout = "2006-01-02"

// Tracker meters generation attempts per calendar day.
type Tracker struct {
	mu     sync.Mutex
	kv     store.KV
	key    string
	limit  int
	loc    *time.Location
	now    func() time.Time
	record Record

	// lastErr holds the most recent persistence failure for diagnostics.
	lastErr error
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithClock overrides the wall clock (tests).
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLocation sets the timezone used to cut calendar days.
func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) {
		if loc != nil {
			t.loc = loc
		}
	}
}

// WithStoreError records that the persistent store could not be opened and
// kv is a fallback. LastError reports it until a later failure replaces it.
func WithStoreError(err error) Option {
	return func(t *Tracker) {
		if err != nil {
			t.lastErr = &PersistenceError{Op: "open", Key: t.key, Err: err}
		}
	}
}

// NewTracker loads the record stored under key. A storage failure is logged
// and the tracker starts from a fresh record for today.
func NewTracker(ctx context.Context, kv store.KV, key string, limit int, opts ...Option) *Tracker {
	t := &Tracker{
		kv:    kv,
		key:   key,
		limit: limit,
		loc:   time.UTC,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.record = Record{Day: t.todayLocked()}
	if err := t.loadLocked(ctx); err != nil {
		t.noteErrLocked(err)
	}
	t.rolloverLocked(ctx)
	return t
}

func (t *Tracker) todayLocked() string {
	return t.now().In(t.loc).Format(dayLayout)
}

func (t *Tracker) loadLocked(ctx context.Context) error {
	data, ok, err := t.kv.Get(ctx, t.key)
	if err != nil {
		return &PersistenceError{Op: "load", Key: t.key, Err: err}
	}
	if !ok {
		return nil
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return &PersistenceError{Op: "load", Key: t.key, Err: err}
	}
	if rec.Count < 0 {
		rec.Count = 0
	}
	t.record = rec
	return nil
}

func (t *Tracker) saveLocked(ctx context.Context) error {
	data, err := json.Marshal(t.record)
	if err != nil {
		return &PersistenceError{Op: "save", Key: t.key, Err: err}
	}
	if err := t.kv.Put(ctx, t.key, data); err != nil {
		return &PersistenceError{Op: "save", Key: t.key, Err: err}
	}
	return nil
}

// rolloverLocked resets the record when the stored day is not today.
func (t *Tracker) rolloverLocked(ctx context.Context) {
	today := t.todayLocked()
	if t.record.Day == today {
		return
	}
	logging.Usage("new usage day %s (previous %q used %d)", today, t.record.Day, t.record.Count)
	t.record = Record{Day: today}
	if err := t.saveLocked(ctx); err != nil {
		t.noteErrLocked(err)
	}
}

func (t *Tracker) noteErrLocked(err error) {
	t.lastErr = err
	logging.UsageWarn("%v (continuing with in-memory count)", err)
}

func (t *Tracker) remainingLocked() int {
	return max(0, t.limit-t.record.Count)
}

// Limit returns the configured daily maximum.
func (t *Tracker) Limit() int {
	return t.limit
}

// Remaining returns how many generation attempts are left today.
func (t *Tracker) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked(context.Background())
	return t.remainingLocked()
}

// Consume records one attempt and persists it immediately. The cap is not
// checked here; callers gate with Remaining or use TryConsume.
func (t *Tracker) Consume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.consumeLocked(context.Background())
}

func (t *Tracker) consumeLocked(ctx context.Context) {
	t.rolloverLocked(ctx)
	t.record.Count++
	if err := t.saveLocked(ctx); err != nil {
		t.noteErrLocked(err)
	}
	logging.Usage("usage %d/%d on %s", t.record.Count, t.limit, t.record.Day)
}

// TryConsume checks the cap and consumes one unit in one step. It returns
// the units left after the call and whether a unit was granted.
func (t *Tracker) TryConsume(ctx context.Context) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked(ctx)
	if t.remainingLocked() == 0 {
		return 0, false
	}
	t.consumeLocked(ctx)
	return t.remainingLocked(), true
}

// Snapshot returns a copy of today's record.
func (t *Tracker) Snapshot() Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked(context.Background())
	return t.record
}

// LastError returns the most recent persistence failure, if any.
func (t *Tracker) LastError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}
