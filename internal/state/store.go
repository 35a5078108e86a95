// Package state holds the operator's filter state: the active date range plus the
// preferences and mirrors persisted alongside it.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/basflight/bas-console/internal/cache"
	"github.com/basflight/bas-console/internal/models"
	"github.com/basflight/bas-console/internal/utils"
)

// DefaultRecordName is the durable record the store reads and writes.
const DefaultRecordName = "bas-storage"

// Persister is the subset of cache.Provider the store needs.
type Persister interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Field names the part of the state a Change touched.
type Field string

const (
	FieldDateRange  Field = "dateRange"
	FieldSettings   Field = "settings"
	FieldUser       Field = "user"
	FieldStatistics Field = "statistics"
	FieldRegions    Field = "regions"
	FieldLoaded     Field = "loaded"
)

// Snapshot is a copy of the full state, shaped like the persisted record.
type Snapshot struct {
	User       *models.User          `json:"user"`
	DateRange  models.DateRange      `json:"dateRange"`
	Statistics *models.Statistics    `json:"statistics"`
	Regions    []models.RegionRating `json:"regions"`
	Settings   models.Settings       `json:"settings"`
}

// Change is delivered to subscribers after every mutation.
type Change struct {
	Field    Field
	Previous Snapshot
	Current  Snapshot
}

// Listener receives changes synchronously on the mutating goroutine, in the
// order the mutations were applied. A listener must not mutate the store.
type Listener func(Change)

// Store is the single writer of the filter state.
type Store struct {
	persister  Persister
	logger     *slog.Logger
	recordName string
	now        func() time.Time

	// writeMu is held from mutation through notification.
	writeMu sync.Mutex
	mu      sync.RWMutex
	state Snapshot

	subMu     sync.Mutex
	nextSubID int
	subs      []subscription
}

type subscription struct {
	id int
	fn Listener
}

// Option customises a Store.
type Option func(*Store)

// WithRecordName overrides the persisted record name.
func WithRecordName(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.recordName = name
		}
	}
}

// WithClock injects the clock used for the startup default range.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a store holding defaults: today's range and default settings.
// A nil persister keeps state in memory only.
func New(persister Persister, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if persister == nil {
		persister = cache.NoopProvider{}
	}
	s := &Store{
		persister:  persister,
		logger:     logger,
		recordName: DefaultRecordName,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state = s.defaults()
	return s
}

func (s *Store) defaults() Snapshot {
	return Snapshot{
		DateRange: models.Today(s.now()),
		Settings:  models.DefaultSettings(),
	}
}

// Load hydrates the store from the persisted record. A missing or unreadable
// record leaves defaults in place; only context errors are returned.
func (s *Store) Load(ctx context.Context) error {
	data, err := s.persister.Get(ctx, s.recordName)
	switch {
	case errors.Is(err, cache.ErrCacheMiss):
		return nil
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.logger.Warn("persisted state unavailable, using defaults", slog.String("record", s.recordName), slog.Any("error", err))
		return nil
	}

	loaded := s.defaults()
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.logger.Warn("persisted state corrupt, using defaults", slog.String("record", s.recordName), slog.Any("error", err))
		return nil
	}
	if loaded.DateRange.IsZero() {
		loaded.DateRange = models.Today(s.now())
	} else {
		loaded.DateRange = loaded.DateRange.Normalize()
	}
	loaded.Settings = models.DefaultSettings().Merge(loaded.Settings)

	s.apply(ctx, FieldLoaded, false, func(st *Snapshot) { *st = loaded })
	return nil
}

// DateRange returns the active range.
func (s *Store) DateRange() models.DateRange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.DateRange
}

// Settings returns the operator preferences.
func (s *Store) Settings() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Settings
}

// User returns the signed-in operator, or nil.
func (s *Store) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.User == nil {
		return nil
	}
	u := *s.state.User
	return &u
}

// Statistics returns the last statistics mirrored into the store, or nil.
func (s *Store) Statistics() *models.Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.Statistics == nil {
		return nil
	}
	st := *s.state.Statistics
	return &st
}

// Regions returns the last region rating mirrored into the store.
func (s *Store) Regions() []models.RegionRating {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.RegionRating(nil), s.state.Regions...)
}

// Snapshot returns a copy of the whole state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSnapshot(s.state)
}

// SetDateRange validates and normalizes next, replaces the active range, persists
// it and notifies subscribers before returning. Out-of-order bounds are swapped.
func (s *Store) SetDateRange(ctx context.Context, next models.DateRange) (models.DateRange, error) {
	if next.IsZero() {
		return models.DateRange{}, utils.NewValidationError("state.SetDateRange", "start and end dates are required")
	}
	next = next.Normalize()
	s.apply(ctx, FieldDateRange, true, func(st *Snapshot) { st.DateRange = next })
	return next, nil
}

// UpdateSettings merges the non-zero fields of patch into the settings.
func (s *Store) UpdateSettings(ctx context.Context, patch models.Settings) models.Settings {
	var merged models.Settings
	s.apply(ctx, FieldSettings, true, func(st *Snapshot) {
		st.Settings = st.Settings.Merge(patch)
		merged = st.Settings
	})
	return merged
}

// SetUser records the signed-in operator; nil signs out.
func (s *Store) SetUser(ctx context.Context, user *models.User) {
	var copied *models.User
	if user != nil {
		u := *user
		copied = &u
	}
	s.apply(ctx, FieldUser, true, func(st *Snapshot) { st.User = copied })
}

// SetStatistics mirrors the latest statistics payload into the persisted record.
func (s *Store) SetStatistics(ctx context.Context, stats *models.Statistics) {
	var copied *models.Statistics
	if stats != nil {
		v := *stats
		copied = &v
	}
	s.apply(ctx, FieldStatistics, true, func(st *Snapshot) { st.Statistics = copied })
}

// SetRegions mirrors the latest region rating into the persisted record.
func (s *Store) SetRegions(ctx context.Context, regions []models.RegionRating) {
	copied := append([]models.RegionRating(nil), regions...)
	s.apply(ctx, FieldRegions, true, func(st *Snapshot) { st.Regions = copied })
}

// Subscribe registers fn for every subsequent change. Listeners run in
// registration order on the goroutine that performed the mutation.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs = append(s.subs, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Store) apply(ctx context.Context, field Field, persist bool, mutate func(*Snapshot)) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	previous := cloneSnapshot(s.state)
	mutate(&s.state)
	current := cloneSnapshot(s.state)
	s.mu.Unlock()

	if persist {
		s.persist(ctx, current)
	}
	s.notify(Change{Field: field, Previous: previous, Current: current})
}

// persist is best-effort: failures are logged and never block the in-memory update.
func (s *Store) persist(ctx context.Context, snap Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		s.logger.Warn("encode persisted state", slog.Any("error", err))
		return
	}
	if err := s.persister.Set(ctx, s.recordName, data, 0); err != nil {
		s.logger.Warn("persist state", slog.String("record", s.recordName), slog.Any("error", err))
	}
}

func (s *Store) notify(change Change) {
	s.subMu.Lock()
	subs := append([]subscription(nil), s.subs...)
	s.subMu.Unlock()
	for _, sub := range subs {
		sub.fn(change)
	}
}

func cloneSnapshot(in Snapshot) Snapshot {
	out := in
	if in.User != nil {
		u := *in.User
		out.User = &u
	}
	if in.Statistics != nil {
		st := *in.Statistics
		out.Statistics = &st
	}
	out.Regions = append([]models.RegionRating(nil), in.Regions...)
	if in.Settings.Notifications != nil {
		v := *in.Settings.Notifications
		out.Settings.Notifications = &v
	}
	return out
}
