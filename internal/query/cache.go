// Package query implements the keyed, time-aware cache every backend read goes
// through. Concurrent reads of one key share a single fetch, settled results
// (errors included) are reused until their freshness window ends, and
// invalidation or a change of the displayed date range keeps late responses
// from being written back.
package query

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/basflight/bas-console/internal/models"
)

// Status is the lifecycle state of an entry.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Entry is a read-only view of a cached result.
type Entry struct {
	Key       Key
	Status    Status
	Value     any
	Err       error
	FetchedAt time.Time
	ExpiresAt time.Time
	// Stale is set once the freshness window has passed or the family was
	// invalidated. Value still holds the last settled payload.
	Stale bool
}

// HasValue reports whether the entry has ever settled successfully.
func (e Entry) HasValue() bool { return e.Value != nil }

// Policy is the per-operation freshness configuration.
type Policy struct {
	// Fresh is how long a settled result is served without refetching.
	Fresh time.Duration
	// Retain is how long past expiry an idle entry is kept for Peek before Sweep evicts it.
	Retain time.Duration
}

// DefaultPolicy applies to operations without an explicit policy.
var DefaultPolicy = Policy{Fresh: time.Minute, Retain: 10 * time.Minute}

// Fetcher loads the value for a key. It runs at most once at a time per key.
type Fetcher func(ctx context.Context) (any, error)

// Commit receives a fetched value after the cache has stored it.
type Commit func(ctx context.Context, value any)

// Event is reported to the observer.
type Event string

const (
	EventHit        Event = "hit"
	EventFetch      Event = "fetch"
	EventDiscard    Event = "discard"
	EventInvalidate Event = "invalidate"
	EventEvict      Event = "evict"
)

// Observer receives cache events per operation.
type Observer func(operation string, event Event)

type entry struct {
	key       Key
	value     any
	err       error
	settled   bool
	fetchedAt time.Time
	expiresAt time.Time
	stale     bool
	// fetchID is the id of the newest fetch in flight, zero when idle.
	fetchID uint64
}

// Cache is safe for concurrent use.
type Cache struct {
	group singleflight.Group

	mu          sync.Mutex
	entries     map[string]*entry
	generations map[string]uint64
	seq         uint64
	scope       models.DateRange

	policies      map[string]Policy
	defaultPolicy Policy
	now           func() time.Time
	observer      Observer
	logger        *slog.Logger
}

// Option customises a Cache.
type Option func(*Cache)

// WithClock injects the time source used for freshness decisions.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithPolicy sets the freshness policy of one operation.
func WithPolicy(op string, p Policy) Option {
	return func(c *Cache) { c.policies[op] = p }
}

// WithDefaultPolicy replaces DefaultPolicy for this cache.
func WithDefaultPolicy(p Policy) Option {
	return func(c *Cache) { c.defaultPolicy = p }
}

// WithObserver registers an event hook.
func WithObserver(obs Observer) Option {
	return func(c *Cache) { c.observer = obs }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates an empty cache with no display scope.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:       make(map[string]*entry),
		generations:   make(map[string]uint64),
		policies:      make(map[string]Policy),
		defaultPolicy: DefaultPolicy,
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the effective policy of op.
func (c *Cache) Policy(op string) Policy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policyLocked(op)
}

func (c *Cache) policyLocked(op string) Policy {
	if p, ok := c.policies[op]; ok {
		return p
	}
	return c.defaultPolicy
}

// Read returns the cached result for key when it is settled and fresh, without
// calling fetch. Otherwise it joins the fetch already in flight for key or
// starts one. The fetch itself is detached from ctx cancellation so other
// waiters still receive its result; ctx only bounds this caller's wait.
func (c *Cache) Read(ctx context.Context, key Key, fetch Fetcher) (any, error) {
	return c.ReadCommit(ctx, key, fetch, nil)
}

// ReadCommit is Read with a hook that runs once for each successful fetch the
// cache keeps. Results discarded by invalidation or a scope change never reach
// commit, and neither do cache hits.
func (c *Cache) ReadCommit(ctx context.Context, key Key, fetch Fetcher, commit Commit) (any, error) {
	k := key.String()

	c.mu.Lock()
	if e, ok := c.entries[k]; ok && c.freshLocked(e) {
		value, err := e.result()
		c.mu.Unlock()
		c.emit(key.Operation, EventHit)
		return value, err
	}
	c.mu.Unlock()

	ch := c.group.DoChan(k, func() (any, error) {
		return c.run(context.WithoutCancel(ctx), key, k, fetch, commit)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

func (c *Cache) run(ctx context.Context, key Key, k string, fetch Fetcher, commit Commit) (any, error) {
	c.mu.Lock()
	e, ok := c.entries[k]
	if ok && c.freshLocked(e) {
		// Settled between the caller's freshness check and joining the flight.
		value, err := e.result()
		c.mu.Unlock()
		c.emit(key.Operation, EventHit)
		return value, err
	}
	if !ok {
		e = &entry{key: key}
		c.entries[k] = e
	}
	c.seq++
	id := c.seq
	gen := c.generations[key.Family()]
	e.fetchID = id
	c.mu.Unlock()

	c.emit(key.Operation, EventFetch)
	value, err := fetch(ctx)
	if c.settle(key, k, id, gen, value, err) && err == nil && commit != nil {
		commit(ctx, value)
	}
	return value, err
}

// settle writes a finished fetch back unless it was overtaken by an
// invalidation or its range is no longer the displayed one. It reports whether
// the result was kept.
func (c *Cache) settle(key Key, k string, id, gen uint64, value any, err error) bool {
	c.mu.Lock()
	e, ok := c.entries[k]
	if !ok {
		e = &entry{key: key}
		c.entries[k] = e
	}
	if e.fetchID == id {
		e.fetchID = 0
	}

	reason := ""
	switch {
	case c.generations[key.Family()] != gen:
		reason = "invalidated while in flight"
	case !c.scope.IsZero() && !key.Range.Equal(c.scope):
		reason = "date range no longer displayed"
	}
	if reason != "" {
		if !e.settled && e.fetchID == 0 {
			delete(c.entries, k)
		}
		c.mu.Unlock()
		c.logger.Debug("discarding query result", slog.String("key", k), slog.String("reason", reason))
		c.emit(key.Operation, EventDiscard)
		return false
	}

	now := c.now()
	if err == nil {
		e.value = value
	}
	// On error the last good payload stays displayable through Peek.
	e.err = err
	e.settled = true
	e.stale = false
	e.fetchedAt = now
	e.expiresAt = now.Add(c.policyLocked(key.Operation).Fresh)
	c.mu.Unlock()
	return true
}

// Invalidate marks every entry of the given families stale and forgets their
// in-flight fetches, so the next read starts a new fetch and results of older
// fetches are discarded. Stale values stay available through Peek.
func (c *Cache) Invalidate(families ...string) int {
	marked := 0
	c.mu.Lock()
	for _, family := range families {
		c.generations[family]++
	}
	for k, e := range c.entries {
		for _, family := range families {
			if e.key.Family() != family {
				continue
			}
			e.stale = true
			c.group.Forget(k)
			marked++
			break
		}
	}
	c.mu.Unlock()

	for _, family := range families {
		c.emit(family, EventInvalidate)
	}
	if marked > 0 {
		c.logger.Debug("invalidated query entries", slog.Any("families", families), slog.Int("entries", marked))
	}
	return marked
}

// SetScope records the date range currently displayed. Results for other
// ranges are still returned to their callers but not stored. The zero range
// clears the scope.
func (c *Cache) SetScope(r models.DateRange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scope = r
}

// Scope returns the displayed range, or the zero range when unset.
func (c *Cache) Scope() models.DateRange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scope
}

// Peek returns the entry for key without fetching.
func (c *Cache) Peek(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok {
		return Entry{}, false
	}
	return c.viewLocked(e), true
}

// Sweep evicts idle entries whose expiry plus retention has passed.
func (c *Cache) Sweep() int {
	now := c.now()
	var evicted []string
	c.mu.Lock()
	for k, e := range c.entries {
		if e.fetchID != 0 || !e.settled {
			continue
		}
		if now.After(e.expiresAt.Add(c.policyLocked(e.key.Operation).Retain)) {
			delete(c.entries, k)
			evicted = append(evicted, e.key.Operation)
		}
	}
	c.mu.Unlock()
	for _, op := range evicted {
		c.emit(op, EventEvict)
	}
	return len(evicted)
}

// Len returns the number of entries held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (e *entry) result() (any, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.value, nil
}

func (c *Cache) freshLocked(e *entry) bool {
	return e.settled && !e.stale && c.now().Before(e.expiresAt)
}

func (c *Cache) viewLocked(e *entry) Entry {
	out := Entry{
		Key:       e.key,
		Value:     e.value,
		Err:       e.err,
		FetchedAt: e.fetchedAt,
		ExpiresAt: e.expiresAt,
		Stale:     e.settled && !c.freshLocked(e),
	}
	switch {
	case e.fetchID != 0 || !e.settled:
		out.Status = StatusPending
	case e.err != nil:
		out.Status = StatusError
	default:
		out.Status = StatusSuccess
	}
	return out
}

func (c *Cache) emit(op string, ev Event) {
	if c.observer != nil {
		c.observer(op, ev)
	}
}
