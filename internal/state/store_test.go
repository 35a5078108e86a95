package state

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basflight/bas-console/internal/cache"
	"github.com/basflight/bas-console/internal/models"
	"github.com/basflight/bas-console/internal/utils"
)

var fixedNow = time.Date(2024, 9, 15, 13, 45, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type failingPersister struct{ sets int }

func (f *failingPersister) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("disk unavailable")
}

func (f *failingPersister) Set(context.Context, string, []byte, time.Duration) error {
	f.sets++
	return errors.New("disk full")
}

// gatedPersister blocks its first Set until release is closed.
type gatedPersister struct {
	*cache.MemoryProvider
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedPersister() *gatedPersister {
	return &gatedPersister{
		MemoryProvider: cache.NewMemoryProvider(),
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
}

func (g *gatedPersister) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.MemoryProvider.Set(ctx, key, value, ttl)
}

func mustRange(t *testing.T, start, end string) models.DateRange {
	t.Helper()
	r, err := models.ParseDateRange(start, end)
	require.NoError(t, err)
	return r
}

func TestNewStartsAtToday(t *testing.T) {
	s := New(nil, utils.DiscardLogger(), WithClock(clock))

	r := s.DateRange()
	assert.Equal(t, "2024-09-15", r.StartDate())
	assert.Equal(t, "2024-09-15", r.EndDate())
	assert.Equal(t, "ru", s.Settings().Language)
	assert.Nil(t, s.User())
}

func TestSetDateRangePersistsAndNotifies(t *testing.T) {
	ctx := context.Background()
	provider := cache.NewMemoryProvider()
	s := New(provider, utils.DiscardLogger(), WithClock(clock))

	var seen []Change
	s.Subscribe(func(c Change) {
		// Listeners run before SetDateRange returns, so the store already holds the new range.
		assert.True(t, s.DateRange().Equal(c.Current.DateRange))
		seen = append(seen, c)
	})

	got, err := s.SetDateRange(ctx, mustRange(t, "2024-09-01", "2024-09-07"))
	require.NoError(t, err)
	assert.Equal(t, "2024-09-01..2024-09-07", got.String())

	require.Len(t, seen, 1)
	assert.Equal(t, FieldDateRange, seen[0].Field)
	assert.Equal(t, "2024-09-15", seen[0].Previous.DateRange.StartDate())

	raw, err := provider.Get(ctx, DefaultRecordName)
	require.NoError(t, err)
	var record map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &record))
	assert.JSONEq(t, `{"start":"2024-09-01","end":"2024-09-07"}`, string(record["dateRange"]))
	for _, key := range []string{"user", "dateRange", "statistics", "regions", "settings"} {
		assert.Contains(t, record, key)
	}
}

func TestSetDateRangeSwapsOutOfOrderBounds(t *testing.T) {
	s := New(nil, utils.DiscardLogger(), WithClock(clock))

	got, err := s.SetDateRange(context.Background(), mustRange(t, "2024-09-30", "2024-09-01"))
	require.NoError(t, err)
	assert.Equal(t, "2024-09-01", got.StartDate())
	assert.Equal(t, "2024-09-30", got.EndDate())
	assert.True(t, s.DateRange().Equal(got))
}

func TestSetDateRangeRejectsZeroDates(t *testing.T) {
	s := New(nil, utils.DiscardLogger(), WithClock(clock))
	notified := false
	s.Subscribe(func(Change) { notified = true })

	_, err := s.SetDateRange(context.Background(), models.DateRange{Start: fixedNow})
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindValidation))
	assert.False(t, notified)
	assert.Equal(t, "2024-09-15", s.DateRange().StartDate())
}

func TestPersistFailureDoesNotBlockUpdate(t *testing.T) {
	p := &failingPersister{}
	s := New(p, utils.DiscardLogger(), WithClock(clock))

	got, err := s.SetDateRange(context.Background(), mustRange(t, "2024-01-01", "2024-01-31"))
	require.NoError(t, err)
	assert.Equal(t, 1, p.sets)
	assert.True(t, s.DateRange().Equal(got))
}

func TestLoadRestoresPersistedRecord(t *testing.T) {
	ctx := context.Background()
	provider := cache.NewMemoryProvider()
	record := `{
		"user": {"name": "Дежурный", "role": "operator"},
		"dateRange": {"start": "2024-09-07", "end": "2024-09-01"},
		"statistics": {"total_flights": 45},
		"regions": [{"position": 1, "region": "Москва", "flight_count": 12}],
		"settings": {"theme": "dark"}
	}`
	require.NoError(t, provider.Set(ctx, DefaultRecordName, []byte(record), 0))

	s := New(provider, utils.DiscardLogger(), WithClock(clock))
	require.NoError(t, s.Load(ctx))

	assert.Equal(t, "2024-09-01..2024-09-07", s.DateRange().String())
	require.NotNil(t, s.User())
	assert.Equal(t, "operator", s.User().Role)
	require.NotNil(t, s.Statistics())
	assert.Equal(t, 45, s.Statistics().TotalFlights)
	assert.Len(t, s.Regions(), 1)
	assert.Equal(t, "dark", s.Settings().Theme)
	assert.Equal(t, "ru", s.Settings().Language, "missing settings fall back to defaults")
}

func TestLoadIgnoresCorruptRecord(t *testing.T) {
	ctx := context.Background()
	provider := cache.NewMemoryProvider()
	require.NoError(t, provider.Set(ctx, DefaultRecordName, []byte("{not json"), 0))

	s := New(provider, utils.DiscardLogger(), WithClock(clock))
	require.NoError(t, s.Load(ctx))
	assert.Equal(t, "2024-09-15", s.DateRange().StartDate())
}

func TestLoadToleratesUnavailableStorage(t *testing.T) {
	s := New(&failingPersister{}, utils.DiscardLogger(), WithClock(clock))
	assert.NoError(t, s.Load(context.Background()))
}

func TestUpdateSettingsMerges(t *testing.T) {
	s := New(nil, utils.DiscardLogger(), WithClock(clock))
	off := false

	got := s.UpdateSettings(context.Background(), models.Settings{Notifications: &off})
	assert.Equal(t, "ru", got.Language)
	assert.False(t, got.NotificationsEnabled())

	got = s.UpdateSettings(context.Background(), models.Settings{Language: "en"})
	assert.Equal(t, "en", got.Language)
	assert.False(t, got.NotificationsEnabled())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s := New(nil, utils.DiscardLogger(), WithClock(clock))
	calls := 0
	unsubscribe := s.Subscribe(func(Change) { calls++ })

	s.SetUser(context.Background(), &models.User{Name: "a"})
	unsubscribe()
	unsubscribe()
	s.SetUser(context.Background(), nil)

	assert.Equal(t, 1, calls)
	assert.Nil(t, s.User())
}

func TestIndependentStoresAreIsolated(t *testing.T) {
	a := New(nil, utils.DiscardLogger(), WithClock(clock))
	b := New(nil, utils.DiscardLogger(), WithClock(clock))

	_, err := a.SetDateRange(context.Background(), mustRange(t, "2024-01-01", "2024-01-02"))
	require.NoError(t, err)
	assert.Equal(t, "2024-09-15", b.DateRange().StartDate())
}

func TestConcurrentMutationsNotifyInApplyOrder(t *testing.T) {
	ctx := context.Background()
	persister := newGatedPersister()
	s := New(persister, utils.DiscardLogger(), WithClock(clock))

	var mu sync.Mutex
	var order []string
	s.Subscribe(func(c Change) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, c.Current.DateRange.String())
	})

	first := mustRange(t, "2024-09-01", "2024-09-07")
	second := mustRange(t, "2024-10-01", "2024-10-07")

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = s.SetDateRange(ctx, first)
	}()
	<-persister.entered

	secondDone := make(chan struct{})
	go func() {
		defer close(secondDone)
		_, _ = s.SetDateRange(ctx, second)
	}()
	select {
	case <-secondDone:
		t.Fatal("second mutation completed while the first was still persisting")
	case <-time.After(50 * time.Millisecond):
	}

	close(persister.release)
	<-firstDone
	<-secondDone

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{first.String(), second.String()}, order)
	assert.True(t, s.DateRange().Equal(second))

	raw, err := persister.Get(ctx, DefaultRecordName)
	require.NoError(t, err)
	var record Snapshot
	require.NoError(t, json.Unmarshal(raw, &record))
	assert.True(t, record.DateRange.Equal(second), "the last write persisted is the last mutation applied")
}
