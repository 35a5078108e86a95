package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basflight/bas-console/internal/cache"
	"github.com/basflight/bas-console/internal/models"
	"github.com/basflight/bas-console/internal/query"
	"github.com/basflight/bas-console/internal/repo"
	"github.com/basflight/bas-console/internal/state"
	"github.com/basflight/bas-console/internal/utils"
)

var testNow = time.Date(2024, 9, 15, 12, 0, 0, 0, time.UTC)

type harness struct {
	backend *fakeBackend
	store   *state.Store
	cache   *query.Cache
	queries *Queries
	coord   *Coordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := func() time.Time { return testNow }
	backend := &fakeBackend{
		stats:   models.Statistics{TotalFlights: 45},
		flights: []models.Flight{{ID: 1}},
		rating:  []models.RegionRating{{Position: 1, Region: "Москва", FlightCount: 12}},
	}
	store := state.New(cache.NewMemoryProvider(), utils.DiscardLogger(), state.WithClock(clock))
	c := query.New(
		query.WithClock(clock),
		query.WithLogger(utils.DiscardLogger()),
		query.WithPolicy(query.OpFlights, query.Policy{Fresh: 5 * time.Minute}),
		query.WithPolicy(query.OpStatistics, query.Policy{Fresh: 10 * time.Minute}),
	)
	q := NewQueries(store, c, backend, utils.DiscardLogger())
	t.Cleanup(q.Close)
	return &harness{
		backend: backend,
		store:   store,
		cache:   c,
		queries: q,
		coord:   NewCoordinator(backend, c, utils.DiscardLogger(), WithCoordinatorClock(clock)),
	}
}

func (h *harness) setRange(t *testing.T, start, end string) models.DateRange {
	t.Helper()
	r, err := models.ParseDateRange(start, end)
	require.NoError(t, err)
	got, err := h.store.SetDateRange(context.Background(), r)
	require.NoError(t, err)
	return got
}

func TestStatisticsReadInvalidateScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	week := h.setRange(t, "2024-09-01", "2024-09-07")

	assert.True(t, h.queries.PeekStatistics().Loading, "nothing fetched yet")

	stats, err := h.queries.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 45, stats.TotalFlights)
	assert.True(t, h.backend.lastRange.Equal(week))

	_, err = h.queries.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), h.backend.statsCalls.Load())

	h.cache.Invalidate(query.OpStatistics)
	peeked := h.queries.PeekStatistics()
	require.NotNil(t, peeked.Value)
	assert.True(t, peeked.Stale)

	_, err = h.queries.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), h.backend.statsCalls.Load())
}

func TestStatisticsAreMirroredIntoStore(t *testing.T) {
	h := newHarness(t)
	h.setRange(t, "2024-09-01", "2024-09-07")

	_, err := h.queries.Statistics(context.Background())
	require.NoError(t, err)
	require.NotNil(t, h.store.Statistics())
	assert.Equal(t, 45, h.store.Statistics().TotalFlights)

	_, err = h.queries.RegionRating(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, h.store.Regions(), 1)
}

func TestDateRangeChangeRefetches(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.setRange(t, "2024-09-01", "2024-09-07")
	_, err := h.queries.Statistics(ctx)
	require.NoError(t, err)

	month := h.setRange(t, "2024-09-01", "2024-09-30")
	assert.True(t, h.cache.Scope().Equal(month), "store changes move the cache scope")
	assert.True(t, h.queries.PeekStatistics().Loading, "no value from the old range under the new key")

	_, err = h.queries.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), h.backend.statsCalls.Load())
	assert.True(t, h.backend.lastRange.Equal(month))
}

func TestBackToBackRegionDetailsShareOneCall(t *testing.T) {
	h := newHarness(t)
	h.setRange(t, "2024-09-01", "2024-09-07")
	h.backend.gate = make(chan struct{})

	var wg sync.WaitGroup
	results := make([]models.RegionDetail, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := h.queries.RegionDetail(context.Background(), "Москва")
			assert.NoError(t, err)
			results[i] = d
		}(i)
	}
	require.Eventually(t, func() bool { return h.backend.detailCalls.Load() == 1 }, time.Second, time.Millisecond)
	close(h.backend.gate)
	wg.Wait()

	assert.Equal(t, int32(1), h.backend.detailCalls.Load())
	assert.Equal(t, "Москва", results[0].Region)
	assert.Equal(t, results[0], results[1])
}

func TestRegionDetailWithoutRegion(t *testing.T) {
	h := newHarness(t)
	_, err := h.queries.RegionDetail(context.Background(), "  ")
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindValidation))
	assert.Equal(t, int32(0), h.backend.detailCalls.Load())
}

func TestLateResultForOldRangeIsDiscarded(t *testing.T) {
	h := newHarness(t)
	week := h.setRange(t, "2024-09-01", "2024-09-07")
	h.backend.gate = make(chan struct{})

	done := make(chan error)
	go func() {
		_, err := h.queries.RegionDetail(context.Background(), "Москва")
		done <- err
	}()
	require.Eventually(t, func() bool { return h.backend.detailCalls.Load() == 1 }, time.Second, time.Millisecond)

	h.setRange(t, "2024-09-08", "2024-09-14")
	close(h.backend.gate)
	require.NoError(t, <-done)

	_, ok := h.cache.Peek(query.NewKey(query.OpRegionDetails, week, map[string]string{"region": "Москва"}))
	assert.False(t, ok)
}

func TestUploadFailureKeepsCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.setRange(t, "2024-09-01", "2024-09-07")

	before, err := h.queries.Flights(ctx, repo.FlightQuery{})
	require.NoError(t, err)

	h.backend.uploadErr = utils.NewServerError("POST /flights/upload/excel", 400, "Файл должен быть в формате Excel")
	var notices []Notice
	h.coord.OnNotify(func(n Notice) { notices = append(notices, n) })

	rec, err := h.coord.Upload(ctx, UploadFile{Name: "plan.xlsx", Reader: strings.NewReader("x")}, models.SourceExcel)
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindServer))
	assert.Equal(t, models.UploadFailed, rec.Outcome)

	history := h.coord.History()
	require.Len(t, history, 1)
	assert.Equal(t, models.UploadFailed, history[0].Outcome)
	assert.Contains(t, history[0].Error, "Excel")

	after, err := h.queries.Flights(ctx, repo.FlightQuery{})
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, int32(1), h.backend.flightCalls.Load(), "failed upload must not invalidate flights")

	require.Len(t, notices, 1)
	assert.Equal(t, NoticeError, notices[0].Level)
}

func TestUploadSuccessInvalidatesFlightsAndStatistics(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.setRange(t, "2024-09-01", "2024-09-07")
	h.backend.uploadResult = models.UploadResult{Processed: 120, Status: "success"}

	_, err := h.queries.Flights(ctx, repo.FlightQuery{})
	require.NoError(t, err)
	_, err = h.queries.Statistics(ctx)
	require.NoError(t, err)

	rec, err := h.coord.Upload(ctx, UploadFile{Name: "plan.xlsx", Reader: strings.NewReader("x")}, models.SourceExcel)
	require.NoError(t, err)
	assert.Equal(t, 120, rec.RecordsProcessed)
	assert.Equal(t, models.UploadSucceeded, rec.Outcome)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, testNow, rec.Timestamp)

	_, err = h.queries.Flights(ctx, repo.FlightQuery{})
	require.NoError(t, err)
	_, err = h.queries.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), h.backend.flightCalls.Load())
	assert.Equal(t, int32(2), h.backend.statsCalls.Load())
}

func TestHistoryIsMostRecentFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.coord.Upload(ctx, UploadFile{Name: "first.xlsx", Reader: strings.NewReader("x")}, models.SourceExcel)
	require.NoError(t, err)
	_, err = h.coord.Upload(ctx, UploadFile{Name: "second.txt", Reader: strings.NewReader("x")}, models.SourceSHR)
	require.NoError(t, err)

	history := h.coord.History()
	require.Len(t, history, 2)
	assert.Equal(t, "second.txt", history[0].Filename)
	assert.Equal(t, "first.xlsx", history[1].Filename)
	assert.NotEqual(t, history[0].ID, history[1].ID)
}

func TestIsBusyWhileUploadInFlight(t *testing.T) {
	h := newHarness(t)
	h.backend.uploadGate = make(chan struct{})
	assert.False(t, h.coord.IsBusy())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.coord.Upload(context.Background(), UploadFile{Name: "plan.xlsx", Reader: strings.NewReader("x")}, models.SourceExcel)
	}()
	require.Eventually(t, h.coord.IsBusy, time.Second, time.Millisecond)

	close(h.backend.uploadGate)
	<-done
	assert.False(t, h.coord.IsBusy())
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(...string) int {
	c.calls++
	return 0
}

func TestGenerateReportDoesNotInvalidate(t *testing.T) {
	backend := &fakeBackend{reportHandle: models.ReportHandle{Status: "success", FilePath: "/tmp/report.xlsx"}}
	inv := &countingInvalidator{}
	coord := NewCoordinator(backend, inv, utils.DiscardLogger())

	req := MonthlyReport(testNow)
	handle, err := coord.GenerateReport(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/report.xlsx", handle.FilePath)
	assert.Equal(t, 0, inv.calls)
	assert.Equal(t, req, backend.lastReport)
}

func TestLoadDashboardDegradesPerPart(t *testing.T) {
	h := newHarness(t)
	h.backend.statsErr = utils.NewServerError("GET /flights/statistics", 500, "boom")

	d := h.queries.LoadDashboard(context.Background(), repo.FlightQuery{}, 0)
	assert.Error(t, d.Statistics.Err)
	require.NotNil(t, d.Flights.Value)
	assert.Len(t, *d.Flights.Value, 1)
	require.NotNil(t, d.Rating.Value)
}

func TestWarmPopulatesCache(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.queries.Warm(context.Background(), repo.FlightQuery{}, 0))

	assert.NotNil(t, h.queries.PeekStatistics().Value)
	assert.NotNil(t, h.queries.PeekFlights(repo.FlightQuery{}).Value)
	assert.NotNil(t, h.queries.PeekRegionRating(0).Value)
}

func TestStatisticsDiscardedByUploadAreNotMirrored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.setRange(t, "2024-09-01", "2024-09-07")
	h.backend.uploadResult = models.UploadResult{Processed: 3, Status: "success"}
	h.backend.statsGate = make(chan struct{})

	done := make(chan error)
	go func() {
		_, err := h.queries.Statistics(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool { return h.backend.statsCalls.Load() == 1 }, time.Second, time.Millisecond)

	_, err := h.coord.Upload(ctx, UploadFile{Name: "dump.txt", Reader: strings.NewReader("x")}, models.SourceSHR)
	require.NoError(t, err)
	close(h.backend.statsGate)
	require.NoError(t, <-done)

	assert.Nil(t, h.store.Statistics(), "a result fetched before the upload is not persisted")

	_, err = h.queries.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), h.backend.statsCalls.Load())
	require.NotNil(t, h.store.Statistics())
	assert.Equal(t, 45, h.store.Statistics().TotalFlights)
}

func TestCacheHitDoesNotRewriteStore(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.setRange(t, "2024-09-01", "2024-09-07")

	writes := 0
	unsubscribe := h.store.Subscribe(func(c state.Change) {
		if c.Field == state.FieldStatistics {
			writes++
		}
	})
	defer unsubscribe()

	for i := 0; i < 3; i++ {
		_, err := h.queries.Statistics(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, writes)
}

// gatedPersister blocks its first Set until release is closed.
type gatedPersister struct {
	*cache.MemoryProvider
	entered chan struct{}
	release chan struct{}
	once    sync.Once
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

func TestConcurrentRangeChangesKeepCacheScopeInStep(t *testing.T) {
	ctx := context.Background()
	clock := func() time.Time { return testNow }
	persister := &gatedPersister{
		MemoryProvider: cache.NewMemoryProvider(),
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	backend := &fakeBackend{stats: models.Statistics{TotalFlights: 45}}
	store := state.New(persister, utils.DiscardLogger(), state.WithClock(clock))
	c := query.New(query.WithClock(clock), query.WithLogger(utils.DiscardLogger()))
	q := NewQueries(store, c, backend, utils.DiscardLogger())
	t.Cleanup(q.Close)

	first, err := models.ParseDateRange("2024-09-01", "2024-09-07")
	require.NoError(t, err)
	second, err := models.ParseDateRange("2024-10-01", "2024-10-07")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = store.SetDateRange(ctx, first)
	}()
	<-persister.entered
	go func() {
		defer wg.Done()
		_, _ = store.SetDateRange(ctx, second)
	}()
	time.Sleep(20 * time.Millisecond)
	close(persister.release)
	wg.Wait()

	require.True(t, store.DateRange().Equal(second))
	assert.True(t, c.Scope().Equal(second), "cache scope follows the last applied range")

	for i := 0; i < 2; i++ {
		_, err := q.Statistics(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), backend.statsCalls.Load())
}

func TestNoticesReachEveryListenerInOrder(t *testing.T) {
	h := newHarness(t)
	h.backend.uploadResult = models.UploadResult{Processed: 1, Status: "success"}

	var got []string
	h.coord.OnNotify(func(n Notice) { got = append(got, "first:"+string(n.Level)) })
	h.coord.OnNotify(func(n Notice) {
		got = append(got, "second:"+string(n.Level))
		// Registered during delivery, so only later notices reach it.
		h.coord.OnNotify(func(n Notice) { got = append(got, "late:"+string(n.Level)) })
	})

	_, err := h.coord.Upload(context.Background(), UploadFile{Name: "plan.xlsx", Reader: strings.NewReader("x")}, models.SourceExcel)
	require.NoError(t, err)
	assert.Equal(t, []string{"first:" + string(NoticeSuccess), "second:" + string(NoticeSuccess)}, got)
}
