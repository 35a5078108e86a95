package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/basflight/bas-console/internal/models"
	"github.com/basflight/bas-console/internal/query"
	"github.com/basflight/bas-console/internal/repo"
	"github.com/basflight/bas-console/internal/state"
	"github.com/basflight/bas-console/internal/utils"
	"github.com/basflight/bas-console/internal/views"
)

// DefaultRatingLimit is the leaderboard size requested when none is given.
const DefaultRatingLimit = 20

// Queries is the single read path: every backend read is keyed on the
// store's current date range and goes through the query cache.
type Queries struct {
	store   *state.Store
	cache   *query.Cache
	backend Backend
	logger  *slog.Logger

	unsubscribe func()
}

// NewQueries wires the cache scope to the store so results for a replaced
// date range are never written back.
func NewQueries(store *state.Store, cache *query.Cache, backend Backend, logger *slog.Logger) *Queries {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queries{store: store, cache: cache, backend: backend, logger: logger}
	cache.SetScope(store.DateRange())
	q.unsubscribe = store.Subscribe(func(c state.Change) {
		if c.Field != state.FieldDateRange && c.Field != state.FieldLoaded {
			return
		}
		if !c.Previous.DateRange.Equal(c.Current.DateRange) {
			logger.Debug("date range changed", slog.String("from", c.Previous.DateRange.String()), slog.String("to", c.Current.DateRange.String()))
		}
		cache.SetScope(c.Current.DateRange)
	})
	return q
}

// Close detaches from the store.
func (q *Queries) Close() {
	if q.unsubscribe != nil {
		q.unsubscribe()
	}
}

// FlightsKey is the cache key of a flight listing for the current range.
func (q *Queries) FlightsKey(fq repo.FlightQuery) query.Key {
	return query.NewKey(query.OpFlights, q.store.DateRange(), fq.Params())
}

// StatisticsKey is the cache key of the statistics for the current range.
func (q *Queries) StatisticsKey() query.Key {
	return query.NewKey(query.OpStatistics, q.store.DateRange(), nil)
}

// RegionRatingKey is the cache key of the leaderboard for the current range.
func (q *Queries) RegionRatingKey(limit int) query.Key {
	return query.NewKey(query.OpRegionRating, q.store.DateRange(), map[string]string{"limit": strconv.Itoa(normaliseLimit(limit))})
}

// RegionDetailKey is the cache key of one region's detail for the current range.
func (q *Queries) RegionDetailKey(region string) query.Key {
	return query.NewKey(query.OpRegionDetails, q.store.DateRange(), map[string]string{"region": region})
}

// Flights lists flights for the current range.
func (q *Queries) Flights(ctx context.Context, fq repo.FlightQuery) ([]models.Flight, error) {
	key := q.FlightsKey(fq)
	return read(ctx, q.cache, key, func(ctx context.Context) ([]models.Flight, error) {
		return q.backend.FetchFlights(ctx, key.Range, fq)
	}, nil)
}

// Statistics returns aggregate statistics for the current range and mirrors
// each payload the cache keeps into the persisted store.
func (q *Queries) Statistics(ctx context.Context) (models.Statistics, error) {
	key := q.StatisticsKey()
	return read(ctx, q.cache, key, func(ctx context.Context) (models.Statistics, error) {
		return q.backend.FetchStatistics(ctx, key.Range)
	}, func(ctx context.Context, stats models.Statistics) {
		q.store.SetStatistics(ctx, &stats)
	})
}

// RegionRating returns the leaderboard for the current range; limit <= 0 means DefaultRatingLimit.
func (q *Queries) RegionRating(ctx context.Context, limit int) ([]models.RegionRating, error) {
	limit = normaliseLimit(limit)
	key := q.RegionRatingKey(limit)
	return read(ctx, q.cache, key, func(ctx context.Context) ([]models.RegionRating, error) {
		return q.backend.FetchRegionRating(ctx, key.Range, limit)
	}, func(ctx context.Context, rating []models.RegionRating) {
		q.store.SetRegions(ctx, rating)
	})
}

// RegionDetail returns one region's breakdown. Without a region nothing is
// fetched and a validation error is returned.
func (q *Queries) RegionDetail(ctx context.Context, region string) (models.RegionDetail, error) {
	region = strings.TrimSpace(region)
	if region == "" {
		return models.RegionDetail{}, utils.NewValidationError("region detail", "select a region first")
	}
	key := q.RegionDetailKey(region)
	return read(ctx, q.cache, key, func(ctx context.Context) (models.RegionDetail, error) {
		return q.backend.FetchRegionDetail(ctx, key.Range, region)
	}, nil)
}

// Dashboard is everything the overview screen shows, each part loaded independently.
type Dashboard struct {
	Range      models.DateRange
	Statistics views.Result[models.Statistics]
	Flights    views.Result[[]models.Flight]
	Rating     views.Result[[]models.RegionRating]
}

// LoadDashboard reads statistics, flights and the leaderboard concurrently. A
// failed read degrades only its own part.
func (q *Queries) LoadDashboard(ctx context.Context, fq repo.FlightQuery, limit int) Dashboard {
	d := Dashboard{Range: q.store.DateRange()}
	var g errgroup.Group
	g.Go(func() error {
		d.Statistics = views.From[models.Statistics](q.Statistics(ctx))
		return nil
	})
	g.Go(func() error {
		d.Flights = views.From[[]models.Flight](q.Flights(ctx, fq))
		return nil
	})
	g.Go(func() error {
		d.Rating = views.From[[]models.RegionRating](q.RegionRating(ctx, limit))
		return nil
	})
	_ = g.Wait()
	return d
}

// Warm refreshes every dashboard query whose entry is stale or absent. It
// returns the first error so a background loop can log it.
func (q *Queries) Warm(ctx context.Context, fq repo.FlightQuery, limit int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := q.Statistics(ctx)
		return err
	})
	g.Go(func() error {
		_, err := q.Flights(ctx, fq)
		return err
	})
	g.Go(func() error {
		_, err := q.RegionRating(ctx, limit)
		return err
	})
	return g.Wait()
}

// PeekStatistics returns the cached statistics without fetching, for
// stale-while-revalidate display.
func (q *Queries) PeekStatistics() views.Result[models.Statistics] {
	return peek[models.Statistics](q.cache, q.StatisticsKey())
}

// PeekRegionRating returns the cached leaderboard without fetching.
func (q *Queries) PeekRegionRating(limit int) views.Result[[]models.RegionRating] {
	return peek[[]models.RegionRating](q.cache, q.RegionRatingKey(limit))
}

// PeekFlights returns the cached flight listing without fetching.
func (q *Queries) PeekFlights(fq repo.FlightQuery) views.Result[[]models.Flight] {
	return peek[[]models.Flight](q.cache, q.FlightsKey(fq))
}

func read[T any](ctx context.Context, c *query.Cache, key query.Key, fetch func(context.Context) (T, error), commit func(context.Context, T)) (T, error) {
	var zero T
	var onStore query.Commit
	if commit != nil {
		onStore = func(ctx context.Context, v any) {
			if typed, ok := v.(T); ok {
				commit(ctx, typed)
			}
		}
	}
	v, err := c.ReadCommit(ctx, key, func(ctx context.Context) (any, error) {
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return value, nil
	}, onStore)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cached %s has type %T", key.Operation, v)
	}
	return typed, nil
}

func peek[T any](c *query.Cache, key query.Key) views.Result[T] {
	entry, ok := c.Peek(key)
	if !ok {
		return views.Pending[T]()
	}
	out := views.Result[T]{
		Loading: entry.Status == query.StatusPending,
		Stale:   entry.Stale,
		Err:     entry.Err,
	}
	if v, ok := entry.Value.(T); ok {
		out.Value = &v
	}
	return out
}

func normaliseLimit(limit int) int {
	if limit <= 0 {
		return DefaultRatingLimit
	}
	return limit
}
