package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/basflight/bas-console/internal/metrics"
	"github.com/basflight/bas-console/internal/models"
	"github.com/basflight/bas-console/internal/query"
	"github.com/basflight/bas-console/internal/utils"
)

// UploadInvalidates lists the query families recomputed from uploaded flights.
var UploadInvalidates = []string{
	query.OpFlights,
	query.OpStatistics,
	query.OpRegionRating,
	query.OpRegionDetails,
}

// UploadFile is a file handed to the coordinator.
type UploadFile struct {
	Name   string
	Reader io.Reader
}

// NoticeLevel is the severity of a transient notification.
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient, non-blocking message about a finished mutation.
type Notice struct {
	Level   NoticeLevel
	Message string
	At      time.Time
}

// Invalidator is the part of the query cache the coordinator touches.
type Invalidator interface {
	Invalidate(families ...string) int
}

// Coordinator runs uploads and report generation. It does not serialize
// calls; IsBusy lets a caller avoid duplicate submissions.
type Coordinator struct {
	backend Backend
	cache   Invalidator
	logger  *slog.Logger
	now     func() time.Time

	inFlight  atomic.Int32
	latencies *utils.LatencyTracker

	mu      sync.Mutex
	history []models.UploadRecord

	notifyMu  sync.Mutex
	listeners []func(Notice)
}

// CoordinatorOption customises a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorClock injects the time source used for records and notices.
func WithCoordinatorClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCoordinator constructs the mutation coordinator.
func NewCoordinator(backend Backend, cache Invalidator, logger *slog.Logger, opts ...CoordinatorOption) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		backend:   backend,
		cache:     cache,
		logger:    logger,
		now:       time.Now,
		latencies: utils.NewLatencyTracker(256),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnNotify registers a listener for success and failure notices.
func (c *Coordinator) OnNotify(fn func(Notice)) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// IsBusy reports whether any mutation is waiting on the backend.
func (c *Coordinator) IsBusy() bool {
	return c.inFlight.Load() > 0
}

// History returns the session upload records, most recent first.
func (c *Coordinator) History() []models.UploadRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.UploadRecord(nil), c.history...)
}

// LatencyP95 returns the 95th percentile mutation latency seen this session.
func (c *Coordinator) LatencyP95() time.Duration {
	return c.latencies.Percentile(95)
}

// Upload sends file to the endpoint for kind. On success the flight-derived
// query families are invalidated; on failure nothing is invalidated. Either
// way a record is prepended to the history.
func (c *Coordinator) Upload(ctx context.Context, file UploadFile, kind models.SourceKind) (models.UploadRecord, error) {
	record := models.UploadRecord{
		ID:         uuid.NewString(),
		Filename:   file.Name,
		SourceKind: kind,
	}

	done := c.begin()
	result, err := c.backend.UploadFlights(ctx, kind, file.Name, file.Reader)
	elapsed := done("upload", err)
	record.Timestamp = c.now()

	if err != nil {
		record.Outcome = models.UploadFailed
		record.Error = err.Error()
		c.record(record)
		c.logger.Warn("upload failed",
			slog.String("file", file.Name),
			slog.String("kind", string(kind)),
			slog.Duration("elapsed", elapsed),
			slog.Any("error", err))
		c.notify(NoticeError, fmt.Sprintf("upload of %s failed: %v", file.Name, err))
		return record, err
	}

	c.cache.Invalidate(UploadInvalidates...)
	record.Outcome = models.UploadSucceeded
	record.RecordsProcessed = result.Processed
	c.record(record)
	c.logger.Info("upload processed",
		slog.String("file", file.Name),
		slog.String("kind", string(kind)),
		slog.Int("processed", result.Processed),
		slog.Int("parse_errors", len(result.Errors)),
		slog.Duration("elapsed", elapsed))
	c.notify(NoticeSuccess, fmt.Sprintf("processed %d records from %s", result.Processed, file.Name))
	return record, nil
}

// GenerateReport submits req unchanged. Reports do not change flight data, so
// no query is invalidated.
func (c *Coordinator) GenerateReport(ctx context.Context, req models.ReportRequest) (models.ReportHandle, error) {
	done := c.begin()
	handle, err := c.backend.GenerateReport(ctx, req)
	elapsed := done("report", err)

	if err != nil {
		c.logger.Warn("report generation failed",
			slog.String("format", string(req.Format)),
			slog.String("range", req.Range.String()),
			slog.Any("error", err))
		c.notify(NoticeError, fmt.Sprintf("report generation failed: %v", err))
		return models.ReportHandle{}, err
	}
	c.logger.Info("report generated",
		slog.String("format", string(req.Format)),
		slog.String("range", req.Range.String()),
		slog.String("file", handle.FilePath),
		slog.Duration("elapsed", elapsed))
	c.notify(NoticeSuccess, fmt.Sprintf("%s report ready", req.Format))
	return handle, nil
}

// begin marks a mutation in flight and returns the function that ends it.
func (c *Coordinator) begin() func(kind string, err error) time.Duration {
	c.inFlight.Add(1)
	metrics.MutationStarted()
	start := time.Now()
	return func(kind string, err error) time.Duration {
		elapsed := time.Since(start)
		c.inFlight.Add(-1)
		metrics.MutationFinished()

		outcome := metrics.OutcomeSuccess
		if err != nil {
			outcome = metrics.OutcomeError
		}
		metrics.ObserveMutation(kind, elapsed, outcome)
		c.latencies.Observe(elapsed)
		if count := c.latencies.Count(); count >= 20 && count%20 == 0 {
			c.logger.Info("mutation latency", slog.Duration("p95", c.latencies.Percentile(95)), slog.Int("samples", count))
		}
		return elapsed
	}
}

func (c *Coordinator) record(rec models.UploadRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append([]models.UploadRecord{rec}, c.history...)
}

func (c *Coordinator) notify(level NoticeLevel, msg string) {
	c.notifyMu.Lock()
	listeners := slices.Clone(c.listeners)
	c.notifyMu.Unlock()
	n := Notice{Level: level, Message: msg, At: c.now()}
	for _, fn := range listeners {
		fn(n)
	}
}
