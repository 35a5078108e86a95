package shell

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/basflight/bas-console/internal/api"
	"github.com/basflight/bas-console/internal/metrics"
	"github.com/basflight/bas-console/internal/query"
	"github.com/basflight/bas-console/internal/repo"
	"github.com/basflight/bas-console/internal/services"
)

type serveCmd struct {
	cli   *CLI
	query repo.FlightQuery
	limit int
}

func newServeCmd(cli *CLI) *cobra.Command {
	sc := &serveCmd{cli: cli}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep the dashboard queries warm and expose health and metrics",
		Args:  cobra.NoArgs,
		RunE:  sc.run,
	}
	cmd.Flags().StringVar(&sc.query.Region, "region", "", "Region filter of the warmed flight listing")
	cmd.Flags().IntVar(&sc.limit, "limit", services.DefaultRatingLimit, "Leaderboard size to keep warm")
	return cmd
}

func (sc *serveCmd) run(cmd *cobra.Command, _ []string) error {
	app := sc.cli.app
	cfg := app.Config
	logger := app.Logger
	ctx, stop := context.WithCancel(cmd.Context())
	defer stop()

	server, err := api.NewServer(cfg.Server)
	if err != nil {
		return err
	}
	go func() {
		logger.Info("health server listening", slog.String("address", server.Address()))
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" && app.Metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", app.Metrics)
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	r := &refresher{
		queries: app.Queries,
		remote:  app.Remote,
		health:  server,
		cache:   app.Cache,
		logger:  logger,
		query:   sc.query,
		limit:   sc.limit,
	}
	r.run(ctx, cfg.Server.RefreshInterval, cfg.Cache.SweepInterval)

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}
	return nil
}

type servingSetter interface {
	SetServing(service string, serving bool)
}

// refresher drives the background loop of serve mode.
type refresher struct {
	queries *services.Queries
	remote  Remote
	health  servingSetter
	cache   *query.Cache
	logger  *slog.Logger
	query   repo.FlightQuery
	limit   int
}

func (r *refresher) run(ctx context.Context, every, sweepEvery time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	if sweepEvery <= 0 {
		sweepEvery = time.Minute
	}
	refresh := time.NewTicker(every)
	defer refresh.Stop()
	sweep := time.NewTicker(sweepEvery)
	defer sweep.Stop()

	r.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-refresh.C:
			r.refresh(ctx)
		case <-sweep.C:
			r.sweep()
		}
	}
}

// refresh probes the backend and re-reads every stale dashboard query.
func (r *refresher) refresh(ctx context.Context) {
	status, err := r.remote.Health(ctx)
	r.health.SetServing(api.ServiceBackend, err == nil)
	if err != nil {
		r.logger.Warn("backend health probe failed", slog.Any("error", err))
	} else {
		r.logger.Debug("backend healthy", slog.String("status", status))
	}

	warmErr := r.queries.Warm(ctx, r.query, r.limit)
	r.health.SetServing(api.ServiceQueries, warmErr == nil)
	if warmErr != nil && ctx.Err() == nil {
		r.logger.Warn("dashboard refresh failed", slog.Any("error", warmErr))
	}
	metrics.SetCacheEntries(r.cache.Len())
}

func (r *refresher) sweep() {
	if n := r.cache.Sweep(); n > 0 {
		r.logger.Debug("evicted cache entries", slog.Int("count", n))
	}
	metrics.SetCacheEntries(r.cache.Len())
}
