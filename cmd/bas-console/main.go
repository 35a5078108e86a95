package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/basflight/bas-console/internal/cache"
	"github.com/basflight/bas-console/internal/config"
	"github.com/basflight/bas-console/internal/metrics"
	"github.com/basflight/bas-console/internal/query"
	"github.com/basflight/bas-console/internal/repo"
	"github.com/basflight/bas-console/internal/services"
	"github.com/basflight/bas-console/internal/shell"
	"github.com/basflight/bas-console/internal/state"
	"github.com/basflight/bas-console/internal/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cli := shell.NewCLI(shell.Options{Bootstrap: bootstrap})
	err := cli.Execute(ctx)
	if closeErr := cli.Close(); closeErr != nil {
		slog.Warn("close storage", slog.Any("error", closeErr))
	}
	if err == nil {
		return
	}
	if utils.IsAuth(err) {
		fmt.Fprintln(os.Stderr, "authentication required: sign in and provide a token via auth.token, auth.tokenFile or $BAS_TOKEN")
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	stop()
	os.Exit(1)
}

func bootstrap(ctx context.Context, configPath string) (*shell.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Debug("starting bas-console", slog.String("backend", cfg.Backend.BaseURL), slog.String("storage", cfg.Storage.Driver))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	persister := openStorage(ctx, cfg.Storage, logger)
	store := state.New(persister, logger, state.WithRecordName(cfg.Storage.RecordName))
	if err := store.Load(ctx); err != nil {
		persister.Close()
		return nil, err
	}

	gateway := repo.NewGateway(cfg.Backend.BaseURL, cfg.Backend.Timeout,
		repo.WithCredentials(credentials(cfg.Auth)),
		repo.WithLogger(logger),
		repo.WithObserver(func(route, method string, status int, elapsed time.Duration, _ error) {
			metrics.ObserveBackendRequest(route, method, status, elapsed)
		}),
	)
	client := repo.NewClient(gateway, repo.Paths(cfg.Backend.Paths))

	retain := cfg.Cache.Retain
	queryCache := query.New(
		query.WithLogger(logger),
		query.WithDefaultPolicy(query.Policy{Fresh: cfg.Cache.FlightsFresh, Retain: retain}),
		query.WithPolicy(query.OpFlights, query.Policy{Fresh: cfg.Cache.FlightsFresh, Retain: retain}),
		query.WithPolicy(query.OpStatistics, query.Policy{Fresh: cfg.Cache.StatisticsFresh, Retain: retain}),
		query.WithPolicy(query.OpRegionRating, query.Policy{Fresh: cfg.Cache.RegionRatingFresh, Retain: retain}),
		query.WithPolicy(query.OpRegionDetails, query.Policy{Fresh: cfg.Cache.RegionDetailsFresh, Retain: retain}),
		query.WithObserver(func(op string, ev query.Event) {
			metrics.ObserveCacheEvent(op, string(ev))
		}),
	)

	return &shell.App{
		Config:      cfg,
		Store:       store,
		Cache:       queryCache,
		Queries:     services.NewQueries(store, queryCache, client, logger),
		Coordinator: services.NewCoordinator(client, queryCache, logger),
		Remote:      client,
		Metrics:     promhttp.Handler(),
		Logger:      logger,
		Close:       persister.Close,
	}, nil
}

// openStorage picks the persisted-record driver. An unreachable Valkey server
// degrades to in-memory state for this run.
func openStorage(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) cache.Provider {
	switch cfg.Driver {
	case "memory":
		return cache.NewMemoryProvider()
	case "valkey":
		provider, err := cache.NewValkeyProvider(ctx, cache.ValkeyConfig{
			Addr:         cfg.Valkey.Addr,
			Username:     cfg.Valkey.Username,
			Password:     cfg.Valkey.Password,
			DB:           cfg.Valkey.DB,
			Namespace:    cfg.Valkey.Namespace,
			DialTimeout:  cfg.Valkey.DialTimeout,
			ReadTimeout:  cfg.Valkey.ReadTimeout,
			WriteTimeout: cfg.Valkey.WriteTimeout,
			MaxRetries:   cfg.Valkey.MaxRetries,
			TLS:          cfg.Valkey.TLS,
		})
		if err != nil {
			logger.Warn("valkey storage unavailable, state will not persist", slog.Any("error", err))
			return cache.NewMemoryProvider()
		}
		return provider
	default:
		provider, err := cache.NewFileProvider(cfg.Path)
		if err != nil {
			logger.Warn("file storage unavailable, state will not persist", slog.String("path", cfg.Path), slog.Any("error", err))
			return cache.NewMemoryProvider()
		}
		return provider
	}
}

func credentials(cfg config.AuthConfig) repo.CredentialSource {
	return repo.ChainCredentials{
		repo.StaticToken(cfg.Token),
		repo.FileToken(cfg.TokenFile),
		repo.EnvToken(cfg.TokenEnv),
	}
}
