package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/devinsights/internal/cache"
	"github.com/example/devinsights/internal/config"
	"github.com/example/devinsights/internal/handlers"
	"github.com/example/devinsights/internal/health"
	"github.com/example/devinsights/internal/logging"
	"github.com/example/devinsights/internal/ratelimit"
	"github.com/example/devinsights/internal/usecase"
	"github.com/example/devinsights/internal/warehouse"
)

const (
	startupTimeout  = 15 * time.Second
	janitorInterval = time.Minute
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	serveCmd := newServeCmd(&configFile)
	root := &cobra.Command{
		Use:           "devinsights",
		Short:         "Engineering productivity and code health analytics API.",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          serveCmd.RunE,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file (default ./devinsights.yaml)")
	root.AddCommand(serveCmd, newValidateCmd(&configFile))
	return root
}

func newServeCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), *configFile)
		},
	}
}

// runtimeDeps holds the long-lived clients shared by every command.
type runtimeDeps struct {
	cfg       config.Config
	logger    *zap.Logger
	warehouse *warehouse.BigQuery
}

func bootstrap(ctx context.Context, configFile string) (*runtimeDeps, error) {
	cfg, err := config.Load(config.New(configFile))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	bq, err := warehouse.NewBigQuery(ctx, warehouse.BigQueryConfig{
		ProjectID:       cfg.ProjectID,
		CredentialsFile: cfg.CredentialsFile,
		Datasets:        cfg.Datasets,
	}, logger)
	if err != nil {
		return nil, err
	}
	return &runtimeDeps{cfg: cfg, logger: logger, warehouse: bq}, nil
}

func (d *runtimeDeps) close() {
	if err := d.warehouse.Close(); err != nil {
		d.logger.Warn("closing bigquery client failed", zap.Error(err))
	}
	_ = d.logger.Sync()
}

func serve(ctx context.Context, configFile string) error {
	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	deps, err := bootstrap(startCtx, configFile)
	if err != nil {
		return err
	}
	defer deps.close()
	cfg, logger := deps.cfg, deps.logger

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	store, err := initCache(startCtx, runCtx, cfg, logger)
	if err != nil {
		return err
	}

	productivity := usecase.NewProductivityUseCase(deps.warehouse, logger)
	codeHealth := usecase.NewCodeHealthUseCase(deps.warehouse, logger)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	handlers.RegisterRoutes(r, handlers.Dependencies{
		Productivity: productivity,
		CodeHealth:   codeHealth,
		Cockpit:      usecase.NewCockpitUseCase(deps.warehouse, logger),
		Dashboard:    usecase.NewDashboardUseCase(deps.warehouse, productivity, codeHealth, logger),
		Health:       health.NewChecker(deps.warehouse, cfg.Datasets, store, logger),
		Cache:        store,
		RateLimiter:  ratelimit.New(cfg.RateLimit, cfg.RateLimitWindow),
		APIKey:       cfg.APIKey,
		CockpitTTL:   cfg.CockpitTTL,
		AnalyticsTTL: cfg.AnalyticsTTL,
		Logger:       logger,
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("analytics API listening",
		zap.String("addr", server.Addr),
		zap.String("project", cfg.ProjectID),
		zap.String("cache_backend", cfg.CacheBackend),
	)
	return serveHTTPServer(server, cfg.ShutdownTimeout, logger)
}

// initCache builds the configured response cache. The memory janitor runs until runCtx ends.
func initCache(startCtx, runCtx context.Context, cfg config.Config, logger *zap.Logger) (cache.Store, error) {
	if cfg.CacheBackend == config.CacheBackendRedis {
		client, err := initRedis(startCtx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		go func() {
			<-runCtx.Done()
			_ = client.Close()
		}()
		logger.Info("using redis response cache", zap.String("addr", cfg.RedisAddr))
		return cache.NewRedisStore(client, cache.DefaultKeyPrefix, cfg.AnalyticsTTL), nil
	}

	store := cache.NewMemoryStore(cfg.AnalyticsTTL)
	go store.RunJanitor(runCtx, janitorInterval)
	logger.Warn("using in-process response cache; entries are not shared between replicas")
	return store, nil
}

func initRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
