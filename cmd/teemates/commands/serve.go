package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/teemates/realtime/bus"
	"github.com/teemates/realtime/config"
	"github.com/teemates/realtime/db"
	"github.com/teemates/realtime/dispatch"
	"github.com/teemates/realtime/domain"
	"github.com/teemates/realtime/errors"
	"github.com/teemates/realtime/jobs"
	"github.com/teemates/realtime/logger"
	"github.com/teemates/realtime/match"
	"github.com/teemates/realtime/metrics"
	"github.com/teemates/realtime/notify"
	"github.com/teemates/realtime/version"
	"github.com/teemates/realtime/ws"
)

// ServeCmd starts the realtime service
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the realtime service",
	Long: `Start the TeeMates realtime service: event bus subscriber, background
job workers, scheduled sweeps, and the WebSocket endpoint.`,
	RunE: runServe,
}

var (
	serveConfigPath string
	serveJSONLogs   bool
)

func init() {
	ServeCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Config file path (default: ./teemates.toml)")
	ServeCmd.Flags().BoolVar(&serveJSONLogs, "json-logs", false, "Emit JSON logs instead of console output")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := logger.Initialize(serveJSONLogs); err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	defer logger.Cleanup()
	log := logger.Logger.Named("serve")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Server.WSSecret == "" {
		return errors.New("server.ws_secret must be set (TEEMATES_SERVER_WS_SECRET)")
	}

	log.Infow("Starting realtime service",
		"version", version.Get().Short(),
		"port", cfg.Server.Port,
		"broker", cfg.Broker.URL,
	)

	database, err := db.OpenWithMigrations(cfg.Database.Path, logger.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	// The marketplace-backed repository plugs in here. Until that
	// client lands, domain reads come from the in-memory fake while
	// SQLite owns the tables this service writes.
	repo := domain.NewSQLiteNotifications(domain.NewFake(), database)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Jobs: store, queue, workers
	store := jobs.NewStore(database)
	if n, err := store.RequeueOrphans(); err != nil {
		return errors.Wrap(err, "failed to requeue orphaned jobs")
	} else if n > 0 {
		log.Warnw("Requeued jobs orphaned by previous shutdown", "count", n)
	}
	queue := jobs.NewQueue(store, cfg.Jobs.MaxAttempts)

	// Matching engine and recommendation cache
	engine := match.NewEngine(repo, match.EngineConfig{
		ScorerConfig: match.ScorerConfig{
			RadiusKm:    cfg.Match.RadiusKm,
			HorizonDays: cfg.Match.HorizonDays,
		},
		MinScore:   cfg.Match.MinScore,
		MaxResults: cfg.Match.MaxResults,
	}, logger.Logger)
	cache := match.NewCache(engine, match.CacheConfig{
		TTL:        cfg.Match.CacheTTL(),
		MaxEntries: cfg.Match.CacheMaxEntries,
		MaxResults: cfg.Match.MaxResults,
	}, logger.Logger)

	// WebSocket hub and endpoint
	hub := ws.NewHub()
	wsServer := ws.NewServer(hub, ws.NewAuthenticator(cfg.Server.WSSecret), ws.ServerOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxClients:     cfg.Server.MaxClients,
	})

	// Notification delivery and task handlers
	deliverer := notify.NewDeliverer(repo, hub, notify.NewLogPushTransport(), notify.NewLogEmailTransport())
	registry := jobs.NewRegistry()
	notify.NewHandlers(repo, deliverer, engine, engine, cache, store).RegisterAll(registry)

	pool := jobs.NewPool(queue, registry, jobs.PoolConfig{
		Workers:      cfg.Jobs.Workers,
		PollInterval: cfg.Jobs.PollInterval(),
		BackoffBase:  cfg.Jobs.BackoffBase(),
		NotifyRate:   cfg.Jobs.NotifyRatePerSecond,
	})
	pool.Start(ctx)
	defer pool.Stop()

	sweeper := jobs.NewSweeper(repo, queue, jobs.SweepConfig{
		ReminderInterval: time.Duration(cfg.Sweeps.ReminderIntervalMinutes) * time.Minute,
		CleanupHourUTC:   cfg.Sweeps.CleanupHourUTC,
		DigestWeekday:    time.Weekday(cfg.Sweeps.DigestWeekday),
		DigestSpread:     time.Duration(cfg.Sweeps.DigestSpreadMinutes) * time.Minute,
	})
	go sweeper.Run(ctx)

	// Event bus subscription
	nc, err := nats.Connect(cfg.Broker.URL,
		nats.Name("teemates-realtime"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to connect to broker at %s", cfg.Broker.URL)
	}
	defer nc.Close()

	subscriber := bus.NewSubscriber(nc, cfg.Broker.Subject, logger.Logger)
	dispatch.NewDispatcher(repo, hub, queue, cache).RegisterAll(subscriber)
	if err := subscriber.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start event subscription")
	}
	defer subscriber.Stop()

	// HTTP server: WebSocket endpoint plus health and metrics
	mux := http.NewServeMux()
	mux.Handle("/ws", wsServer)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","version":%q}`, version.Get().Short())
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infow("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Infow("Shutting down", "signal", sig.String())
	case err := <-serveErr:
		return errors.Wrap(err, "http server failed")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnw("HTTP server shutdown incomplete", "error", err)
	}

	// The deferred teardown runs in reverse wiring order: drain the
	// subscription, close the broker connection, stop the workers,
	// then close the database.
	log.Infow("Shutdown complete")
	return nil
}

func loadConfig() (*config.Config, error) {
	if serveConfigPath != "" {
		return config.LoadFromFile(serveConfigPath)
	}
	return config.Load()
}
