package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rise-habits/rise/internal/api"
	"github.com/rise-habits/rise/internal/app/adapter"
	"github.com/rise-habits/rise/internal/app/challenge"
	"github.com/rise-habits/rise/internal/app/ledger"
	"github.com/rise-habits/rise/internal/app/streak"
	"github.com/rise-habits/rise/internal/domain"
	"github.com/rise-habits/rise/internal/infra/bus"
	_ "github.com/rise-habits/rise/internal/infra/metrics" // Register Prometheus metrics
	"github.com/rise-habits/rise/internal/infra/sqlite"
)

// Engine is the Rise runtime. It wires together all services.
type Engine struct {
	Config  Config
	DB      *sqlite.DB
	Bus     *bus.Bus
	Ledger  *ledger.Service
	Streak  *streak.Service
	Tracker *challenge.Tracker
	Adapter *adapter.Adapter
	Server  *api.Server
	cancel  context.CancelFunc
}

// New creates an Engine from the on-disk configuration.
func New() (*Engine, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates an Engine with the given configuration.
func NewWithConfig(cfg Config) (*Engine, error) {
	dir := cfg.Storage.Dir
	if dir == "" {
		dir = riseHome()
	}
	db, err := sqlite.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	b := bus.New()

	led, err := ledger.NewService(db, b, ledger.Config{
		DailyXPCap:            cfg.Limits.DailyXPCap,
		MaxSourceShare:        cfg.Limits.MaxSourceShare,
		JournalBaseXP:         cfg.Limits.JournalBaseXP,
		JournalFullPositions:  cfg.Limits.JournalFullPositions,
		JournalBonusXP:        cfg.Limits.JournalBonusXP,
		JournalBonusPositions: cfg.Limits.JournalBonusPositions,
		BatchWindow:           cfg.Batch.Window(),
		BatchMaxSize:          cfg.Batch.MaxSize,
		RetentionMonths:       cfg.Storage.RetentionMonths,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init ledger: %w", err)
	}

	str := streak.NewService(db, b, streak.Config{
		AdsPerMissedDay: cfg.Streak.AdsPerMissedDay,
		RepairRetries:   cfg.Streak.RepairRetries,
		CacheTTL:        time.Duration(cfg.Streak.CacheTTLSeconds) * time.Second,
	})

	trackerCfg := challenge.DefaultTrackerConfig()
	trackerCfg.BatchWindow = cfg.Batch.Window()
	trackerCfg.BatchMaxSize = cfg.Batch.MaxSize
	tracker, err := challenge.NewTracker(db, b, led, trackerCfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init challenge tracker: %w", err)
	}

	adapterCfg := adapter.DefaultConfig()
	adapterCfg.DebounceWindow = cfg.Batch.Window()
	adapterCfg.MaxBuffer = cfg.Batch.MaxSize
	ad := adapter.New(b, tracker, adapterCfg)

	srv := api.NewServer(led, str, tracker, api.Options{
		CORSOrigins: cfg.API.CORSOrigins,
		Metrics:     cfg.API.Metrics,
	})

	return &Engine{
		Config:  cfg,
		DB:      db,
		Bus:     b,
		Ledger:  led,
		Streak:  str,
		Tracker: tracker,
		Adapter: ad,
		Server:  srv,
	}, nil
}

// Serve starts the HTTP server and blocks until shutdown.
func (e *Engine) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	go e.maintenanceLoop(ctx)

	addr := fmt.Sprintf("%s:%d", e.Config.API.Host, e.Config.API.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		_ = httpServer.Shutdown(shutdownCtx)
		e.teardown()
	}()

	fmt.Printf("Rise engine serving on http://%s\n", addr)
	if e.Config.API.Metrics {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// maintenanceLoop runs the periodic chores: streak recomputation,
// monthly challenge rollover, and ledger retention pruning.
func (e *Engine) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	e.maintain()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.maintain()
		}
	}
}

func (e *Engine) maintain() {
	now := time.Now().UTC()
	if _, err := e.Streak.Recalculate(now); err != nil {
		log.Printf("[daemon] streak recalculation failed: %v", err)
	}
	if _, err := e.Tracker.EnsureActive(now); err != nil && !errors.Is(err, domain.ErrNoActiveChallenge) {
		log.Printf("[daemon] challenge rollover failed: %v", err)
	}
	if _, err := e.Ledger.Prune(now); err != nil {
		log.Printf("[daemon] ledger prune failed: %v", err)
	}
}

// teardown flushes batchers before closing storage so no pending event
// or persisted write is dropped.
func (e *Engine) teardown() {
	e.Adapter.Close()
	e.Ledger.Close()
	e.Tracker.Close()
	_ = e.DB.Close()
}

// Close shuts down all engine resources.
func (e *Engine) Close() {
	if e.cancel != nil {
		e.cancel()
		return // the shutdown goroutine runs teardown
	}
	e.teardown()
}
