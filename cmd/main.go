// jobmate-dashboard-service
//
// Review dashboard over the job-application spreadsheet.
// Keeps an in-memory collection of job records read from Google Sheets,
// applies card actions optimistically, persists them back to the sheet and
// fires the automation webhooks each action needs:
//   - KEEP         → ENRICH_JOB
//   - VALIDATE     → GENERATE_PDF
//   - MARK_SENT    → MARK_SENT
//   - SEND_EMAIL   → SEND_EMAIL
//
// Polls the sheet every 10s while webhooks are pending, every 60s otherwise.
// Publishes EVENT_JOB_PATCHED / EVENT_JOBS_REFRESHED to Redis when configured.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"

	"jobmate/dashboard-service/internal/cache"
	"jobmate/dashboard-service/internal/config"
	"jobmate/dashboard-service/internal/db"
	"jobmate/dashboard-service/internal/events"
	"jobmate/dashboard-service/internal/grpcserver"
	"jobmate/dashboard-service/internal/jobs"
	"jobmate/dashboard-service/internal/journal"
	"jobmate/dashboard-service/internal/kanban"
	"jobmate/dashboard-service/internal/scheduler"
	"jobmate/dashboard-service/internal/session"
	"jobmate/dashboard-service/internal/settings"
	"jobmate/dashboard-service/internal/sheets"
	"jobmate/dashboard-service/internal/trigger"
)

func main() {
	if err := run(); err != nil {
		log.Printf("[dashboard-service] %v", err)
		os.Exit(1)
	}
}

// run returns instead of exiting so deferred connection closes always run.
func run() error {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Redis (optional) ─────────────────────────────────────────────────────
	var store cache.Store
	var publisher events.Publisher
	if cfg.RedisURL != "" {
		log.Println("[dashboard-service] Connecting to Redis…")
		rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rdb.Close()
		log.Println("[dashboard-service] Redis connected ✓")
		store = cache.NewRedis(rdb, "dashboard:")
		publisher = events.NewRedis(rdb)
	} else {
		mem, err := cache.NewMemory(cache.WithFile(cfg.CacheFile), cache.WithMaxEntries(cfg.CacheMaxEntries))
		if err != nil {
			return fmt.Errorf("cache: %w", err)
		}
		store = mem
	}

	// ── PostgreSQL (optional) ────────────────────────────────────────────────
	var actions journal.Journal = journal.NewMemory(0)
	if cfg.DatabaseURL != "" {
		log.Println("[dashboard-service] Connecting to PostgreSQL…")
		pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("PostgreSQL: %w", err)
		}
		defer pool.Close()
		pg := journal.NewPostgres(pool)
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("journal migration: %w", err)
		}
		actions = pg
		log.Println("[dashboard-service] PostgreSQL connected ✓")
	}

	// ── Session + sheet ──────────────────────────────────────────────────────
	sess := session.New(store, cfg.SessionTTL)
	if err := sess.Load(ctx); err != nil {
		logger.Warn("could not restore session", "err", err)
	}
	if cfg.GoogleToken != "" {
		if err := sess.Set(ctx, cfg.GoogleToken); err != nil {
			return fmt.Errorf("session: %w", err)
		}
	}

	sheetOpts := []sheets.Option{sheets.WithRateLimit(rate.Limit(cfg.SheetsRateLimit), cfg.SheetsBurst)}
	if cfg.SheetsEndpoint != "" {
		sheetOpts = append(sheetOpts, sheets.WithEndpoint(cfg.SheetsEndpoint))
	}
	client, err := sheets.NewClient(ctx, cfg.SpreadsheetID, sess, sheetOpts...)
	if err != nil {
		return fmt.Errorf("sheets: %w", err)
	}

	repo := jobs.New(client, sess,
		jobs.WithLogger(logger.With("component", "jobs")),
		jobs.WithPatchTTL(cfg.PatchTTL),
		jobs.WithWriteTimeout(cfg.WriteTimeout),
	)

	// ── Actions ──────────────────────────────────────────────────────────────
	hooks := trigger.NewWebhook(cfg.Webhooks,
		trigger.WithTimeout(cfg.TriggerTimeout),
		trigger.WithRateLimit(cfg.TriggerRateLimit),
		trigger.WithRetry(cfg.TriggerAttempts, cfg.TriggerBackoff),
		trigger.WithLogger(logger.With("component", "trigger")),
	)
	for _, a := range config.WebhookActions {
		if !hooks.Configured(a) {
			logger.Debug("webhook not configured", "action", a)
		}
	}

	disp := kanban.NewDispatcher(repo, hooks,
		kanban.WithWorkers(cfg.TriggerWorkers),
		kanban.WithQueueSize(cfg.TriggerQueue),
		kanban.WithJournal(actions),
		kanban.WithNotices(kanban.NewNotices(cfg.NoticeTTL, time.Now)),
		kanban.WithLogger(logger.With("component", "dispatcher")),
	)

	// ── Change fan-out ───────────────────────────────────────────────────────
	health := grpcserver.NewServer(sess, repo)
	unsubscribers := []func(){
		repo.Subscribe(func(jobs.Change) { health.Refresh() }),
	}
	var forwarder *events.Forwarder
	if publisher != nil {
		forwarder = events.NewForwarder(publisher, 0, logger.With("component", "events"))
		unsubscribers = append(unsubscribers, repo.Subscribe(forwarder.Notify))
	}

	poller := scheduler.New(repo, cfg.PollFast, cfg.PollSlow, logger.With("component", "scheduler"))
	unsubscribers = append(unsubscribers, repo.Subscribe(poller.OnChange))
	if err := poller.Start(ctx); err != nil {
		return fmt.Errorf("poller: %w", err)
	}

	// ── Servers ──────────────────────────────────────────────────────────────
	h := kanban.NewHandler(repo, disp, settings.New(repo, time.Now), sess, actions, logger.With("component", "http"))
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      h.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 45 * time.Second,
	}
	gs := grpc.NewServer()
	health.Register(gs)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("[dashboard-service] HTTP listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		log.Printf("[dashboard-service] gRPC health listening on :%s", cfg.GRPCPort)
		return gs.Serve(lis)
	})

	// ── Graceful shutdown ────────────────────────────────────────────────────
	g.Go(func() error {
		<-gctx.Done()
		log.Println("[dashboard-service] Shutting down…")
		poller.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[dashboard-service] HTTP shutdown error: %v", err)
		}
		gs.GracefulStop()
		return nil
	})

	runErr := g.Wait()

	// Queued webhooks and in-flight sheet writes finish before exit.
	disp.Close()
	repo.Drain()
	for _, unsubscribe := range unsubscribers {
		unsubscribe()
	}
	if forwarder != nil {
		forwarder.Close()
	}
	if err := store.Persist(context.Background()); err != nil {
		log.Printf("[dashboard-service] Cache persist error: %v", err)
	}
	log.Println("[dashboard-service] Stopped.")
	return runErr
}
