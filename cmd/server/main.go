package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/solari/invest-engine/internal/accrual"
	"github.com/solari/invest-engine/internal/admin"
	"github.com/solari/invest-engine/internal/config"
	"github.com/solari/invest-engine/internal/exposure"
	"github.com/solari/invest-engine/internal/feed"
	"github.com/solari/invest-engine/internal/investment"
	"github.com/solari/invest-engine/internal/lock"
	"github.com/solari/invest-engine/internal/metrics"
	"github.com/solari/invest-engine/internal/plan"
	"github.com/solari/invest-engine/internal/scheduler"
	"github.com/solari/invest-engine/internal/store"
	"github.com/solari/invest-engine/internal/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.OTELServiceName, cfg.OTELEndpoint)
	if err != nil {
		slog.Error("tracing setup failed", "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	var st store.Store
	var locker lock.Locker = lock.NewLocalLocker()
	var cleanup []func()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		locker = lock.NewRedisLocker(rdb)
		slog.Info("Redis locks enabled")
	}

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("schema migration failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if rdb != nil {
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL)
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	if cfg.SeedPlans {
		seedPlans(ctx, st)
	}

	// --- Accrual engine ---
	engine, err := accrual.NewEngine(cfg.DayCount)
	if err != nil {
		slog.Error("invalid day-count convention", "err", err)
		os.Exit(1)
	}
	slog.Info("accrual engine ready", "day_count", cfg.DayCount.Name, "year_days", cfg.DayCount.YearDays)

	// --- Exposure limits ---
	limiter := exposure.NewLimiter(cfg.MaxPerPlan, cfg.MaxTotalExposure)

	// --- WebSocket hub ---
	hub := feed.NewHub(cfg.WSAllowedOrigins...)
	go hub.Run(ctx)

	// --- Services ---
	investSvc := investment.NewService(st, engine, limiter, locker, hub, cfg.WebhookSecret)
	adminSvc := admin.NewService(st, engine, cfg.AdminToken)
	runner := scheduler.NewRunner(st, engine, locker, hub, cfg.AccrualWorkers)

	go func() {
		if cfg.AccrualOnStart {
			if _, err := runner.RunOnce(ctx, time.Now()); err != nil {
				slog.Warn("startup accrual run failed", "err", err)
			}
		}
		runner.Run(ctx, cfg.AccrualInterval)
	}()

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+investment.SignatureHeader)
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"invest-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for live interest updates. Registered
		// outside the timeout group so long-lived connections survive.
		r.Get("/ws", hub.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			investSvc.Routes(r)
			r.Route("/admin", adminSvc.Routes)
		})

		// The accrual batch may outlast the request timeout.
		r.Get("/cron/accrue", runner.CronHandler(cfg.CronSecret))
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("invest-engine listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down invest-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("tracing shutdown error", "err", err)
	}
	fmt.Println("invest-engine stopped")
}

// seedPlans inserts the default plan catalogue. Plans that already exist
// are left alone.
func seedPlans(ctx context.Context, st store.Store) {
	for _, p := range plan.DefaultCatalogue() {
		err := st.CreatePlan(ctx, &p)
		switch {
		case err == nil:
			slog.Info("plan seeded", "plan", p.ID, "rate", p.AnnualRatePercent.String(), "period", p.CompoundingPeriod)
		case errors.Is(err, store.ErrAlreadyExists):
		default:
			slog.Error("seed plan failed", "plan", p.ID, "err", err)
		}
	}
}
