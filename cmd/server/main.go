package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"crecheflow/internal/audit"
	familystore "crecheflow/internal/family/store"
	"crecheflow/internal/onboarding/service"
	sessionstore "crecheflow/internal/onboarding/store/session"
	"crecheflow/internal/platform/config"
	"crecheflow/internal/platform/httpserver"
	"crecheflow/internal/platform/logger"
	"crecheflow/internal/platform/metrics"
	platformredis "crecheflow/internal/platform/redis"
	tenantstore "crecheflow/internal/tenant/store"
	"crecheflow/internal/transport/whatsapp"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	_ = godotenv.Load()

	cfg := config.FromEnv()
	log := logger.New(logger.ParseLevel(cfg.LogLevel))

	// Postgres backs tenants and family records when configured; without it
	// everything runs in memory, which is enough for local development.
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			log.Error("open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(context.Background()); err != nil {
			log.Error("database unreachable", "error", err)
			os.Exit(1)
		}
	}

	var tenants service.TenantDirectory
	var registrar service.Registrar
	if db != nil {
		tenants = tenantstore.NewPostgres(db)
		registrar = familystore.NewPostgres(db)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		tenants = tenantstore.NewInMemory()
		registrar = familystore.NewInMemory()
	}

	// Sessions prefer Redis for the conversational hot path, then Postgres,
	// then memory.
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	var sessions service.SessionStore
	switch {
	case redisClient != nil:
		defer redisClient.Close()
		sessions = sessionstore.NewRedis(redisClient)
	case db != nil:
		sessions = sessionstore.NewPostgres(db)
	default:
		sessions = sessionstore.NewInMemory()
	}

	var publisher audit.Publisher = audit.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := audit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.AuditTopic, log)
		if err != nil {
			log.Error("connect kafka", "error", err)
			os.Exit(1)
		}
		defer kafka.Close()
		publisher = kafka
	}

	tenantDirectory, ok := tenants.(whatsapp.SenderDirectory)
	if !ok {
		log.Error("tenant store does not resolve sender identities")
		os.Exit(1)
	}
	sender := whatsapp.NewSender(tenantDirectory, cfg.WhatsApp.AccessToken, log,
		whatsapp.WithBaseURL(cfg.WhatsApp.BaseURL))

	engine := service.New(sessions, tenants, registrar, sender,
		service.WithLogger(log),
		service.WithMetrics(metrics.New()),
		service.WithAuditPublisher(publisher),
	)

	webhookResolver, ok := tenants.(whatsapp.TenantResolver)
	if !ok {
		log.Error("tenant store does not resolve webhook identities")
		os.Exit(1)
	}
	hook := whatsapp.NewWebhook(engine, webhookResolver, cfg.WhatsApp.VerifyToken, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	hook.Register(r)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(req.Context()); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if db != nil {
			if err := db.PingContext(req.Context()); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := httpserver.New(cfg.Addr, r)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting crecheflow", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
