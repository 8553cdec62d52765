package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/example/fieldserve/internal/auth"
	"github.com/example/fieldserve/internal/booking/handler"
	"github.com/example/fieldserve/internal/booking/repository"
	bookingservice "github.com/example/fieldserve/internal/booking/service"
	"github.com/example/fieldserve/internal/dispatch"
	"github.com/example/fieldserve/internal/dispatch/directory"
	"github.com/example/fieldserve/internal/dispatch/domain"
	"github.com/example/fieldserve/internal/notify"
	"github.com/example/fieldserve/internal/tracking"
	"github.com/example/fieldserve/pkg/observability"
)

type appConfig struct {
	HTTPAddr       string
	PostgresDSN    string
	RedisAddr      string
	NATSURL        string
	JWTSecret      string
	Debug          bool
	DefaultLat     float64
	DefaultLng     float64
	SearchRadiusKM float64
	CandidateLimit int
	ClaimTTL       time.Duration
	PushInterval   time.Duration
	RemoveGrace    time.Duration
	StaleAfter     time.Duration
	OutboxPoll     time.Duration
	OutboxBatch    int
	OutboxRetry    int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := loadConfig()

	logger := observability.SetupLogger("booking-service", cfg.Debug)
	defer logger.Sync() //nolint:errcheck

	shutdown, err := observability.SetupTracer(ctx, "booking-service")
	if err != nil {
		logger.Warn("tracer setup failed", zap.Error(err))
	} else {
		defer shutdown(context.Background())
	}

	var db *sql.DB
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("postgres connect", zap.Error(err))
		}
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			logger.Fatal("postgres ping", zap.Error(err))
		}
		defer db.Close()
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		if conn, err := nats.Connect(cfg.NATSURL, nats.Name("bookingservice")); err == nil {
			natsConn = conn
			defer conn.Drain()
		} else {
			logger.Warn("nats connection failed", zap.Error(err))
		}
	}

	defaultLoc := domain.GeoPoint{Lat: cfg.DefaultLat, Lng: cfg.DefaultLng}
	memDir := directory.NewMemoryDirectory()

	var claims domain.ClaimStore = memDir
	var redisDir *directory.RedisDirectory
	if redisClient != nil {
		redisDir = directory.NewRedisDirectory(redisClient, "")
		claims = directory.NewRedisClaimStore(redisClient, "", cfg.ClaimTTL)
	}

	dispatcher := dispatch.New(memDir, claims, logger.Named("dispatch"), dispatch.Config{
		DefaultLocation: defaultLoc,
		SearchRadiusKM:  cfg.SearchRadiusKM,
		CandidateLimit:  cfg.CandidateLimit,
	})
	if redisDir != nil {
		dispatcher = dispatcher.WithNearbySource(redisDir)
	}

	publisher := notify.NewPublisher(natsConn, "booking.events", "booking.notifications", logger.Named("notify"))

	tracker := tracking.NewTracker(claims, publisher, nil, logger.Named("tracker"), tracking.Config{
		PushInterval: cfg.PushInterval,
		RemoveGrace:  cfg.RemoveGrace,
		StaleAfter:   cfg.StaleAfter,
	})
	defer tracker.Close()

	svc := bookingservice.New(repository.NewMemoryRepository(), dispatcher, tracker, memDir, publisher, nil, logger.Named("booking"), defaultLoc)

	var workerAuth func(http.Handler) http.Handler
	if cfg.JWTSecret != "" {
		workerAuth = auth.Middleware(cfg.JWTSecret, auth.RoleWorker)
	} else {
		logger.Warn("JWT_SECRET unset, worker endpoints are unauthenticated")
	}

	bookingHTTP := handler.NewHTTP(svc, tracker, workerAuth, logger.Named("http")).
		WithWorkerRegistry(&workerRegistry{mem: memDir, redis: redisDir, logger: logger.Named("registry")})

	r := chi.NewRouter()
	r.Mount("/", bookingHTTP.Router())
	r.Mount("/observability", observability.MetricsRouter(func() bool {
		if redisClient != nil {
			return redisClient.Ping(context.Background()).Err() == nil
		}
		return true
	}))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if db != nil && natsConn != nil {
		worker := notify.NewOutbox(db, natsConn, logger.Named("outbox"), notify.OutboxConfig{
			PollInterval: cfg.OutboxPoll,
			BatchSize:    cfg.OutboxBatch,
			RetryMax:     cfg.OutboxRetry,
		})
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("outbox worker stopped", zap.Error(err))
			}
		}()
	} else {
		logger.Warn("outbox worker disabled", zap.Bool("db", db != nil), zap.Bool("nats", natsConn != nil))
	}

	go func() {
		logger.Info("booking service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// workerRegistry fans worker writes out to the in-memory directory and, when
// configured, the Redis GEO index.
type workerRegistry struct {
	mem    *directory.MemoryDirectory
	redis  *directory.RedisDirectory
	logger *zap.Logger
}

func (r *workerRegistry) Upsert(w domain.Worker) {
	r.mem.Upsert(w)
	if r.redis != nil {
		if err := r.redis.Upsert(context.Background(), w); err != nil {
			r.logger.Warn("redis upsert", zap.Error(err), zap.String("worker_id", w.ID.String()))
		}
	}
}

func (r *workerRegistry) Get(id uuid.UUID) (domain.Worker, bool) {
	return r.mem.Get(id)
}

func loadConfig() appConfig {
	return appConfig{
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		PostgresDSN:    firstNonEmpty(os.Getenv("POSTGRES_DSN"), os.Getenv("DATABASE_URL")),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		NATSURL:        os.Getenv("NATS_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		Debug:          os.Getenv("DEBUG") == "true",
		DefaultLat:     parseFloatEnv("DEFAULT_LAT", 28.6139),
		DefaultLng:     parseFloatEnv("DEFAULT_LNG", 77.2090),
		SearchRadiusKM: parseFloatEnv("SEARCH_RADIUS_KM", 25),
		CandidateLimit: parseIntEnv("CANDIDATE_LIMIT", 10),
		ClaimTTL:       time.Duration(parseIntEnv("CLAIM_TTL_SEC", 0)) * time.Second,
		PushInterval:   time.Duration(parseIntEnv("PUSH_INTERVAL_MS", 5000)) * time.Millisecond,
		RemoveGrace:    time.Duration(parseIntEnv("REMOVE_GRACE_SEC", 30)) * time.Second,
		StaleAfter:     time.Duration(parseIntEnv("STALE_AFTER_SEC", 0)) * time.Second,
		OutboxPoll:     time.Duration(parseIntEnv("OUTBOX_POLL_MS", 200)) * time.Millisecond,
		OutboxBatch:    parseIntEnv("OUTBOX_BATCH", 100),
		OutboxRetry:    parseIntEnv("OUTBOX_RETRY_MAX", 3),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func parseFloatEnv(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
