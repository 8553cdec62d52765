package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/example/fieldserve/internal/location"
	"github.com/example/fieldserve/pkg/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.SetupLogger("location-service", os.Getenv("DEBUG") == "true")
	defer logger.Sync() //nolint:errcheck

	shutdown, err := observability.SetupTracer(ctx, "location-service")
	if err != nil {
		logger.Warn("tracer setup failed", zap.Error(err))
	} else {
		defer shutdown(context.Background())
	}

	bookingURL := getenv("BOOKING_SERVICE_URL", "http://localhost:8080")
	presence := location.NewPresence()
	reporter := &httpReporter{
		base:   bookingURL,
		client: &http.Client{Timeout: 5 * time.Second},
		token:  os.Getenv("WORKER_TOKEN"),
	}

	go runREST(logger, presence)
	go runGRPC(logger, reporter, presence)

	<-ctx.Done()
	logger.Info("shutdown signal received")
}

func runREST(logger *zap.Logger, presence *location.Presence) {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID, chimiddleware.Recoverer)
	r.Get("/v1/fleet", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(presence.All())
	})
	r.Get("/v1/fleet/{id}", func(w http.ResponseWriter, req *http.Request) {
		id, err := uuid.Parse(chi.URLParam(req, "id"))
		if err != nil {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}
		pr, ok := presence.Get(id)
		if !ok {
			http.Error(w, "worker not seen", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pr)
	})
	r.Mount("/observability", observability.MetricsRouter(nil))

	srv := &http.Server{Addr: getenv("HTTP_ADDR", ":8081"), Handler: r, ReadHeaderTimeout: 5 * time.Second}
	logger.Info("fleet REST listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("fleet rest server", zap.Error(err))
	}
}

func runGRPC(logger *zap.Logger, reporter location.Reporter, presence *location.Presence) {
	lis, err := net.Listen("tcp", getenv("GRPC_ADDR", ":9090"))
	if err != nil {
		logger.Fatal("listen grpc", zap.Error(err))
	}

	srv := grpc.NewServer()
	location.RegisterLocationServer(srv, location.NewServer(reporter, presence, logger.Named("ingest")))
	logger.Info("location grpc listening", zap.String("addr", lis.Addr().String()))
	if err := srv.Serve(lis); err != nil {
		logger.Fatal("grpc serve", zap.Error(err))
	}
}

// httpReporter forwards position reports to the booking service's session
// endpoint so this process stays stateless.
type httpReporter struct {
	base   string
	client *http.Client
	token  string
}

func (r *httpReporter) ReportLocation(ctx context.Context, id uuid.UUID, lat, lng float64, ts time.Time) error {
	payload, err := json.Marshal(map[string]any{
		"latitude":  lat,
		"longitude": lng,
		"timestamp": ts,
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/v1/sessions/%s/location", r.base, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("booking service returned %d", resp.StatusCode)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
