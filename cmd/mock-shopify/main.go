package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/time/rate"

	"github.com/angelmondragon/orderbridge-backend/api/responses"
	"github.com/angelmondragon/orderbridge-backend/pkg/config"
	"github.com/angelmondragon/orderbridge-backend/pkg/env"
	"github.com/angelmondragon/orderbridge-backend/pkg/logger"
)

// mockUpstream simulates the merchant admin API: a leaky bucket matching the
// documented rate, plus an optional mode that throttles the first call per
// order to exercise the dispatcher's Retry-After path.
type mockUpstream struct {
	logg          *logger.Logger
	limiter       *rate.Limiter
	failFirstCall bool

	mtx  sync.Mutex
	seen map[string]bool
}

func (m *mockUpstream) handleOrderUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := chi.URLParam(r, "id")
	logCtx := m.logg.WithOrderID(ctx, orderID)

	if m.failFirstCall && m.firstCall(orderID) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		m.logg.Info(logCtx, "throttling first call for order")
		return
	}

	if !m.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
		m.logg.Info(logCtx, "rate limit exceeded")
		return
	}

	m.logg.Info(logCtx, "order update received")
	responses.WriteSuccess(w, map[string]string{"status": "ok", "orderId": orderID})
}

func (m *mockUpstream) firstCall(orderID string) bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.seen[orderID] {
		return false
	}
	m.seen[orderID] = true
	return true
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "mock-shopify"})

	_ = godotenv.Load()

	// The mock has no database; it only reads its own knobs.
	var cfg config.MockConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "mock-shopify",
		Level:       logger.ParseLevel(env.Get("LOG_LEVEL", "info")),
	})

	upstream := &mockUpstream{
		logg:          logg,
		limiter:       rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		failFirstCall: cfg.FailFirstCall,
		seen:          make(map[string]bool),
	}

	router := chi.NewRouter()
	router.Post("/admin/orders/{id}", upstream.handleOrderUpdate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := ":" + cfg.Port
	ctx = logg.WithFields(ctx, map[string]any{
		"addr":            addr,
		"fail_first_call": cfg.FailFirstCall,
	})
	logg.Info(ctx, "starting mock upstream")

	server := &http.Server{Addr: addr, Handler: router}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "mock upstream stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "mock upstream shutting down gracefully")
	if ctx.Err() != nil {
		os.Exit(130)
	}
}
