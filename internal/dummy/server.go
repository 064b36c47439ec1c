// Package dummy is a local target with endpoints of known latency and
// failure behaviour, for trying sweeps without a real service.
package dummy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

type ServerConfig struct {
	Port int
}

// Routes lists the endpoints NewHandler serves.
var Routes = []string{"/fast", "/medium", "/slow", "/spike", "/error", "/json", "/status/{code}"}

type person struct {
	Name string `json:"name"`
}

type handler struct {
	mu  sync.Mutex
	rnd *rand.Rand
	// sleep waits for d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration)
}

type Option func(*handler)

// WithSeed makes latencies and failures reproducible.
func WithSeed(seed int64) Option {
	return func(h *handler) { h.rnd = rand.New(rand.NewSource(seed)) }
}

// WithoutDelay serves every endpoint immediately.
func WithoutDelay() Option {
	return func(h *handler) { h.sleep = func(context.Context, time.Duration) {} }
}

func NewHandler(opts ...Option) http.Handler {
	h := &handler{
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep: sleepCtx,
	}
	for _, opt := range opts {
		opt(h)
	}

	mux := http.NewServeMux()

	// 10-50ms
	mux.HandleFunc("GET /fast", func(w http.ResponseWriter, r *http.Request) {
		h.sleep(r.Context(), h.between(10, 50))
		w.Write([]byte("Fast response"))
	})

	// 100-300ms
	mux.HandleFunc("GET /medium", func(w http.ResponseWriter, r *http.Request) {
		h.sleep(r.Context(), h.between(100, 300))
		w.Write([]byte("Medium response"))
	})

	// 1-2s, long enough to hit client timeouts and queueing.
	mux.HandleFunc("GET /slow", func(w http.ResponseWriter, r *http.Request) {
		h.sleep(r.Context(), h.between(1000, 2000))
		w.Write([]byte("Slow response"))
	})

	// Usually 20ms, 5% of requests take 2s.
	mux.HandleFunc("GET /spike", func(w http.ResponseWriter, r *http.Request) {
		d := 20 * time.Millisecond
		if h.float() < 0.05 {
			d = 2 * time.Second
		}
		h.sleep(r.Context(), d)
		w.Write([]byte("Spikey response"))
	})

	// 20% 500, 20% 429.
	mux.HandleFunc("GET /error", func(w http.ResponseWriter, r *http.Request) {
		switch rnd := h.float(); {
		case rnd < 0.2:
			http.Error(w, "500 Internal Server Error", http.StatusInternalServerError)
		case rnd < 0.4:
			http.Error(w, "429 Too Many Requests", http.StatusTooManyRequests)
		default:
			w.Write([]byte("OK"))
		}
	})

	mux.HandleFunc("GET /json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(person{Name: "Alice"})
	})

	mux.HandleFunc("GET /status/{code}", func(w http.ResponseWriter, r *http.Request) {
		code, err := strconv.Atoi(r.PathValue("code"))
		if err != nil || code < 200 || code > 599 {
			http.Error(w, "invalid status code", http.StatusBadRequest)
			return
		}
		w.WriteHeader(code)
		if code != http.StatusNoContent && code != http.StatusNotModified {
			fmt.Fprintf(w, "%d %s", code, http.StatusText(code))
		}
	})

	return mux
}

func (h *handler) between(minMs, maxMs int) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return time.Duration(h.rnd.Intn(maxMs-minMs)+minMs) * time.Millisecond
}

func (h *handler) float() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rnd.Float64()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Run serves the dummy endpoints until ctx is done, then shuts down.
func Run(ctx context.Context, cfg ServerConfig, logger *zap.Logger) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dummy server listening",
			zap.String("addr", "http://localhost"+server.Addr),
			zap.Strings("endpoints", Routes),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("dummy server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("dummy server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
