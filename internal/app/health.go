package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"
)

// Pinger is anything whose reachability decides worker health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler answers /healthz with the queue store's reachability.
func HealthHandler(p Pinger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			log.Printf("healthz: queue ping failed: %v", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy","reason":"queue unreachable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	return mux
}

// ServeHealth runs the health server on addr until ctx is done.
func ServeHealth(ctx context.Context, addr string, p Pinger) {
	s := &http.Server{Addr: addr, Handler: HealthHandler(p), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(shctx)
	}()
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("health server: %v", err)
	}
}
