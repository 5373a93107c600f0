package obs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Check is one dependency probed by /healthz. A failing Optional check is
// reported without making the process unhealthy.
type Check struct {
	Name     string
	Probe    func(context.Context) error
	Optional bool
}

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// BootstrapMetricsServer serves /metrics and /healthz on a side address.
func BootstrapMetricsServer(addr string, l *zap.Logger, checks ...Check) *http.Server {
	ms := &http.Server{
		Addr:         addr,
		Handler:      metricsMux(checks),
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		l.Info("metrics listening", zap.String("addr", addr), zap.Int("checks", len(checks)))
		if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("metrics server error", zap.Error(err))
		}
	}()
	return ms
}

func metricsMux(checks []Check) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()

		rep := healthReport{Status: "ok", Checks: make(map[string]string, len(checks))}
		code := http.StatusOK
		for _, c := range checks {
			if err := c.Probe(ctx); err != nil {
				rep.Checks[c.Name] = err.Error()
				if !c.Optional {
					rep.Status, code = "unhealthy", http.StatusServiceUnavailable
				} else if code == http.StatusOK {
					rep.Status = "degraded"
				}
				continue
			}
			rep.Checks[c.Name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(rep)
	})
	return mux
}

// Shutdown stops srv within timeout, logging instead of failing.
func Shutdown(srv *http.Server, timeout time.Duration, l *zap.Logger) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		l.Warn("http shutdown", zap.String("addr", srv.Addr), zap.Error(err))
	}
}
