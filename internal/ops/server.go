// Package ops serves the operational HTTP endpoints: health and metrics.
package ops

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gradewatch/gradewatch/internal/health"
	"github.com/gradewatch/gradewatch/pkg/config"
	"github.com/gradewatch/gradewatch/pkg/graceful"
	"github.com/gradewatch/gradewatch/pkg/logger"
)

// NewServer builds the ops HTTP server with /healthz and /metrics.
func NewServer(cfg config.ServerConfig, checker *health.Checker, log *slog.Logger) *graceful.Server {
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: logger.Middleware(NewMux(checker, log)),
	}

	return graceful.NewServer(log, srv, cfg.ShutdownTimeout)
}

// NewMux builds the ops route table.
func NewMux(checker *health.Checker, log *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", healthzHandler(checker, log))
	return mux
}

type healthzResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

func healthzHandler(checker *health.Checker, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, healthy := checker.Check(r.Context())

		response := healthzResponse{Status: "ok", Components: results}
		code := http.StatusOK
		if !healthy {
			response.Status = "degraded"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(response); err != nil {
			log.Error("failed to write health response",
				slog.String("correlation_id", logger.CorrelationIDFromContext(r.Context())),
				slog.Any("error", err))
		}
	}
}
