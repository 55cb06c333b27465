// Package transport provides HTTP API handlers.
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gateway-fm/walletbot/internal/status"
	"github.com/gateway-fm/walletbot/internal/storage"
	"github.com/gateway-fm/walletbot/pkg/types"
)

const readyTimeout = 5 * time.Second

// BotAPI defines what the handlers need from the bot.
type BotAPI interface {
	GetStatus() types.BotStatus
	ListCycles(ctx context.Context, limit, offset int) (*storage.PaginatedCycles, error)
	GetCycleDetail(ctx context.Context, id string) (*storage.CycleDetail, error)
}

// HealthChecker defines the interface for health checking.
type HealthChecker interface {
	CheckRPC(ctx context.Context) error
}

// BlockNumberer is the slice of the RPC client the readiness probe uses.
type BlockNumberer interface {
	GetBlockNumber(ctx context.Context) (uint64, error)
}

// RPCHealth checks the node by asking for the latest block number.
type RPCHealth struct {
	Client BlockNumberer
}

// CheckRPC implements HealthChecker.
func (h RPCHealth) CheckRPC(ctx context.Context) error {
	_, err := h.Client.GetBlockNumber(ctx)
	return err
}

// Server handles HTTP requests for the wallet bot.
type Server struct {
	api       BotAPI
	health    HealthChecker
	logger    *slog.Logger
	startTime time.Time
	wsServer  *WebSocketServer

	// CORS configuration
	corsAllowedOrigins []string // Parsed list of allowed origins
	corsAllowAll       bool     // True if "*" or empty (allow all origins)
}

// NewServer creates a new HTTP server. ws may be nil to disable the event stream.
func NewServer(api BotAPI, health HealthChecker, ws *WebSocketServer, logger *slog.Logger, corsAllowedOrigins string) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		api:       api,
		health:    health,
		logger:    logger,
		startTime: time.Now(),
		wsServer:  ws,
	}

	origins := strings.TrimSpace(corsAllowedOrigins)
	if origins == "" || origins == "*" {
		s.corsAllowAll = true
	} else {
		s.corsAllowedOrigins = strings.Split(origins, ",")
		for i, o := range s.corsAllowedOrigins {
			s.corsAllowedOrigins[i] = strings.TrimSpace(o)
		}
	}

	return s
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/status", s.corsMiddleware(s.handleStatus))
	mux.HandleFunc("/v1/cycles", s.corsMiddleware(s.handleCycles))
	mux.HandleFunc("/v1/cycles/", s.corsMiddleware(s.handleCycleDetail))
	if s.wsServer != nil {
		mux.HandleFunc("/v1/ws", s.wsServer.Handler())
	}

	// Health endpoints (unversioned - standard Kubernetes probes)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)

	// Prometheus metrics (unversioned - standard path)
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// corsMiddleware adds CORS headers based on the configured allowed origins.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if s.corsAllowAll {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			allowed := false
			for _, o := range s.corsAllowedOrigins {
				if o == origin {
					allowed = true
					break
				}
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// writeJSON writes v as a JSON response body.
func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", slog.String("error", err.Error()))
	}
}

// writeJSONError writes a JSON error response
func (s *Server) writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// handleStatus returns the live bot status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, s.api.GetStatus())
}

// handleCycles returns cycle history with optional pagination.
func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := storage.DefaultPageSize
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= storage.MaxPageSize {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	result, err := s.api.ListCycles(r.Context(), limit, offset)
	if err != nil {
		s.writeJSONError(w, "Failed to list cycles: "+err.Error(), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, result)
}

// handleCycleDetail handles /v1/cycles/{id}.
func (s *Server) handleCycleDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/cycles/"), "/")
	if id == "" {
		s.writeJSONError(w, "Missing cycle ID", http.StatusBadRequest)
		return
	}
	if strings.Contains(id, "/") {
		s.writeJSONError(w, "Not found", http.StatusNotFound)
		return
	}

	result, err := s.api.GetCycleDetail(r.Context(), id)
	if err != nil {
		if status.IsNotFound(err) {
			s.writeJSONError(w, "Cycle not found", http.StatusNotFound)
			return
		}
		s.writeJSONError(w, "Failed to get cycle: "+err.Error(), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, result)
}

// handleHealth handles liveness probes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{
		"status":         "healthy",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": time.Since(s.startTime).Seconds(),
	})
}

// ReadinessCheck represents a single readiness check result.
type ReadinessCheck struct {
	Name      string `json:"name"`
	Status    string `json:"status"` // "ok", "failed"
	LatencyMs int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleReady handles readiness probes.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := []ReadinessCheck{}
	allHealthy := true

	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		start := time.Now()
		err := s.health.CheckRPC(ctx)

		check := ReadinessCheck{
			Name:      "rpc",
			LatencyMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			check.Status = "failed"
			check.Error = err.Error()
			allHealthy = false
		} else {
			check.Status = "ok"
		}
		checks = append(checks, check)
	}

	w.Header().Set("Content-Type", "application/json")
	if allHealthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]any{
		"ready":  allHealthy,
		"checks": checks,
	})
}
