package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"fieldroute/internal/auth"
	"fieldroute/internal/config"
	"fieldroute/internal/geo"
	"fieldroute/internal/metrics"
	"fieldroute/internal/model"
	"fieldroute/internal/opt"
	"fieldroute/internal/store"
	"fieldroute/internal/webhooks"
)

type Server struct {
	Store  store.Store
	Engine *opt.Engine
	Pub    *webhooks.Publisher
	Auth   *auth.Verifier
	Broker EventBroker

	mu      sync.Mutex
	pending map[string]*pendingBatch
}

// pendingBatch is an optimization result awaiting accept or discard. It
// keeps the snapshots needed to revalidate manual edits without re-reading
// the store.
type pendingBatch struct {
	Tenant  string
	Result  model.Result
	Techs   map[string]opt.Tech
	Windows map[string]*opt.Window
	Created time.Time
}

// NewServer wires store, metric provider, broker, and engine from config.
// With no DATABASE_URL the in-memory store is used.
func NewServer(cfg config.Config) (*Server, error) {
	var s store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(context.Background()); err != nil {
			return nil, err
		}
		s = pg
	}

	var metric geo.Metric
	switch cfg.Metric.Provider {
	case "osrm":
		metric = geo.NewOSRMMetric(cfg.Metric.OSRMURL, cfg.Metric.ReqPerSec)
	default:
		metric = geo.Haversine{SpeedMph: cfg.Metric.SpeedMph}
	}

	var broker EventBroker
	if cfg.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	srv := &Server{
		Store:   s,
		Pub:     webhooks.NewPublisher(s),
		Auth:    auth.NewVerifierFromEnv(),
		Broker:  broker,
		pending: map[string]*pendingBatch{},
	}
	srv.Engine = &opt.Engine{
		Metric:      metric,
		TimeBudget:  time.Duration(cfg.Solver.TimeBudgetSec) * time.Second,
		MaxStopsCap: cfg.Solver.MaxStopsCap,
		SpeedTier:   cfg.Solver.SpeedTier,
		OnProgress: func(batchID, event string, data map[string]any) {
			broker.Publish(batchID, SSEEvent{Type: event, Data: data})
		},
	}
	return srv, nil
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}

func (s *Server) putPending(b *pendingBatch) {
	s.mu.Lock()
	s.pending[b.Result.BatchID] = b
	s.mu.Unlock()
}

func (s *Server) getPending(tenant, batchID string) *pendingBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.pending[batchID]
	if b == nil || b.Tenant != tenant {
		return nil
	}
	return b
}

func (s *Server) dropPending(tenant, batchID string) *pendingBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.pending[batchID]
	if b == nil || b.Tenant != tenant {
		return nil
	}
	delete(s.pending, batchID)
	return b
}

// findPendingRoute locates an editable route by id across pending batches.
func (s *Server) findPendingRoute(tenant, routeID string) (*pendingBatch, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.pending {
		if b.Tenant != tenant {
			continue
		}
		for i := range b.Result.Routes {
			if b.Result.Routes[i].ID == routeID {
				return b, i
			}
		}
	}
	return nil, -1
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Instrument records request counts and latencies on the metrics registry.
func Instrument(next http.Handler) http.Handler {
	metrics.RegisterDefault()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		labels := prometheus.Labels{
			"method": r.Method,
			"path":   routePattern(r.URL.Path),
			"status": strconv.Itoa(sw.status),
		}
		metrics.HTTPRequests.With(labels).Inc()
		metrics.HTTPDuration.With(labels).Observe(time.Since(start).Seconds())
	})
}

// routePattern collapses path parameters to keep label cardinality bounded.
func routePattern(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if len(p) >= 32 {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}
