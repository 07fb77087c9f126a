package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fieldroute/internal/api"
	"fieldroute/internal/config"
	"fieldroute/internal/metrics"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	srv, err := api.NewServer(cfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	mux := http.NewServeMux()

	// Intake
	mux.HandleFunc("/v1/customers", srv.CustomersHandler)
	mux.HandleFunc("/v1/technicians", srv.TechniciansHandler)

	// Optimization
	mux.HandleFunc("/v1/optimize", srv.OptimizeHandler)
	mux.HandleFunc("/v1/optimize/", srv.OptimizeEventsHandler) // /{batchId}/events SSE

	// Plans (pending results) and routes
	mux.HandleFunc("/v1/plans/", srv.PlansHandler) // /{batchId}, /{batchId}/accept
	mux.HandleFunc("/v1/routes", srv.RoutesIndexHandler)
	mux.HandleFunc("/v1/routes/", srv.RouteByIDHandler) // includes /resequence, /move-stop

	// Webhook subscriptions
	mux.HandleFunc("/v1/subscriptions", srv.SubscriptionsHandler)
	mux.HandleFunc("/v1/subscriptions/", srv.SubscriptionByIDHandler)

	// Admin
	mux.HandleFunc("/v1/admin/plan-metrics", srv.PlanMetricsHandler)

	// Streaming
	mux.HandleFunc("/v1/ws", srv.BatchWSHandler)

	// Health and metrics
	mux.HandleFunc("/healthz", srv.HealthHandler)
	mux.HandleFunc("/readyz", srv.ReadyHandler)
	metrics.RegisterDefault()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Instrument(logMiddleware(mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	worker := srv.NewWebhookWorker()
	worker.Start()

	log.Printf("API listening on %s store=%T metric=%s", cfg.Addr, srv.Store, cfg.Metric.Provider)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, time.Since(start))
	})
}
