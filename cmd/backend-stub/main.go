package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xela07ax/proofkit-gate/internal/backend"
	"github.com/xela07ax/proofkit-gate/internal/infra"
)

// backend-stub — локальный backend gate status collaborator для разработки
// и отладки CI-пайплайна: отдаёт {gateStatus, promote} per-account и даёт
// переключать состояние PUT'ом.
func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	secret := os.Getenv("BACKEND_STUB_SECRET")
	if secret == "" {
		log.Fatal("BACKEND_STUB_SECRET environment variable is required")
	}

	// По умолчанию gate закрыт: stub ведёт себя fail-closed, как и весь контур
	stub := backend.NewStub([]byte(secret), false, logger)

	// Экспортируем метрики для Prometheus
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		log.Fatal(http.ListenAndServe(":9090", mux))
	}()

	srv := &http.Server{
		Addr:         ":8091",
		Handler:      stub.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("backend gate stub started on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	<-stop
	log.Print("backend gate stub stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server Shutdown Failed: %+v", err)
	}
	log.Print("backend gate stub exited properly")
}
