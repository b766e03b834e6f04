package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"offerctr/adapters/postgres"
	"offerctr/adapters/report"
	"offerctr/internal"
	"offerctr/internal/config"
	"offerctr/internal/metrics"
)

// main serves the read-only report API over the run history in the
// warehouse. External reporting and SHAP tooling consume this surface; it
// cannot write anything.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required for the report API")
	}

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	var opts []report.Option
	if cfg.Server.MetricsEnabled {
		metrics.Init()
		opts = append(opts, report.WithMetrics())
	}

	logger := internal.NewDefaultLogger().Component("report")
	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: report.NewServer(postgres.NewReader(db), opts...).Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown: %v", err)
	}
	logger.Info("stopped")
}
