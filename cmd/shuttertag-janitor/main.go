package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/shuttertag/shuttertag/pkg/observability"
	"github.com/shuttertag/shuttertag/pkg/tenants"
)

var (
	dbURL           = flag.String("db-url", getEnv("SHUTTERTAG_DATABASE_URL", "postgres://localhost/shuttertag?sslmode=disable"), "PostgreSQL connection URL")
	cleanupSchedule = flag.String("cleanup-schedule", "*/30 * * * *", "Cron schedule for expired invitation cleanup (default: every 30 minutes)")
	metricsAddr     = flag.String("metrics-addr", getEnv("SHUTTERTAG_JANITOR_METRICS_ADDR", ":9091"), "Address for the metrics endpoint")
	runOnce         = flag.Bool("run-once", false, "Run cleanup once and exit (for testing)")
)

func main() {
	flag.Parse()

	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	store := tenants.NewStore(db)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	cleanup := func() {
		removed, err := store.CleanupExpiredInvitations(context.Background())
		if err != nil {
			log.Printf("Invitation cleanup failed: %v", err)
			return
		}
		if removed > 0 {
			metrics.InvitationsExpiredTotal.Add(float64(removed))
			log.Printf("Removed %d expired invitations", removed)
		}
	}

	if *runOnce {
		cleanup()
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(*cleanupSchedule, cleanup); err != nil {
		log.Fatalf("Failed to schedule invitation cleanup: %v", err)
	}
	c.Start()
	log.Printf("Janitor started, cleanup schedule: %s", *cleanupSchedule)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	<-c.Stop().Done()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
