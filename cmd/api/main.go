package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkbook.org/internal/config"
	"checkbook.org/internal/httpapi"
	"checkbook.org/internal/ids"
	"checkbook.org/internal/ledger"
	"checkbook.org/internal/obs"
	"checkbook.org/internal/store/pg"
	"checkbook.org/internal/stream"
)

var version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Version == "dev" {
		cfg.Version = version
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(cfg.Version, cfg.Commit)

	// Postgres when a DSN is configured, in-memory otherwise (dev/demo).
	var (
		store   ledger.Store
		probe   httpapi.ReadyProbe
		pgStore *pg.Store
	)
	if cfg.PostgresDSN != "" {
		pgStore, err = pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		log.Println("no CHECKBOOK_PG_DSN set, using in-memory store")
		store = ledger.NewMemoryStore()
	}

	events := stream.New()
	engine := ledger.NewEngine(store, ids.NewULID(), ledger.WithEvents(events))

	api := httpapi.New(probe, cfg.Version, engine, events)
	api.SetLimits(cfg.RateLimitBurst, int(cfg.RateLimitRPS), cfg.MaxBodyBytes)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting checkbook-api %s on %s", cfg.Version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if pgStore != nil {
		_ = pgStore.Close()
	}
	log.Println("Stopped")
}
