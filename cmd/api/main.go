package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"seguridad.dev/internal/audit"
	"seguridad.dev/internal/config"
	"seguridad.dev/internal/credential"
	"seguridad.dev/internal/grant"
	"seguridad.dev/internal/httpapi"
	"seguridad.dev/internal/membership"
	"seguridad.dev/internal/obs"
	"seguridad.dev/internal/session"
	"seguridad.dev/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.Logger().Fatal("load config", zap.Error(err))
	}
	if cfg.DevLog {
		if dev, err := zap.NewDevelopment(); err == nil {
			obs.SetLogger(dev)
		}
	}
	log := obs.Logger()
	defer func() { _ = log.Sync() }()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	store, err := pg.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	defer store.Close()

	// Services are constructed explicitly; there is no container. Failures
	// here are programming errors (nil deps), so they abort startup.
	users, err := credential.NewService(store)
	if err != nil {
		log.Fatal("credential service", zap.Error(err))
	}
	grants, err := grant.NewService(store)
	if err != nil {
		log.Fatal("grant service", zap.Error(err))
	}
	memberships, err := membership.NewEngine(store, grants)
	if err != nil {
		log.Fatal("membership engine", zap.Error(err))
	}
	sessions, err := session.NewService(store, cfg.JWTSecret, cfg.JWTExpires)
	if err != nil {
		log.Fatal("session service", zap.Error(err))
	}
	audits, err := audit.NewService(store)
	if err != nil {
		log.Fatal("audit service", zap.Error(err))
	}

	api := httpapi.New(users, grants, memberships, sessions, audits,
		httpapi.ReadyProbe{DB: store.DB()},
		httpapi.Config{
			CORSOrigin: cfg.CORSOrigin,
			RateRPS:    cfg.RateRPS,
			RateBurst:  cfg.RateBurst,
			Version:    version,
		})

	// Periodic expiry sweep for the token table.
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.SweepSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		count, err := sessions.SweepExpired(ctx)
		if err != nil {
			log.Error("token sweep failed", zap.Error(err))
			return
		}
		if count > 0 {
			log.Info("token sweep", zap.Int64("deleted", count))
		}
	}); err != nil {
		log.Fatal("schedule token sweep", zap.String("spec", cfg.SweepSpec), zap.Error(err))
	}
	sweeper.Start()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info("starting seguridad-api",
		zap.String("version", version),
		zap.String("addr", srv.Addr))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	sweeper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	log.Info("stopped")
}
