package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matthewjhunter/coviddash"
	"github.com/matthewjhunter/coviddash/internal/storage"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "./config/config.yaml", "config file path (.yaml or .toml)")
	addr := flag.String("addr", ":8080", "listen address")
	noPoll := flag.Bool("no-poll", false, "serve cached data only; never sync in the background")
	flag.Parse()

	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := storage.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Fatal("coviddash-web: load config")
	}

	engine, err := coviddash.NewEngine(coviddash.EngineConfig{
		DBPath:      cfg.Database.Path,
		APIBaseURL:  cfg.API.BaseURL,
		HTTPTimeout: cfg.API.Timeout.Std(),
		UserAgent:   cfg.API.UserAgent,
		Workers:     cfg.Sync.Workers,
		Debounce:    cfg.Sync.Debounce.Std(),
		Bootstrap:   cfg.Bootstrap.Enabled,
		Logger:      log,
	})
	if err != nil {
		log.WithError(err).Fatal("coviddash-web: open engine")
	}
	defer engine.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := engine.Start(ctx); err != nil {
		if !errors.Is(err, coviddash.ErrNoData) {
			log.WithError(err).Fatal("coviddash-web: start")
		}
		log.Warn("coviddash-web: cache is empty until the first sync")
	}

	var p *poller
	if !*noPoll {
		p = newPoller(engine, cfg.Sync.Interval.Std(), log)
		p.start(ctx)
	}

	srv := &http.Server{
		Addr:         *addr,
		Handler:      logging(log, recovery(log, newRouter(engine, p))),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.WithField("addr", *addr).Info("coviddash-web: listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("coviddash-web: serve")
		}
	}()

	<-done
	log.Info("coviddash-web: shutting down")
	if p != nil {
		p.stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("coviddash-web: shutdown")
		return
	}
	log.Info("coviddash-web: stopped")
}
