package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"

	"github.com/omerorhan/i18ncache"
	"github.com/omerorhan/i18ncache/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Unable to load configuration")
	}
	logger, err := newLogger(cfg)
	if err != nil {
		log.WithError(err).Fatal("Unable to configure logging")
	}

	srv, client, err := newServer(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Unable to start translation cache")
	}

	if len(cfg.Cache.Preload) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := client.Preload(ctx, cfg.Cache.Preload...); err != nil {
			logger.Warnf("Preload incomplete: %v", err)
		}
		cancel()
	}

	go func() {
		logger.Infof("Server listening on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("HTTP shutdown")
	}
	if err := client.Stop(); err != nil {
		logger.WithError(err).Warn("Cache shutdown")
	}
}

// newServer wires the cache client and the HTTP handler chain.
func newServer(cfg config.Config, logger *log.Logger) (*http.Server, *i18ncache.Client, error) {
	store, err := newStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	collector := i18ncache.NewStatsCollector()
	client, err := i18ncache.NewClient(clientOptions(cfg, store, collector, logger)...)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, nil, err
	}

	s := &server{
		client:     client,
		stats:      collector,
		statsToken: cfg.Server.StatsToken,
		logger:     logger,
	}
	c := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})
	handler := c.Handler(loggingMiddleware(logger, s.routes()))

	return &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}, client, nil
}
