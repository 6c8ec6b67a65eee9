/*
Command mlsharness runs the reference HTTP interop harness for the
group-security core: an adaptation of cmd/messaging-service's
router-plus-graceful-shutdown main loop, repointed at group creation,
proposal caching, and commit application instead of chat delivery.
*/
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kindlyrobotics/nochat-mls/ciphersuite"
	"github.com/kindlyrobotics/nochat-mls/cmd/mlsharness/internal/config"
	"github.com/kindlyrobotics/nochat-mls/cmd/mlsharness/internal/httpapi"
	"github.com/kindlyrobotics/nochat-mls/cmd/mlsharness/internal/pgstore"
	"github.com/kindlyrobotics/nochat-mls/cmd/mlsharness/internal/refcache"
	"github.com/kindlyrobotics/nochat-mls/identity"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg := config.Load()

	db, err := pgstore.Open(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := pgstore.Migrate(ctx, db); err != nil {
		cancel()
		log.WithError(err).Fatal("run migrations")
	}
	cancel()

	pskStore := pgstore.NewPskStore(db)

	redisClient, err := refcache.Open(cfg.RedisURL)
	if err != nil {
		log.WithError(err).Fatal("connect redis")
	}
	defer redisClient.Close()
	cache := refcache.New(redisClient)

	var suite ciphersuite.Provider
	switch cfg.CipherSuite {
	case "hybridpq":
		suite = ciphersuite.NewHybridPQ()
	default:
		suite = ciphersuite.NewBasic()
	}

	registry := httpapi.NewRegistry(suite, identity.NewBasicProvider(), pskStore, log)
	server := httpapi.NewServer(registry, cache, log)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Router(),
	}

	go func() {
		log.WithField("port", cfg.Port).Info("mlsharness listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down mlsharness")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Fatal("graceful shutdown failed")
	}
	log.Info("mlsharness exited")
}
