package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tailrdb/tailr/modules/gateway"
	"github.com/tailrdb/tailr/pkg/util/log"
	"github.com/tailrdb/tailr/tailrdb"
	"github.com/tailrdb/tailr/tailrdb/backend/mysql"
)

const appName = "tailr"

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed parsing config: %v\n", err)
		os.Exit(1)
	}

	logger := log.InitLogger(cfg.Server.LogLevel)

	db, err := mysql.New(cfg.Database)
	if err != nil {
		level.Error(logger).Log("msg", "error opening database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	store := tailrdb.New(db, &cfg.Store, logger)

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	gateway.New(store, db, logger).RegisterRoutes(router)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPListenPort),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		level.Info(logger).Log("msg", "server listening", "app", appName, "port", cfg.Server.HTTPListenPort)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		level.Error(logger).Log("msg", "server exited with error", "err", err)
		os.Exit(1)
	}
}
