package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"jamsync/internal/app"
	"jamsync/internal/config"
)

var log = logging.Logger("jam/server")

// @title Jam Sync API
// @version 1.0
// @description Shared listening sessions: durable jam state and live relay
// @host localhost:8080
// @BasePath /v1
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("invalid configuration", "err", err)
	}
	if err := setLogLevel(cfg.LogLevel); err != nil {
		log.Fatalw("invalid LOG_LEVEL", "level", cfg.LogLevel, "err", err)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalw("startup failed", "err", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infow("server starting", "addr", srv.Addr, "store", cfg.StoreDriver, "inProcessRelay", a.Hub != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("listen failed", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("forced shutdown", "err", err)
	}
	a.Close(shutdownCtx)

	log.Info("server exited")
}

func setLogLevel(level string) error {
	lvl, err := logging.LevelFromString(level)
	if err != nil {
		return err
	}
	logging.SetAllLoggers(lvl)
	return nil
}
