// Command relay runs the live relay on its own: jam sockets plus the
// control-plane broadcast endpoint the API pushes to.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	logging "github.com/ipfs/go-log/v2"

	"jamsync/internal/app"
	"jamsync/internal/config"
	"jamsync/internal/transport/ws"
)

var log = logging.Logger("jam/relay")

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("invalid configuration", "err", err)
	}
	lvl, err := logging.LevelFromString(cfg.LogLevel)
	if err != nil {
		log.Fatalw("invalid LOG_LEVEL", "level", cfg.LogLevel, "err", err)
	}
	logging.SetAllLoggers(lvl)

	ctx := context.Background()

	// Hydration reads the durable store, so only a relay deployed beside it
	// opens one.
	var a *app.App
	hub := app.NewHub(cfg, nil)
	if cfg.HydrateRooms {
		a, err = app.Open(ctx, cfg)
		if err != nil {
			log.Fatalw("store unavailable", "err", err)
		}
		hub = app.NewHub(cfg, a.JamService)
	}

	if cfg.BridgeSecret == "" {
		log.Warnw("JAM_BRIDGE_SECRET is empty; POST /broadcast accepts unauthenticated pushes")
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)
	ws.NewHandler(hub, cfg.BridgeSecret).Register(r)

	srv := &http.Server{
		Addr:              ":" + cfg.WSPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infow("relay listening", "addr", srv.Addr, "hydrate", cfg.HydrateRooms, "bridgeAuth", cfg.BridgeSecret != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("listen failed", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down relay")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("forced shutdown", "err", err)
	}
	hub.Rooms().Close()
	if a != nil {
		a.Close(shutdownCtx)
	}
	log.Info("relay exited")
}
