package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"jamsync/internal/app"
	"jamsync/internal/config"
	"jamsync/internal/model"
	"jamsync/internal/service"
)

var log = logging.Logger("jam/seed")

func main() {
	hostID := flag.String("host", "demo-host", "user id of the jam host")
	hostName := flag.String("name", "Demo Host", "display name of the host")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("invalid configuration", "err", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// New so the jam is also pushed to JAM_RELAY_URL when one is configured.
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to open store", "err", err)
	}
	defer a.Close(ctx)

	allow := true
	view, err := a.JamService.CreateJam(ctx, *hostID, service.CreateJamInput{
		SeedType:      "album",
		SeedID:        "demo-album",
		AllowControls: &allow,
		HostName:      *hostName,
		Tracks: []model.Track{
			{ID: "demo-1", Name: "Morning Static", Artist: "The Relays", Album: "Demo Album", Duration: 212},
			{ID: "demo-2", Name: "Late Packets", Artist: "The Relays", Album: "Demo Album", Duration: 187},
			{ID: "demo-3", Name: "Clock Drift", Artist: "The Relays", Album: "Demo Album", Duration: 243},
		},
	})
	if err != nil {
		log.Fatalw("failed to create jam", "err", err)
	}

	token, err := a.AuthService.IssueToken(*hostID, *hostName, 24*time.Hour)
	if err != nil {
		log.Fatalw("failed to issue token", "err", err)
	}

	fmt.Printf("Created jam %s with %d tracks (store: %s)\n", view.Jam.ID, len(view.Queue), cfg.StoreDriver)
	fmt.Printf("Host token for %s: %s\n", *hostID, token)
}
