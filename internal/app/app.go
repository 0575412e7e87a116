package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"jamsync/internal/cache"
	"jamsync/internal/config"
	"jamsync/internal/repository"
	"jamsync/internal/service"
	"jamsync/internal/transport/rest"
	"jamsync/internal/transport/ws"
)

var log = logging.Logger("jam/app")

const connectTimeout = 5 * time.Second

// App wires the durable API, its stores and the live relay.
type App struct {
	Config       *config.Config
	JamRepo      repository.JamRepo
	SessionCache cache.SessionCache
	AuthService  *service.AuthService
	JamService   *service.JamService
	// Hub is nil when pushes go to a relay in another process.
	Hub *ws.Hub

	closers []func(context.Context) error
}

// New opens the configured stores, builds the services and connects them to
// the relay: a remote one when JAM_RELAY_URL is set, an in-process hub
// otherwise.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.RelayURL != "" {
		a.JamService.SetBroadcaster(service.NewRelayClient(cfg.RelayURL, cfg.BridgeSecret, cfg.BroadcastTimeout))
		log.Infow("pushing to remote relay", "url", cfg.RelayURL)
	} else {
		a.Hub = NewHub(cfg, a.JamService)
		a.JamService.SetBroadcaster(a.Hub)
		log.Infow("relay running in-process", "hydrate", cfg.HydrateRooms)
	}
	return a, nil
}

// Open opens the configured stores and builds the services without any
// push target.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	repo, err := a.openStore(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.JamRepo = repo

	if cfg.RedisURI != "" {
		sessionCache, err := a.openCache(ctx)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.SessionCache = sessionCache
	}

	a.AuthService = service.NewAuthService(cfg.JWTSecret)
	a.JamService = service.NewJamService(a.JamRepo, a.SessionCache)
	a.JamService.SetPushTimeout(cfg.BroadcastTimeout)
	return a, nil
}

// NewHub builds a relay hub. hydrator may be nil.
func NewHub(cfg *config.Config, hydrator ws.Hydrator) *ws.Hub {
	hub := ws.NewHub(ws.NewRegistry())
	if cfg.HydrateRooms && hydrator != nil {
		hub.SetHydrator(hydrator)
	}
	return hub
}

// Router returns the REST API, with the relay endpoints mounted when the
// relay runs in-process.
func (a *App) Router() http.Handler {
	c := &rest.Container{
		AuthService: a.AuthService,
		JamService:  a.JamService,
		CORSOrigins: a.Config.CORSOrigins,
	}
	if a.Hub != nil {
		c.WSHandler = ws.NewHandler(a.Hub, a.Config.BridgeSecret)
	}
	return rest.NewRouter(c)
}

// Close releases stores and live rooms in reverse order of opening.
func (a *App) Close(ctx context.Context) {
	if a.Hub != nil {
		a.Hub.Rooms().Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			log.Warnw("close failed", "err", err)
		}
	}
	a.closers = nil
}

func (a *App) openStore(ctx context.Context) (repository.JamRepo, error) {
	switch a.Config.StoreDriver {
	case config.StoreSQLite:
		db, err := repository.OpenSQLite(a.Config.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		repo, err := repository.NewSQLiteJamRepo(db)
		if err != nil {
			return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
		}
		log.Infow("using sqlite store", "path", a.Config.SQLitePath)
		return repo, nil

	default:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(a.Config.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		a.closers = append(a.closers, client.Disconnect)

		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		if err := client.Ping(pingCtx, nil); err != nil {
			return nil, fmt.Errorf("failed to ping mongodb: %w", err)
		}
		if err := repository.EnsureIndexes(pingCtx, client, a.Config.MongoDatabase); err != nil {
			return nil, fmt.Errorf("failed to create indexes: %w", err)
		}
		log.Infow("connected to mongodb", "database", a.Config.MongoDatabase)
		return repository.NewMongoJamRepo(client, a.Config.MongoDatabase), nil
	}
}

func (a *App) openCache(ctx context.Context) (cache.SessionCache, error) {
	rdb := redis.NewClient(&redis.Options{Addr: a.Config.RedisAddr()})
	a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	log.Infow("connected to redis", "addr", a.Config.RedisAddr())
	return cache.NewSessionCache(rdb), nil
}
