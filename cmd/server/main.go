// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/codebreak/internal/auth"
	"github.com/jason-s-yu/codebreak/internal/cache"
	"github.com/jason-s-yu/codebreak/internal/config"
	"github.com/jason-s-yu/codebreak/internal/database"
	"github.com/jason-s-yu/codebreak/internal/events"
	"github.com/jason-s-yu/codebreak/internal/game"
	"github.com/jason-s-yu/codebreak/internal/handlers"
	"github.com/jason-s-yu/codebreak/internal/room"
	"github.com/jason-s-yu/codebreak/internal/session"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// backend is what the session handler and API need from a player store.
type backend interface {
	session.PlayerStore
	session.MatchRecorder
	session.Inventory
	handlers.InventoryLister
}

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	logger.SetLevel(cfg.LogLevel)
	if cfg.LogJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store backend
	if cfg.DatabaseURL != "" {
		if cfg.Migrate {
			if err := database.Migrate(cfg.DatabaseURL, logger); err != nil {
				logger.WithError(err).Fatal("migration failed")
			}
		}
		pg, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.WithError(err).Fatal("database unavailable")
		}
		defer pg.Close()
		store = pg
		logger.Info("using postgres store")
	} else {
		starter := make(map[string]int, len(game.AllItems))
		for _, k := range game.AllItems {
			starter[string(k)] = cfg.Game.StarterItems
		}
		store = database.NewMemoryStore(starter)
		logger.Warn("DATABASE_URL not set, using in-memory store")
	}

	// matches go through the historian queue when redis is configured,
	// straight to the store otherwise
	var recorders []session.MatchRecorder
	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.WithError(err).Fatal("redis unavailable")
		}
		defer rdb.Close()
		recorders = append(recorders, cache.NewPublisher(rdb, cfg.HistorianQueue))
	} else {
		recorders = append(recorders, store)
	}
	if cfg.NatsURL != "" {
		announcer, err := events.Connect(cfg.NatsURL, logger)
		if err != nil {
			logger.WithError(err).Fatal("nats unavailable")
		}
		defer announcer.Close()
		recorders = append(recorders, announcer)
	}

	bank, err := game.LoadTriviaBank(cfg.TriviaPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to load trivia bank")
	}

	registry := room.NewRegistry(cfg.Game.Limits(), bank, logger)
	settings := session.DefaultSettings()
	settings.TriviaCooldown = cfg.Game.TriviaCooldown
	sessions := session.NewHandler(registry, logger,
		session.WithPlayers(store),
		session.WithRecorders(recorders...),
		session.WithInventory(store),
		session.WithSettings(settings),
	)

	issuer, err := newIssuer(cfg)
	if err != nil {
		logger.WithError(err).Fatal("failed to set up identity tokens")
	}

	api := handlers.NewAPIServer(sessions, issuer, logger,
		handlers.WithInventoryLister(store),
		handlers.WithOriginPatterns(cfg.AllowedOrigins...),
	)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return registry.RunJanitor(gctx, cfg.Game.JanitorInterval, cfg.Game.RoomIdleTTL)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Shutdown does not wait for hijacked websocket connections
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server exited")
	}
	sessions.Wait()
	logger.Info("server stopped")
}

func newIssuer(cfg *config.Config) (*auth.Issuer, error) {
	ttl, err := auth.ParseTokenTTL(cfg.TokenExpireTime)
	if err != nil {
		return nil, err
	}
	if cfg.KeyPrivatePath != "" && cfg.KeyPublicPath != "" {
		return auth.NewIssuerFromFiles(cfg.KeyPrivatePath, cfg.KeyPublicPath, ttl)
	}
	return auth.NewIssuer(ttl)
}
