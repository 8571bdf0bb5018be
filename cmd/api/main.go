package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/reddit-clone/bff/internal/api"
	"github.com/emilythestrangee/reddit-clone/bff/internal/config"
	"github.com/emilythestrangee/reddit-clone/bff/internal/database"
	"github.com/emilythestrangee/reddit-clone/bff/internal/models"
	"github.com/emilythestrangee/reddit-clone/bff/internal/querycache"
	"github.com/emilythestrangee/reddit-clone/bff/internal/server"
	"github.com/emilythestrangee/reddit-clone/bff/internal/viewer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	var (
		redisSvc database.Service
		newStore viewer.StoreFactory
	)
	switch cfg.Cache.Backend {
	case config.BackendRedis:
		redisSvc, err = database.NewRedis(cfg.Redis)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisSvc.Close()

		newStore = func(id string) querycache.Querier {
			return querycache.NewRedisStore(redisSvc.Client(), models.Codec{}, querycache.RedisOptions{
				Prefix:         "viewer:" + id,
				TTL:            cfg.Cache.TTL,
				RefetchTimeout: cfg.Cache.RefetchTimeout,
			}, logger.With("viewer", id))
		}
	default:
		newStore = func(id string) querycache.Querier {
			return querycache.NewMemoryStore(cfg.Cache.RefetchTimeout, logger.With("viewer", id))
		}
	}

	client := api.NewClient(cfg.API.BaseURL, cfg.API.Timeout)
	viewers := viewer.NewRegistry(client, newStore, cfg.Cache.ViewerTTL, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go viewers.Run(ctx)

	srv := server.NewServer(cfg, viewers, redisSvc)
	go func() {
		slog.Info("Server starting", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	slog.Info("Server stopped")
}
