package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/syncplay-server/config"
	"github.com/mossy-p/syncplay-server/internal/handlers"
	"github.com/mossy-p/syncplay-server/internal/logger"
	"github.com/mossy-p/syncplay-server/internal/metrics"
	"github.com/mossy-p/syncplay-server/internal/presence"
	"github.com/mossy-p/syncplay-server/internal/relay"
	"github.com/mossy-p/syncplay-server/internal/room"
	"github.com/mossy-p/syncplay-server/internal/session"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	var tracker room.Tracker
	if cfg.Redis.Enabled {
		mirror, err := presence.NewMirror(cfg.Redis, log)
		if err != nil {
			// Presence is a best-effort mirror; run without it.
			log.Warn("presence mirror disabled", "error", err)
		} else {
			defer mirror.Close()
			tracker = mirror
			log.Info("presence mirror enabled")
		}
	}

	sessions := session.NewRegistry(log)
	rooms := room.NewRegistry(sessions, tracker, log)
	relay := relay.New(sessions, log)
	met := metrics.New()
	h := handlers.New(sessions, rooms, relay, met, log)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handlers.OriginFilter(cfg.AllowedOrigins))
	router.Use(metrics.RequestMiddleware(met))

	router.GET("/health", h.Health)
	router.GET("/stats", h.Stats)
	router.GET("/metrics", gin.WrapH(met.Handler(func() {
		roomCount, _ := rooms.Stats()
		met.SetActiveRooms(roomCount)
		met.SetActiveConnections(sessions.Count())
	})))
	router.GET("/api/rooms/:roomId", h.GetRoom)
	router.GET("/ws", h.HandleWS)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}

	go func() {
		log.Info("server starting", "port", cfg.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
	}

	log.Info("server stopped")
}
