package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mossy-p/call-signaling/config"
	"github.com/mossy-p/call-signaling/internal/handlers"
	"github.com/mossy-p/call-signaling/internal/logging"
	"github.com/mossy-p/call-signaling/internal/middleware"
	"github.com/mossy-p/call-signaling/internal/redis"
	"github.com/mossy-p/call-signaling/internal/relay"
	"github.com/mossy-p/call-signaling/internal/rooms"
	"github.com/mossy-p/call-signaling/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg := config.Load()
	logger := logging.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("signaling server stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv := transport.NewServer(transport.WithLogger(logger))
	registry := rooms.NewRegistry()
	relayOpts := []relay.Option{
		relay.WithLogger(logger),
		relay.WithMetrics(relay.NewMetrics(reg)),
	}

	// Presence is optional: one relay process needs nothing but memory
	var presence handlers.PresenceCounter
	if cfg.Redis.Enabled() {
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		p, err := redis.Connect(connectCtx, cfg.Redis)
		cancel()
		if err != nil {
			return err
		}
		defer p.Close()

		logger.Info("redis presence mirror enabled", "addr", cfg.Redis.Addr())
		presence = p
		relayOpts = append(relayOpts, relay.WithObserver(p))
	}

	relay.Setup(srv, registry, relayOpts...)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Global CORS middleware (runs before routing)
	router.Use(handlers.OriginFilter(cfg.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/auth/login", handlers.Login(cfg.JWTSecret, cfg.AdminPassword))
		apiGroup.GET("/rooms/:roomId", handlers.GetRoom(registry, presence))

		admin := apiGroup.Group("/admin", middleware.JWTAuth(cfg.JWTSecret))
		admin.GET("/rooms", handlers.ListRooms(registry, srv))
	}

	// WebSocket signaling; the room is named by the client's join event
	router.GET(cfg.SignalPath, handlers.HandleSignaling(srv))

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting signaling server", "port", cfg.Port, "path", cfg.SignalPath, "env", cfg.Environment)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	httpErr := httpServer.Shutdown(shutdownCtx)
	// Hijacked websockets are not tracked by http.Server. Their close
	// handlers record presence departures, so Redis must outlive them.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("relay connections did not drain", "err", err)
	}
	return httpErr
}
