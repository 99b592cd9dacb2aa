package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/placebook/placebook/internal/config"
	"github.com/placebook/placebook/internal/db"
	"github.com/placebook/placebook/internal/http/api/admin"
	"github.com/placebook/placebook/internal/http/api/events"
	"github.com/placebook/placebook/internal/http/api/front"
	"github.com/placebook/placebook/internal/logging"
	"github.com/placebook/placebook/internal/rewards"
	"github.com/placebook/placebook/internal/util"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(config.ResolveConfigPath(configPath))
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// RunServer boots the rewards API server with database-backed components. It
// blocks until the context is cancelled, then shuts the HTTP server down
// gracefully.
func RunServer(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(config.ResolveConfigPath(configPath))
	if errLoad != nil {
		return errLoad
	}
	logging.Setup(cfg.Logging)

	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errSeed := db.SeedAdmin(conn); errSeed != nil {
		return errSeed
	}

	var cache *redis.Client
	if cfg.Redis.Addr != "" {
		cache = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		log.Infof("settings cache enabled at %s", cfg.Redis.Addr)
	}

	settingsStore := rewards.NewSettingsStore(conn, cache)
	manager := rewards.NewAccountManager(conn)
	redemption := rewards.NewRedemptionEngine(manager, settingsStore)
	adapter := rewards.NewBookingEventAdapter(manager, settingsStore)
	queue := rewards.NewQueue(conn)

	dispatcher := rewards.NewDispatcher(conn, adapter, cfg.Events.DispatchInterval(), cfg.Events.MaxAttempts)
	dispatcher.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	front.RegisterFrontRoutes(engine, conn, cfg.JWT, manager, redemption)
	admin.RegisterAdminRoutes(engine, conn, cfg.JWT, manager, settingsStore)
	events.RegisterEventRoutes(engine, events.NewHandler(queue, cfg.Events.IntakeToken))

	if cfg.Events.IntakeToken == "" {
		log.Warn("events.intake-token is empty, booking event intake is disabled")
	} else {
		log.Infof("booking event intake enabled, token=%s", util.MaskToken(cfg.Events.IntakeToken))
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case errServe := <-errCh:
		if errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", errServe)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("shutdown: %w", errShutdown)
	}
	log.Info("server stopped")
	return nil
}
