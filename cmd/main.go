package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"jobdef"
	"jobdef/internal/api/handler/endpoints"
	"jobdef/internal/api/repo"
	"jobdef/internal/api/service"
	"jobdef/internal/realtime"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/graceful"
	"github.com/gin-gonic/gin"
)

func main() {
	jobdef.InitConfig(".env")
	cfg := jobdef.GetConfig()
	gin.SetMode(gin.ReleaseMode)
	if cfg.Mode == "dev" {
		gin.SetMode(gin.DebugMode)
	}

	jobStore, err := repo.OpenStore(cfg)
	if err != nil {
		jobdef.Logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("Failed to open job store")
	}

	publisher := realtime.NewJobChangePublisher(cfg.NatsURL, cfg.TenantID, jobdef.Logger)
	defer publisher.Close()

	sessions := service.NewSessionRegistry(jobStore, publisher, jobdef.Logger,
		service.WithSharedScheduleMinVersion(cfg.SharedScheduleMinVersion))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	router, err := graceful.Default(graceful.WithAddr(cfg.ApiPort))
	if err != nil {
		panic(err)
	}
	defer stop()
	defer router.Close()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	initAPI(router, sessions, cfg)

	jobdef.Logger.Debug().Msgf("Starting job definition API on port %s", cfg.ApiPort)
	if err = router.RunWithContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		jobdef.Logger.Fatal().Msg(err.Error())
		panic(err)
	}
}

func initAPI(router *graceful.Graceful, sessions *service.SessionRegistry, cfg jobdef.AppConfig) {
	endpoints.JobSessionHandler(router, sessions, cfg)
}
