package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/overbid/liveshow/internal/application/config"
	"github.com/overbid/liveshow/internal/application/constant"
	"github.com/overbid/liveshow/internal/application/metric"
	"github.com/overbid/liveshow/internal/infra/adapters/memory"
	"github.com/overbid/liveshow/internal/infra/adapters/postgres"
	"github.com/overbid/liveshow/internal/infra/adapters/postgres/repository"
	"github.com/overbid/liveshow/internal/infra/ports/http/handlers"
	"github.com/overbid/liveshow/internal/infra/ports/http/server"
	"github.com/overbid/liveshow/internal/usecase"
)

func runApp() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	level := slog.LevelInfo

	cfg, err := config.New()
	if err != nil {
		slog.Error("parse config", slog.Any(constant.Error, err))
		os.Exit(1)
	}

	if cfg.Debug {
		level = slog.LevelDebug
	}

	slog.SetDefault(
		slog.New(
			slog.NewJSONHandler(
				os.Stdout,
				&slog.HandlerOptions{Level: level},
			),
		),
	)

	slog.Info("Running app", slog.Bool("debug", cfg.Debug))

	dbConn, err := postgres.NewPostgres(ctx, cfg.Postgres.DSN())
	if err != nil {
		slog.Error("connect to postgres", slog.Any(constant.Error, err))
		os.Exit(1)
	}
	defer dbConn.Close()

	showRepo := repository.NewShowRepo(dbConn)
	productRepo := repository.NewProductRepo(dbConn)

	wsConnRepo := memory.NewWSConnectionRepository()
	mediaWSConnRepo := memory.NewWSConnectionRepository()
	pcConnRepo := memory.NewPeerConnectionRepository()
	membersRepo := memory.NewRoomMembersRepository()
	liveRepo := memory.NewLiveStateRepository()

	tokenUsecase := usecase.NewTokenUsecase(cfg, showRepo)
	showUsecase := usecase.NewShowUsecase(showRepo, liveRepo, membersRepo, wsConnRepo)
	commerceUsecase := usecase.NewCommerceUsecase(showRepo, productRepo, liveRepo, membersRepo, wsConnRepo)
	mediaUsecase := usecase.NewMediaUsecase(cfg, pcConnRepo, mediaWSConnRepo, membersRepo)

	tokenHandler := handlers.NewTokenHandler(tokenUsecase)
	showHandler := handlers.NewShowHandler(showUsecase)
	commerceWSHandler := handlers.NewCommerceWSHandler(cfg, commerceUsecase, wsConnRepo)
	mediaWSHandler := handlers.NewMediaWSHandler(cfg, mediaUsecase, mediaWSConnRepo)

	echoSrv := server.New(tokenUsecase, tokenHandler, showHandler, commerceWSHandler, mediaWSHandler)
	metricSrv := metric.NewServer()

	srvCh := make(chan error, 1)
	go func() {
		srvCh <- echoSrv.Start(":" + cfg.Port)
	}()

	go func() {
		if err := metricSrv.Start(":" + cfg.MetricsPort); err != nil {
			slog.Error("metrics server failed", slog.Any(constant.Error, err))
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down server due to context cancel")
	case err = <-srvCh:
		slog.Error(
			"HTTP server failed",
			slog.Any(constant.Error, err),
		)

		os.Exit(1)
	}

	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer timeoutCancel()

	if err := echoSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown server", slog.Any(constant.Error, err))
	}

	if err := metricSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown metrics server", slog.Any(constant.Error, err))
	}
}
