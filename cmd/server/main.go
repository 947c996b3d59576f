package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/duetlabs/duet/internal/auth"
	"github.com/duetlabs/duet/internal/config"
	"github.com/duetlabs/duet/internal/httpapi"
	"github.com/duetlabs/duet/internal/hub"
	"github.com/duetlabs/duet/internal/search"
	"github.com/duetlabs/duet/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}

	h := hub.New(ctx, hub.Config{
		IdleTimeout: cfg.RoomIdleTimeout,
		SweepEvery:  cfg.SweepInterval,
		Recorder:    st,
		Archiver:    st,
		Log:         logger,
	})

	api := &httpapi.API{
		Hub:    h,
		Auth:   auth.NewManager(cfg.JWTSecret),
		Store:  st,
		Search: search.NewClient(cfg.SearchTimeout, logger),
		Log:    logger,
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.SetupRoutes(api),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
