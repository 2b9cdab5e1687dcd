package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/joelmale/nexus/internal/archive"
	"github.com/joelmale/nexus/internal/config"
	"github.com/joelmale/nexus/internal/httpapi"
	"github.com/joelmale/nexus/internal/hub"
)

func main() {
	cfg := config.Load()

	logger, err := buildLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	var arch archive.Archive = archive.NewMemory()
	if cfg.DatabaseURL != "" {
		db, err := archive.OpenDB(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("open room archive", zap.Error(err))
		}
		arch = db
		logger.Info("room archive: postgres")
	} else {
		logger.Info("room archive: in-memory")
	}

	ctx := context.Background()
	h := hub.NewHub(ctx, arch, logger)

	// Build the router *with* the hub injected
	handler := httpapi.SetupRoutes(h, logger)
	srv := &http.Server{Addr: cfg.Addr, Handler: handler}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		logger.Info("shutting down")
		// Rooms archive their state on shutdown; give them a moment
		// before the listener goes away.
		h.Inbox() <- hub.ShutdownHub{}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", zap.String("addr", cfg.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func buildLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.Dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
