package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/starrail-draft-backend/internal/catalog"
	"github.com/DoyleJ11/starrail-draft-backend/internal/config"
	"github.com/DoyleJ11/starrail-draft-backend/internal/httpapi"
	"github.com/DoyleJ11/starrail-draft-backend/internal/hub"
	"github.com/DoyleJ11/starrail-draft-backend/internal/lobby"
	"github.com/DoyleJ11/starrail-draft-backend/internal/logging"
	"github.com/DoyleJ11/starrail-draft-backend/internal/store"
	"github.com/DoyleJ11/starrail-draft-backend/internal/ws"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}
	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, st.Close()) }()

	// Lobbies outlive the signal so in-flight requests can finish first.
	h := hub.NewHub(context.Background(), lobby.Config{
		Store:          st,
		Rules:          cat.Rules,
		Logger:         log,
		PersistTimeout: cfg.PersistTimeout,
	})

	// Build the router *with* the hub injected
	handler := httpapi.SetupRoutes(h, httpapi.Options{
		Logger: log,
		WS: ws.Options{
			Logger:         log,
			Buffer:         cfg.SubscriberBuffer,
			ActionRate:     cfg.ActionRate,
			ActionBurst:    cfg.ActionBurst,
			OriginPatterns: cfg.AllowedOrigins,
		},
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return multierr.Combine(srv.Shutdown(sctx), h.Shutdown(sctx))
	})
	return g.Wait()
}

func openStore(cfg config.Config, log *zap.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DRAFT_DATABASE_URL not set, sessions are kept in memory only")
		return store.NewMemory(), nil
	}
	return store.OpenPostgres(cfg.DatabaseURL)
}
