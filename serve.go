package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"flipbook-app/config"
	"flipbook-app/internal/api"
	"flipbook-app/internal/auth"
	"flipbook-app/internal/blob"
	"flipbook-app/internal/dispatcher"
	"flipbook-app/internal/flipbook"
	"flipbook-app/internal/store"
)

const (
	shutdownTimeout = 30 * time.Second
	pruneInterval   = time.Hour
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the conversion workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), config.Load())
		},
	}
}

func serve(ctx context.Context, cfg config.AppConfig) error {
	log := newLogger(cfg.Log)
	gin.SetMode(cfg.Server.Mode)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.WithField("dsn", cfg.Database.Redacted()).Info("Connecting to database...")
	s, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.InitSchema(ctx); err != nil {
		return err
	}
	log.Info("Database ready.")

	blobs, err := blob.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	log.WithField("backend", cfg.Storage.Backend).Info("Blob storage ready.")

	p, err := newPipeline(cfg.Pipeline, log)
	if err != nil {
		return err
	}
	books := flipbook.NewService(s, blobs, p, flipbook.Options{
		Prefix:  cfg.Storage.Prefix,
		BaseURL: cfg.Server.PublicBaseURL,
		Logger:  log,
	})
	accounts := auth.NewService(s, cfg.Auth, log)

	jobs := dispatcher.New(books, cfg.Dispatcher, log)
	jobs.Start(ctx)
	defer jobs.Stop()

	go pruneSessions(ctx, accounts, log)

	srv := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: api.New(api.Deps{
			Auth:      accounts,
			Flipbooks: books,
			Jobs:      jobs,
			Config:    cfg.Server,
			LoginRate: cfg.Auth.LoginPerMinute,
			Logger:    log,
		}).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("Listening...")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// pruneSessions deletes expired sessions until ctx ends.
func pruneSessions(ctx context.Context, accounts *auth.Service, log logrus.FieldLogger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := accounts.PruneSessions(ctx)
			if err != nil {
				log.WithError(err).Warn("pruning sessions failed")
				continue
			}
			if n > 0 {
				log.WithField("count", n).Info("pruned expired sessions")
			}
		}
	}
}
