// tasklist is a multi-user todo list service that delegates sign-in to an
// OIDC provider.
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

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tasklist-io/tasklist/internal/config"
	"github.com/tasklist-io/tasklist/internal/httpapi"
	"github.com/tasklist-io/tasklist/internal/session"
	"github.com/tasklist-io/tasklist/internal/todo"
	"github.com/tasklist-io/tasklist/oidc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var repo todo.Repository
	if cfg.Database.Enabled() {
		pool, err := pgxpool.New(ctx, cfg.Database.URL())
		if err != nil {
			return fmt.Errorf("unable to create database pool: %w", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("unable to reach database: %w", err)
		}
		store, err := todo.NewPGStore(pool)
		if err != nil {
			return err
		}
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		repo = store
	} else {
		logger.Warn("no database configured, todos will not survive a restart")
		repo = todo.NewMemStore()
	}

	// discovery happens here: a provider we cannot describe is a provider we
	// cannot send users to, so this is fatal at startup
	providerCA, err := cfg.ProviderCA()
	if err != nil {
		return err
	}
	oidcOpts := []oidc.Option{
		oidc.WithScopes(cfg.OIDC.Scopes...),
		oidc.WithLogger(logger.Named("oidc")),
	}
	if providerCA != "" {
		oidcOpts = append(oidcOpts, oidc.WithProviderCA(providerCA))
	}
	providerCfg, err := oidc.NewConfig(
		cfg.OIDC.Issuer,
		cfg.OIDC.ClientID,
		cfg.OIDC.ClientSecret,
		[]oidc.Alg{oidc.RS256, oidc.ES256},
		cfg.RedirectURL(),
		oidcOpts...,
	)
	if err != nil {
		return err
	}
	provider, err := oidc.NewProvider(providerCfg)
	if err != nil {
		return err
	}
	defer provider.Done()

	sessions, err := session.NewService(cfg.Session.Secret,
		session.WithTTL(cfg.Session.TTL),
		session.WithSecureCookies(cfg.SecureCookies()),
		session.WithLogger(logger.Named("session")),
	)
	if err != nil {
		return err
	}

	srv, err := httpapi.New(provider, sessions, repo,
		httpapi.WithLogger(logger.Named("httpapi")),
		httpapi.WithBaseURL(cfg.Server.BaseURL),
	)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var result *multierror.Error
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("http shutdown: %w", err))
	}
	select {
	case err := <-serveErr:
		result = multierror.Append(result, err)
	default:
	}
	return result.ErrorOrNil()
}
