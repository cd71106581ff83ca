// Package app wires configuration, storage and the portal client into a
// briefing pipeline shared by the server and the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/sunbrief/internal/briefing"
	"github.com/ashureev/sunbrief/internal/config"
	"github.com/ashureev/sunbrief/internal/equivalency"
	"github.com/ashureev/sunbrief/internal/portal"
	"github.com/ashureev/sunbrief/internal/session"
	"github.com/ashureev/sunbrief/internal/store"
)

// App holds the wired dependencies.
type App struct {
	Config      *config.Config
	Store       store.SessionStore
	Sessions    *session.Manager
	Equivalency *equivalency.Table
	Pipeline    *briefing.Pipeline
}

// New opens the session store and builds the pipeline. Callers must Close
// the returned App.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	sessionStore, err := store.Open(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	if err := sessionStore.Ping(ctx); err != nil {
		_ = sessionStore.Close()
		return nil, fmt.Errorf("session store health check: %w", err)
	}

	client := portal.New(portal.Options{
		BaseURL:    cfg.Portal.BaseURL,
		Timeout:    cfg.Portal.Timeout,
		RetryDelay: cfg.Portal.RetryDelay,
		Logger:     logger,
	})
	sessions := session.NewManager(cfg.PhoneNumber, client, sessionStore, cfg.Location(), logger)
	table := equivalency.Default()
	pipeline := briefing.New(sessions, client, sessionStore, table, briefing.Options{
		Location: cfg.Location(),
		Logger:   logger,
	})

	return &App{
		Config:      cfg,
		Store:       sessionStore,
		Sessions:    sessions,
		Equivalency: table,
		Pipeline:    pipeline,
	}, nil
}

// Close releases the session store.
func (a *App) Close() error {
	return a.Store.Close()
}
