// Package app wires domain services onto their stores and manages the
// lifecycle of background components.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/agora-social/agora/internal/app/services/accounts"
	commercesvc "github.com/agora-social/agora/internal/app/services/commerce"
	"github.com/agora-social/agora/internal/app/services/feed"
	"github.com/agora-social/agora/internal/app/storage"
	"github.com/agora-social/agora/internal/app/storage/memory"
	"github.com/agora-social/agora/internal/app/system"
	"github.com/agora-social/agora/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Accounts  storage.AccountStore
	Sessions  storage.SessionStore
	Posts     storage.PostStore
	Comments  storage.CommentStore
	Reactions storage.ReactionStore
	Items     storage.ItemStore
	Orders    storage.OrderStore
}

// Options tunes application behaviour.
type Options struct {
	SessionTTL    time.Duration
	SweepInterval time.Duration
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Accounts *accounts.Service
	Feed     *feed.Service
	Commerce *commercesvc.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Accounts == nil {
		stores.Accounts = mem
	}
	if stores.Sessions == nil {
		stores.Sessions = mem
	}
	if stores.Posts == nil {
		stores.Posts = mem
	}
	if stores.Comments == nil {
		stores.Comments = mem
	}
	if stores.Reactions == nil {
		stores.Reactions = mem
	}
	if stores.Items == nil {
		stores.Items = mem
	}
	if stores.Orders == nil {
		stores.Orders = mem
	}

	acctService := accounts.New(stores.Accounts, stores.Sessions, stores.Posts, log)
	if opts.SessionTTL > 0 {
		acctService.SetSessionTTL(opts.SessionTTL)
	}
	feedService := feed.New(stores.Posts, stores.Comments, stores.Reactions, log)
	commerceService := commercesvc.New(stores.Items, stores.Orders, log)

	manager := system.NewManager()
	if sweeper, ok := stores.Sessions.(storage.SessionSweeper); ok {
		svc := accounts.NewSweeper(sweeper, opts.SweepInterval, log)
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:  manager,
		log:      log,
		Accounts: acctService,
		Feed:     feedService,
		Commerce: commerceService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
