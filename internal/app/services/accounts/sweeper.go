package accounts

import (
	"context"
	"time"

	"github.com/agora-social/agora/internal/app/storage"
	"github.com/agora-social/agora/pkg/logger"
)

// Sweeper periodically removes expired sessions from backends that do not
// expire them on their own.
type Sweeper struct {
	store    storage.SessionSweeper
	log      *logger.Logger
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSweeper constructs a session sweeper. interval <= 0 selects a default
// of one hour.
func NewSweeper(store storage.SessionSweeper, interval time.Duration, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("session-sweeper")
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{store: store, log: log, interval: interval}
}

func (s *Sweeper) Name() string { return "session-sweeper" }

// Start launches the sweep loop.
func (s *Sweeper) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.store.DeleteExpiredSessions(ctx, time.Now().UTC())
				if err != nil {
					s.log.WithError(err).Warn("session sweep failed")
					continue
				}
				if removed > 0 {
					s.log.WithField("removed", removed).Debug("expired sessions swept")
				}
			}
		}
	}()
	return nil
}

// Stop terminates the sweep loop and waits for it to exit.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
