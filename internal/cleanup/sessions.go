// Package cleanup purges expired login sessions in the background.
package cleanup

import (
	"context"
	"database/sql"
	"time"

	"jellyfin-integration/internal/db"
	"jellyfin-integration/internal/logging"
)

const DefaultInterval = time.Hour

// Sweeper deletes app_session rows past their expiry on a fixed interval.
type Sweeper struct {
	db       *sql.DB
	interval time.Duration
	logger   logging.Logger
	now      func() time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewSweeper(sqlDB *sql.DB, interval time.Duration, logger logging.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{
		db:       sqlDB,
		interval: interval,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start runs one sweep immediately and then every interval until ctx ends
// or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.run(ctx)
		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("Session sweeper stopped")
				return
			case <-ticker.C:
				s.run(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Sweeper) run(ctx context.Context) {
	n, err := s.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("Session sweep failed", "error", err.Error())
		}
		return
	}
	if n > 0 {
		s.logger.Info("Expired sessions removed", "count", n)
	}
}

// Sweep deletes expired sessions once and reports how many went.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	res, err := db.ExecWithRetry(ctx, s.db, `DELETE FROM app_session WHERE expires_at <= ?`, s.now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
