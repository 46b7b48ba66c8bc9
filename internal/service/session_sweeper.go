package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

const DefaultSweepInterval = time.Hour

type ExpiredSessionSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

type AttemptCleaner interface {
	CleanupExpiredAttempts(ctx context.Context) (int, error)
}

// SessionSweeper periodically deletes expired sessions and stale login failures. A tick
// that arrives while a sweep is running is skipped.
type SessionSweeper struct {
	sessions ExpiredSessionSweeper
	attempts AttemptCleaner
	interval time.Duration
	timeout  time.Duration
	running  atomic.Bool
	logger   *slog.Logger
}

func NewSessionSweeper(sessions ExpiredSessionSweeper, attempts AttemptCleaner, interval, timeout time.Duration, logger *slog.Logger) *SessionSweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionSweeper{sessions: sessions, attempts: attempts, interval: interval, timeout: timeout, logger: logger}
}

// Run blocks until ctx is done.
func (s *SessionSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs one sweep and reports whether it ran.
func (s *SessionSweeper) SweepOnce(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		return false
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	removed, err := s.sessions.SweepExpired(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "expired session sweep failed",
			"module", "session_sweeper",
			"operation", "sweep_expired",
			"outcome", "error",
			"error", err,
		)
	} else if removed > 0 {
		s.logger.InfoContext(ctx, "expired sessions removed",
			"module", "session_sweeper",
			"operation", "sweep_expired",
			"outcome", "success",
			"removed", removed,
		)
	}
	if s.attempts != nil {
		if _, err := s.attempts.CleanupExpiredAttempts(ctx); err != nil {
			s.logger.WarnContext(ctx, "login attempt cleanup failed",
				"module", "session_sweeper",
				"operation", "cleanup_attempts",
				"outcome", "error",
				"error", err,
			)
		}
	}
	return true
}
