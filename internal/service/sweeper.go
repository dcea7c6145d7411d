package service

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	registrystore "github.com/consulta/advisor-service/internal/registry/store"
	"github.com/consulta/advisor-service/internal/security"
)

// SessionSweeper periodically deletes expired session rows in batches.
// Expired sessions are already rejected at auth time; the sweeper only keeps
// the table from growing without bound.
type SessionSweeper struct {
	store    registrystore.AdvisorStore
	interval time.Duration
	batch    int
}

// NewSessionSweeper creates a sweeper. A non-positive interval disables it.
func NewSessionSweeper(store registrystore.AdvisorStore, interval time.Duration, batchSize int) *SessionSweeper {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &SessionSweeper{
		store:    store,
		interval: interval,
		batch:    batchSize,
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *SessionSweeper) Start(ctx context.Context) {
	if s == nil || s.store == nil || s.interval <= 0 {
		log.Info("Session sweeper disabled")
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *SessionSweeper) sweepOnce(ctx context.Context) {
	var total int64
	for {
		n, err := s.store.DeleteExpiredSessions(ctx, time.Now(), s.batch)
		if err != nil {
			log.Error("Session sweep failed", "err", err)
			return
		}
		total += n
		// A short batch means the table is drained.
		if n < int64(s.batch) {
			break
		}
	}
	if total > 0 {
		if security.SessionsSweptTotal != nil {
			security.SessionsSweptTotal.Add(float64(total))
		}
		log.Info("Session sweep", "deleted", total)
	}
}
