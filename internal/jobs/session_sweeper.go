// session_sweeper.go implements the SessionSweeper background job, which
// periodically deletes expired org sessions. Sessions are already invisible to
// authentication once past expires_at (GetSessionOrg filters on it), so the
// sweeper is pure housekeeping: it keeps the org_sessions table from growing
// without bound. It is always safe to start.
package jobs

import (
	"context"
	"log"
	"time"

	"github.com/clawtools/clawtools/internal/db/repositories"
	"github.com/clawtools/clawtools/internal/telemetry"
)

// SessionSweeper periodically purges expired org sessions.
type SessionSweeper struct {
	orgRepo  *repositories.OrgRepository
	interval time.Duration
	stopChan chan struct{}
}

// NewSessionSweeper creates a new SessionSweeper.
// intervalMinutes controls how often the sweep runs (default 60m).
func NewSessionSweeper(orgRepo *repositories.OrgRepository, intervalMinutes int) *SessionSweeper {
	minutes := intervalMinutes
	if minutes <= 0 {
		minutes = 60
	}
	return &SessionSweeper{
		orgRepo:  orgRepo,
		interval: time.Duration(minutes) * time.Minute,
		stopChan: make(chan struct{}),
	}
}

// Start begins the background sweep loop.
// It runs an initial sweep immediately, then repeats on the configured
// interval. The loop exits when ctx is cancelled or Stop() is called.
func (s *SessionSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("Session sweeper started (interval: %v)", s.interval)

	s.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.runSweep(ctx)
		case <-s.stopChan:
			log.Println("Session sweeper stopped")
			return
		case <-ctx.Done():
			log.Println("Session sweeper context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit.
func (s *SessionSweeper) Stop() {
	close(s.stopChan)
}

// runSweep deletes expired sessions and records the count.
func (s *SessionSweeper) runSweep(ctx context.Context) {
	deleted, err := s.orgRepo.DeleteExpiredSessions(ctx)
	if err != nil {
		log.Printf("Session sweeper: failed to delete expired sessions: %v", err)
		return
	}
	if deleted > 0 {
		telemetry.SessionsSweptTotal.Add(float64(deleted))
		log.Printf("Session sweeper: purged %d expired session(s)", deleted)
	}
}
