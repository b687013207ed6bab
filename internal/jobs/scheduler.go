package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fuomag9/paperdrive/internal/logger"
)

// SessionCleaner purges handshake states past their expiry.
type SessionCleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// Scheduler manages background jobs
type Scheduler struct {
	cron     *cron.Cron
	sessions SessionCleaner
	timeout  time.Duration
	log      *logger.Logger
}

// NewScheduler creates a new job scheduler
func NewScheduler(sessions SessionCleaner, log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		sessions: sessions,
		timeout:  time.Minute,
		log:      log.With("component", "jobs"),
	}
}

// Start registers the jobs and starts the scheduler
func (s *Scheduler) Start() error {
	// Expired states are already rejected on use; this only keeps the table small.
	if _, err := s.cron.AddFunc("@every 10m", s.cleanupSessions); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("Job scheduler started")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("Job scheduler stopped")
}

func (s *Scheduler) cleanupSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.sessions.Cleanup(ctx); err != nil {
		s.log.Error("Failed to clean up expired oauth sessions", "error", err)
	}
}
