package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"cashback/internal/log"
)

// DefaultWarmSchedule runs shortly after midnight, once the previous day has closed.
const DefaultWarmSchedule = "15 0 * * *"

// warmTimeout bounds one scheduled price fetch.
const warmTimeout = 30 * time.Second

// Scheduler runs the daily price warm on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	logger *log.Logger
}

// NewScheduler registers the warm job under spec, a standard five-field cron expression.
func NewScheduler(spec string, w *SyncWorker, logger *log.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if spec == "" {
		spec = DefaultWarmSchedule
	}
	s := &Scheduler{
		cron:   cron.New(),
		logger: logger.WithComponent(log.ComponentWorker),
	}
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), warmTimeout)
		defer cancel()
		if w.WarmYesterday(ctx) {
			s.logger.Info("Scheduled price warm completed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule price warm %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.logger.Info("Price warm scheduled", "next_run", e.Next.Format(time.RFC3339))
	}
}

// Stop halts scheduling and waits for a running job, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("Scheduled job still running at shutdown")
	}
}
