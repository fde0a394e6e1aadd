package jobs

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/config"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/monitoring"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/service"
)

// Scheduler runs the periodic jobs. Currently only the payment deadline
// expiration sweep, which is also triggerable on demand by administrators.
type Scheduler struct {
	cron          *cron.Cron
	winnerService service.WinnerService
	metrics       monitoring.MetricsService
	cfg           config.JobsConfig
}

func NewScheduler(winnerService service.WinnerService, metrics monitoring.MetricsService, cfg config.JobsConfig) *Scheduler {
	return &Scheduler{
		cron:          cron.New(),
		winnerService: winnerService,
		metrics:       metrics,
		cfg:           cfg,
	}
}

// Start registers the cron entries and launches the scheduler
func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		logrus.Info("Periodic jobs disabled")
		return nil
	}

	_, err := s.cron.AddFunc(s.cfg.ExpirationSweepSchedule, func() {
		s.runSweep(context.Background())
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	logrus.WithField("schedule", s.cfg.ExpirationSweepSchedule).
		Info("Expiration sweep scheduled")
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// RunSweepNow triggers the expiration sweep outside its schedule
func (s *Scheduler) RunSweepNow(ctx context.Context) (*service.SweepResult, error) {
	return s.winnerService.ExpireOverdueAuctions(ctx)
}

func (s *Scheduler) runSweep(ctx context.Context) {
	result, err := s.winnerService.ExpireOverdueAuctions(ctx)
	if err != nil {
		logrus.WithError(err).Error("Expiration sweep failed")
		return
	}
	s.metrics.RecordSweep(result.Processed, result.Errored)
}
