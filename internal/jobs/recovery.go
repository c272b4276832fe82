// internal/jobs/recovery.go
package jobs

import (
	"context"
	"time"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/metrics"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// BacklogCounter counts audit rows still waiting for manual recovery.
type BacklogCounter interface {
	RecoveryBacklog(ctx context.Context, window time.Duration) (map[domain.AuditStatus]int64, error)
}

type SchedulerConfig struct {
	Schedule string
	Window   time.Duration
	Timeout  time.Duration
}

// Scheduler periodically reports unknown, error and offline webhooks so
// somebody replays them before the gateway's own retention runs out.
type Scheduler struct {
	cron    *cron.Cron
	counter BacklogCounter
	cfg     SchedulerConfig
	logger  *zap.Logger
}

func NewScheduler(counter BacklogCounter, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 15m"
	}
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{cron: c, counter: counter, cfg: cfg, logger: logger}
}

// Start registers the recovery report and starts the scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.Schedule, s.ReportBacklog); err != nil {
		s.logger.Error("failed to schedule recovery report", zap.String("schedule", s.cfg.Schedule), zap.Error(err))
		return err
	}
	s.logger.Info("scheduled recovery report", zap.String("schedule", s.cfg.Schedule))
	s.cron.Start()
	return nil
}

// Stop stops the scheduler; the returned context is done once a running job finishes.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// ReportBacklog publishes the backlog gauges and warns when anything is pending.
func (s *Scheduler) ReportBacklog() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	counts, err := s.counter.RecoveryBacklog(ctx, s.cfg.Window)
	if err != nil {
		s.logger.Error("recovery report failed", zap.Error(err))
		return
	}

	var total int64
	fields := make([]zap.Field, 0, len(domain.RecoveryStatuses)+2)
	for _, status := range domain.RecoveryStatuses {
		n := counts[status]
		total += n
		metrics.SetRecoveryPending(string(status), n)
		fields = append(fields, zap.Int64(string(status), n))
	}

	if total == 0 {
		s.logger.Debug("no webhooks pending recovery", zap.Duration("window", s.cfg.Window))
		return
	}
	fields = append(fields, zap.Int64("total", total), zap.Duration("window", s.cfg.Window))
	s.logger.Warn("webhooks pending manual recovery", fields...)
}
