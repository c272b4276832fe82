package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type stubCounter struct {
	counts map[domain.AuditStatus]int64
	err    error
	window time.Duration
	calls  int
}

func (s *stubCounter) RecoveryBacklog(ctx context.Context, window time.Duration) (map[domain.AuditStatus]int64, error) {
	s.calls++
	s.window = window
	return s.counts, s.err
}

func TestReportBacklog(t *testing.T) {
	t.Run("warns when rows are pending", func(t *testing.T) {
		core, logs := observer.New(zap.DebugLevel)
		counter := &stubCounter{counts: map[domain.AuditStatus]int64{
			domain.AuditUnknown: 2,
			domain.AuditOffline: 1,
		}}
		s := NewScheduler(counter, SchedulerConfig{}, zap.New(core))

		s.ReportBacklog()

		if counter.window != 24*time.Hour {
			t.Fatalf("expected default window 24h, got %s", counter.window)
		}
		warns := logs.FilterMessage("webhooks pending manual recovery").All()
		if len(warns) != 1 {
			t.Fatalf("expected one warning, got %d", len(warns))
		}
		if total := warns[0].ContextMap()["total"]; total != int64(3) {
			t.Fatalf("expected total 3, got %v", total)
		}
	})

	t.Run("quiet when nothing is pending", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		s := NewScheduler(&stubCounter{counts: map[domain.AuditStatus]int64{}}, SchedulerConfig{}, zap.New(core))

		s.ReportBacklog()

		if logs.Len() != 0 {
			t.Fatalf("expected no logs at info, got %d", logs.Len())
		}
	})

	t.Run("logs counter errors", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		s := NewScheduler(&stubCounter{err: errors.New("db down")}, SchedulerConfig{}, zap.New(core))

		s.ReportBacklog()

		if logs.FilterMessage("recovery report failed").Len() != 1 {
			t.Fatal("expected an error log")
		}
	})
}

func TestSchedulerStartRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(&stubCounter{}, SchedulerConfig{Schedule: "every now and then"}, zap.NewNop())
	if err := s.Start(); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestSchedulerStartStop(t *testing.T) {
	s := NewScheduler(&stubCounter{}, SchedulerConfig{Schedule: "@every 1h"}, zap.NewNop())
	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-s.Stop().Done()
}
