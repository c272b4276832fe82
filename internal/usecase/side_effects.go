package usecase

import (
	"context"
	"fmt"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/metrics"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/pkg/events"

	"go.uber.org/zap"
)

type sideEffect struct {
	kind string
	fn   func(ctx context.Context) error
}

// afterCommit runs post-commit work on its own goroutine with its own deadline,
// so a slow SMS gateway or broker never holds the webhook response.
func (uc *ReconcileUsecase) afterCommit(effects ...sideEffect) {
	if len(effects) == 0 {
		return
	}
	uc.effects.Add(1)
	go func() {
		defer uc.effects.Done()

		ctx, cancel := context.WithTimeout(context.Background(), uc.cfg.NotifyTimeout)
		defer cancel()

		for _, e := range effects {
			if err := uc.runEffect(ctx, e); err != nil {
				metrics.SideEffectFailed(e.kind)
				uc.logger.Warn("post-commit side effect failed",
					zap.String("kind", e.kind),
					zap.Error(err))
			}
		}
	}()
}

func (uc *ReconcileUsecase) runEffect(ctx context.Context, e sideEffect) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", e.kind, r)
		}
	}()
	return e.fn(ctx)
}

// Wait blocks until in-flight side effects finish. Called on shutdown and in tests.
func (uc *ReconcileUsecase) Wait() {
	uc.effects.Wait()
}

func (uc *ReconcileUsecase) notifyEffect(to domain.Contact, category string, vars map[string]string) sideEffect {
	return sideEffect{kind: "notify", fn: func(ctx context.Context) error {
		if to.IsEmpty() {
			uc.logger.Debug("notification skipped, no contact", zap.String("category", category))
			return nil
		}
		return uc.notifier.Notify(ctx, to, category, vars)
	}}
}

func (uc *ReconcileUsecase) publishEffect(ev events.LedgerEvent) sideEffect {
	return sideEffect{kind: "publish", fn: func(ctx context.Context) error {
		if ev.ID == "" {
			ev.ID = events.NewEventID()
		}
		return uc.publisher.Publish(ctx, ev)
	}}
}

func (uc *ReconcileUsecase) rememberEffect(channel, ref string) sideEffect {
	return sideEffect{kind: "cache", fn: func(ctx context.Context) error {
		return uc.guard.Remember(ctx, channel, ref)
	}}
}
