// internal/handler/webhook.go
package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/provider"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/usecase"

	"go.uber.org/zap"
)

// maxPayloadBytes bounds a single gateway callback.
const maxPayloadBytes = 1 << 20

// adapter is the protocol half of one gateway endpoint.
type adapter[E any] interface {
	Policy() provider.Policy
	Parse(payload []byte, headers http.Header) (E, error)
	Render(ev E, res *domain.Result, err error) provider.Ack
}

// serve runs one callback through parse, apply and render. Everything is
// synchronous: the acknowledgement is only written once the ledger outcome is known.
func serve[E any](
	w http.ResponseWriter,
	r *http.Request,
	uc *usecase.ReconcileUsecase,
	a adapter[E],
	apply func(ctx context.Context, ev E) (*domain.Result, error),
	logger *zap.Logger,
) {
	ctx := r.Context()
	policy := a.Policy()
	start := time.Now()

	logger.Info("received gateway callback",
		zap.String("source", string(policy.Source)),
		zap.String("remote_addr", r.RemoteAddr))

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		logger.Error("failed to read callback payload",
			zap.String("source", string(policy.Source)),
			zap.Error(err))
	}

	var (
		ack provider.Ack
		ev  E
	)
	if err == nil {
		payload = provider.Clean(payload)
		ev, err = a.Parse(payload, r.Header)
	} else {
		err = domain.NewParseError(policy.Source, "body", "unreadable request body")
	}

	if err != nil {
		rerr := uc.RecordRejected(ctx, policy.Source, provider.Compact(payload), provider.Signature(r.Header), err)
		ack = a.Render(ev, nil, rerr)
	} else {
		res, aerr := apply(ctx, ev)
		ack = a.Render(ev, res, aerr)
		if aerr != nil && policy.FailOpen {
			logger.Warn("fail-open gateway acknowledged after internal failure",
				zap.String("source", string(policy.Source)),
				zap.Error(aerr))
		}
	}

	logger.Info("gateway callback acknowledged",
		zap.String("source", string(policy.Source)),
		zap.Int("status", ack.Status),
		zap.Duration("duration", time.Since(start)))

	writeAck(w, ack, logger)
}

func writeAck(w http.ResponseWriter, ack provider.Ack, logger *zap.Logger) {
	status := ack.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(ack.Body); err != nil {
		logger.Error("failed to encode acknowledgement", zap.Error(err))
	}
}
