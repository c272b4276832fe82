// internal/handler/callback_handler.go
package handler

import (
	"net/http"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/provider/mpesa"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/usecase"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CallbackHandler serves the M-Pesa B2C and C2B callbacks.
type CallbackHandler struct {
	reconcileUC  *usecase.ReconcileUsecase
	b2cResult    *mpesa.B2CResultAdapter
	b2cTimeout   *mpesa.TimeoutAdapter
	confirmation *mpesa.ConfirmationAdapter
	validation   *mpesa.ValidationAdapter
	logger       *zap.Logger
}

func NewCallbackHandler(reconcileUC *usecase.ReconcileUsecase, minPaybillAmount decimal.Decimal, logger *zap.Logger) *CallbackHandler {
	return &CallbackHandler{
		reconcileUC:  reconcileUC,
		b2cResult:    mpesa.NewB2CResultAdapter(),
		b2cTimeout:   mpesa.NewTimeoutAdapter(),
		confirmation: mpesa.NewConfirmationAdapter(),
		validation:   mpesa.NewValidationAdapter(minPaybillAmount),
		logger:       logger,
	}
}

// HandleB2CResult handles the B2C ResultURL callback.
func (h *CallbackHandler) HandleB2CResult(w http.ResponseWriter, r *http.Request) {
	serve(w, r, h.reconcileUC, h.b2cResult, h.reconcileUC.ApplyDisbursementResult, h.logger)
}

// HandleB2CTimeout handles the B2C QueueTimeOutURL callback.
func (h *CallbackHandler) HandleB2CTimeout(w http.ResponseWriter, r *http.Request) {
	serve(w, r, h.reconcileUC, h.b2cTimeout, h.reconcileUC.ApplyDisbursementTimeout, h.logger)
}

func (h *CallbackHandler) HandleC2BValidation(w http.ResponseWriter, r *http.Request) {
	serve(w, r, h.reconcileUC, h.validation, h.reconcileUC.ValidateAccount, h.logger)
}

func (h *CallbackHandler) HandleC2BConfirmation(w http.ResponseWriter, r *http.Request) {
	serve(w, r, h.reconcileUC, h.confirmation, h.reconcileUC.ApplyCollection, h.logger)
}
