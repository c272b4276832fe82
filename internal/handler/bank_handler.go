// internal/handler/bank_handler.go
package handler

import (
	"net/http"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/provider/bank"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/provider/kcb"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/usecase"

	"go.uber.org/zap"
)

// BankHandler serves the KCB callbacks and the generic bank webhook.
type BankHandler struct {
	reconcileUC  *usecase.ReconcileUsecase
	validation   *kcb.ValidationAdapter
	notification *kcb.NotificationAdapter
	transfer     *kcb.TransferAdapter
	webhook      *bank.WebhookAdapter
	logger       *zap.Logger
}

// NewBankHandler builds the bank endpoints. creditAccount is echoed to KCB on a
// successful validation.
func NewBankHandler(reconcileUC *usecase.ReconcileUsecase, creditAccount string, logger *zap.Logger) *BankHandler {
	return &BankHandler{
		reconcileUC:  reconcileUC,
		validation:   kcb.NewValidationAdapter(creditAccount),
		notification: kcb.NewNotificationAdapter(),
		transfer:     kcb.NewTransferAdapter(),
		webhook:      bank.NewWebhookAdapter(),
		logger:       logger,
	}
}

func (h *BankHandler) HandleKCBValidation(w http.ResponseWriter, r *http.Request) {
	serve(w, r, h.reconcileUC, h.validation, h.reconcileUC.ValidateAccount, h.logger)
}

func (h *BankHandler) HandleKCBNotification(w http.ResponseWriter, r *http.Request) {
	serve(w, r, h.reconcileUC, h.notification, h.reconcileUC.ApplyCollection, h.logger)
}

func (h *BankHandler) HandleKCBTransfer(w http.ResponseWriter, r *http.Request) {
	serve(w, r, h.reconcileUC, h.transfer, h.reconcileUC.ApplyDisbursementResult, h.logger)
}

// HandleBankWebhook routes a generic bank notification by its account reference.
func (h *BankHandler) HandleBankWebhook(w http.ResponseWriter, r *http.Request) {
	serve(w, r, h.reconcileUC, h.webhook, h.reconcileUC.ProcessBankWebhook, h.logger)
}
