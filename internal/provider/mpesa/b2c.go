// internal/provider/mpesa/b2c.go
package mpesa

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"
	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/provider"
)

// B2CResultAdapter handles the B2C ResultURL. ResultCode 0 means the money left.
type B2CResultAdapter struct{}

func NewB2CResultAdapter() *B2CResultAdapter {
	return &B2CResultAdapter{}
}

func (a *B2CResultAdapter) Policy() provider.Policy {
	return provider.Policy{Source: domain.SourceMpesaB2CResult, FailOpen: false}
}

func parseB2CEnvelope(source domain.AuditSource, payload []byte) (*B2CResult, error) {
	var req B2CResultRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, domain.InvalidJSON(source, err)
	}
	if req.Result == nil {
		return nil, domain.NewParseError(source, "Result", "missing Result object")
	}
	if req.Result.ConversationID == "" && req.Result.OriginatorConversationID == "" {
		return nil, domain.NewParseError(source, "ConversationID", "conversation id is required")
	}
	return req.Result, nil
}

// Parse converts a B2C result into a normalized disbursement result.
func (a *B2CResultAdapter) Parse(payload []byte, headers http.Header) (*domain.DisbursementResult, error) {
	source := a.Policy().Source

	result, err := parseB2CEnvelope(source, payload)
	if err != nil {
		return nil, err
	}

	code := strings.TrimSpace(result.ResultCode.String())
	if code == "" {
		code = "1"
	}
	desc := result.ResultDesc
	if desc == "" {
		desc = "Unknown error"
	}

	params := result.ResultParameters.ResultParameter
	amount, _, err := domain.ParseAmount(params["TransactionAmount"])
	if err != nil {
		return nil, &domain.ParseError{Source: source, Field: "TransactionAmount", Err: err}
	}

	receipt := params.String("TransactionReceipt")
	if receipt == "" {
		receipt = result.TransactionID
	}

	return &domain.DisbursementResult{
		Source: source,
		Keys: domain.DisbursementKeys{
			ConversationID:           result.ConversationID,
			OriginatorConversationID: result.OriginatorConversationID,
		},
		Success:       code == "0",
		ResultCode:    code,
		ResultDesc:    desc,
		TransactionID: result.TransactionID,
		Receipt:       receipt,
		Amount:        amount,
		RecipientName: params.String("ReceiverPartyPublicName"),
		Signature:     provider.Signature(headers),
		Raw:           provider.Compact(payload),
	}, nil
}

// Render maps the reconciliation outcome to the M-Pesa callback acknowledgement.
func (a *B2CResultAdapter) Render(ev *domain.DisbursementResult, res *domain.Result, err error) provider.Ack {
	if err != nil || res == nil {
		if domain.IsMalformed(err) {
			return provider.Ack{Status: http.StatusBadRequest, Body: CallbackResponse{ResultCode: 1, ResultDesc: "Invalid B2C result data"}}
		}
		return provider.Ack{Status: http.StatusInternalServerError, Body: CallbackResponse{ResultCode: 1, ResultDesc: "Internal server error"}}
	}

	switch res.Outcome {
	case domain.OutcomeApplied:
		return provider.OK(CallbackResponse{ResultCode: 0, ResultDesc: "B2C callback processed successfully"})
	case domain.OutcomeAlreadyProcessed:
		return provider.OK(CallbackResponse{ResultCode: 0, ResultDesc: "B2C callback already processed"})
	case domain.OutcomeUnmatched:
		return provider.OK(CallbackResponse{ResultCode: 0, ResultDesc: "Received but transaction not found"})
	default:
		return provider.OK(CallbackResponse{ResultCode: 0, ResultDesc: "Received"})
	}
}

// TimeoutAdapter handles the B2C QueueTimeoutURL. It is fail-open: M-Pesa is
// always told the timeout was received.
type TimeoutAdapter struct{}

func NewTimeoutAdapter() *TimeoutAdapter {
	return &TimeoutAdapter{}
}

func (a *TimeoutAdapter) Policy() provider.Policy {
	return provider.Policy{Source: domain.SourceMpesaB2CTimeout, FailOpen: true}
}

func (a *TimeoutAdapter) Parse(payload []byte, headers http.Header) (*domain.DisbursementTimeout, error) {
	source := a.Policy().Source

	result, err := parseB2CEnvelope(source, payload)
	if err != nil {
		return nil, err
	}

	desc := result.ResultDesc
	if desc == "" {
		desc = "Request timed out"
	}

	return &domain.DisbursementTimeout{
		Source: source,
		Keys: domain.DisbursementKeys{
			ConversationID:           result.ConversationID,
			OriginatorConversationID: result.OriginatorConversationID,
		},
		ResultCode: result.ResultCode.String(),
		ResultDesc: desc,
		Raw:        provider.Compact(payload),
	}, nil
}

func (a *TimeoutAdapter) Render(ev *domain.DisbursementTimeout, res *domain.Result, err error) provider.Ack {
	if err != nil || res == nil {
		return provider.OK(CallbackResponse{ResultCode: 0, ResultDesc: "Received"})
	}

	switch res.Outcome {
	case domain.OutcomeApplied:
		return provider.OK(CallbackResponse{ResultCode: 0, ResultDesc: "Timeout processed successfully"})
	case domain.OutcomeUnmatched:
		return provider.OK(CallbackResponse{ResultCode: 0, ResultDesc: "Received but transaction not found"})
	default:
		return provider.OK(CallbackResponse{ResultCode: 0, ResultDesc: "Received"})
	}
}
