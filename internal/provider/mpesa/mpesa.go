// internal/provider/mpesa/mpesa.go
package mpesa

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"
)

// ============================================
// B2C (Business to Customer) RESULT / TIMEOUT
// ============================================

// B2CResultRequest is the envelope M-Pesa posts to both the B2C ResultURL and QueueTimeoutURL.
type B2CResultRequest struct {
	Result *B2CResult `json:"Result"`
}

type B2CResult struct {
	ResultType               domain.FlexString `json:"ResultType"`
	ResultCode               domain.FlexString `json:"ResultCode"`
	ResultDesc               string            `json:"ResultDesc"`
	OriginatorConversationID string            `json:"OriginatorConversationID"`
	ConversationID           string            `json:"ConversationID"`
	TransactionID            string            `json:"TransactionID"`
	ResultParameters         ResultParameters  `json:"ResultParameters"`
}

type ResultParameters struct {
	ResultParameter ParameterList `json:"ResultParameter"`
}

// ParameterList holds ResultParameter entries by key. M-Pesa sends an array of
// {Key, Value} pairs, a single pair when there is only one, and some sandboxes a
// plain key/value object.
type ParameterList map[string]interface{}

func (p *ParameterList) UnmarshalJSON(data []byte) error {
	out := make(ParameterList)
	data = bytes.TrimSpace(data)

	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
	case data[0] == '[':
		var items []keyValue
		if err := decodeNumbers(data, &items); err != nil {
			return fmt.Errorf("ResultParameter: %w", err)
		}
		for _, it := range items {
			if it.Key != "" {
				out[it.Key] = it.Value
			}
		}
	case data[0] == '{':
		var single keyValue
		if err := decodeNumbers(data, &single); err == nil && single.Key != "" {
			out[single.Key] = single.Value
			break
		}
		var m map[string]interface{}
		if err := decodeNumbers(data, &m); err != nil {
			return fmt.Errorf("ResultParameter: %w", err)
		}
		for k, v := range m {
			out[k] = v
		}
	default:
		return fmt.Errorf("ResultParameter: unexpected JSON %q", data[0])
	}

	*p = out
	return nil
}

type keyValue struct {
	Key   string      `json:"Key"`
	Value interface{} `json:"Value"`
}

func (p ParameterList) String(key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func decodeNumbers(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// ============================================
// C2B (Customer to Business) PAYBILL
// ============================================

// C2BRequest is posted to both the validation and confirmation URLs.
type C2BRequest struct {
	TransactionType   string            `json:"TransactionType"`
	TransID           domain.FlexString `json:"TransID"`
	TransTime         domain.FlexString `json:"TransTime"`
	TransAmount       domain.FlexAmount `json:"TransAmount"`
	BusinessShortCode domain.FlexString `json:"BusinessShortCode"`
	BillRefNumber     domain.FlexString `json:"BillRefNumber"`
	InvoiceNumber     domain.FlexString `json:"InvoiceNumber"`
	OrgAccountBalance domain.FlexString `json:"OrgAccountBalance"`
	ThirdPartyTransID domain.FlexString `json:"ThirdPartyTransID"`
	MSISDN            domain.FlexString `json:"MSISDN"`
	FirstName         string            `json:"FirstName"`
	MiddleName        string            `json:"MiddleName"`
	LastName          string            `json:"LastName"`
}

// ============================================
// RESPONSES
// ============================================

// CallbackResponse is the acknowledgement for result, timeout and confirmation URLs.
type CallbackResponse struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// ValidationResponse is the acknowledgement for the C2B validation URL, where
// ResultCode is a string ("0" to accept, "C2B000xx" to reject).
type ValidationResponse struct {
	ResultCode string `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}
