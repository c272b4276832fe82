package accountref

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"

	"github.com/shopspring/decimal"
)

// Candidate field names, tried in order. External banks do not agree on naming.
var (
	AccountRefAliases     = []string{"account_number", "account_ref", "reference", "customer_ref", "bill_ref"}
	AmountAliases         = []string{"amount", "trans_amount", "transaction_amount", "paid_amount"}
	TransactionRefAliases = []string{"transaction_ref", "transaction_id", "trans_id", "reference", "receipt_number"}
	DateAliases           = []string{"transaction_date", "trans_date", "date", "payment_date"}
	NarrationAliases      = []string{"narration", "description", "remarks"}
	PayerNameAliases      = []string{"payer_name", "customer_name", "sender_name", "name"}
	BankNameAliases       = []string{"bank", "bank_name"}
	SenderAccountAliases  = []string{"sender_account", "debit_account", "source_account"}
)

const (
	BankNameHeader  = "X-Bank-Name"
	DefaultBankName = "Generic Bank"
)

// FirstString returns the first alias present with a non-empty value. Numbers
// are rendered without exponent so numeric account references survive.
func FirstString(fields map[string]interface{}, aliases []string) (string, bool) {
	for _, key := range aliases {
		v, ok := fields[key]
		if !ok || v == nil {
			continue
		}
		var s string
		switch val := v.(type) {
		case string:
			s = val
		case json.Number:
			s = val.String()
		case float64:
			s = decimal.NewFromFloat(val).String()
		case bool:
			continue
		default:
			s = fmt.Sprint(val)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s, true
		}
	}
	return "", false
}

// FirstAmount returns the first alias that holds a positive amount. Zero and
// negative values are skipped so a placeholder field does not hide the real one.
func FirstAmount(fields map[string]interface{}, aliases []string) (decimal.Decimal, bool, error) {
	for _, key := range aliases {
		v, ok := fields[key]
		if !ok {
			continue
		}
		d, present, err := domain.ParseAmount(v)
		if err != nil {
			return decimal.Zero, false, fmt.Errorf("field %s: %w", key, err)
		}
		if present && d.IsPositive() {
			return d, true, nil
		}
	}
	return decimal.Zero, false, nil
}

// BankName prefers the X-Bank-Name header, then the body, then a generic label.
func BankName(headers http.Header, fields map[string]interface{}) string {
	if headers != nil {
		if name := strings.TrimSpace(headers.Get(BankNameHeader)); name != "" {
			return name
		}
	}
	if name, ok := FirstString(fields, BankNameAliases); ok {
		return name
	}
	return DefaultBankName
}
