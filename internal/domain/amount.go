package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Nairobi is the zone gateway timestamps without an offset are read in.
var Nairobi = time.FixedZone("EAT", 3*60*60)

// FlexAmount decodes an amount sent either as a JSON number or as a numeric string.
type FlexAmount struct {
	Value decimal.Decimal
	Set   bool
}

func (a *FlexAmount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		s, err := strconv.Unquote(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
		}
		raw = s
	}
	d, ok, err := parseAmountString(raw)
	if err != nil {
		return err
	}
	a.Value, a.Set = d, ok
	return nil
}

// FlexString decodes a field sent either as a JSON string or a JSON number (phone numbers, bill refs).
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = FlexString(n.String())
	return nil
}

func (s FlexString) String() string { return string(s) }

// ParseAmount converts a loosely typed JSON value into a decimal amount.
// ok is false when the value is absent or blank.
func ParseAmount(v interface{}) (d decimal.Decimal, ok bool, err error) {
	switch val := v.(type) {
	case nil:
		return decimal.Zero, false, nil
	case json.Number:
		return parseAmountString(val.String())
	case string:
		return parseAmountString(val)
	case float64:
		return decimal.NewFromFloat(val), true, nil
	case float32:
		return decimal.NewFromFloat32(val), true, nil
	case int:
		return decimal.NewFromInt(int64(val)), true, nil
	case int64:
		return decimal.NewFromInt(val), true, nil
	default:
		return decimal.Zero, false, fmt.Errorf("%w: unsupported type %T", ErrInvalidAmount, v)
	}
}

func parseAmountString(s string) (decimal.Decimal, bool, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return decimal.Zero, false, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, true, nil
}

var gatewayTimeLayouts = []string{
	"20060102150405",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseGatewayTime reads the timestamp formats gateways send. Unparseable or empty
// values fall back to now, the same as the gateways' own receipts.
func ParseGatewayTime(s string, now time.Time) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return now
	}
	for _, layout := range gatewayTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, Nairobi); err == nil {
			return t
		}
	}
	return now
}

// FormatKES renders an amount with two decimal places.
func FormatKES(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// FormatMoney renders an amount with thousands separators, e.g. 15,000.00.
func FormatMoney(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	intPart, frac := s[:len(s)-3], s[len(s)-3:]

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteString(frac)
	return b.String()
}
