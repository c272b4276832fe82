// internal/provider/provider.go
package provider

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"
)

// Ack is the gateway-specific acknowledgement an adapter renders. Body is
// encoded as JSON with the gateway's own field names.
type Ack struct {
	Status int
	Body   interface{}
}

func OK(body interface{}) Ack {
	return Ack{Status: http.StatusOK, Body: body}
}

// Policy is the per-gateway error policy. A fail-open gateway is always told the
// delivery succeeded, and internal failures are left for offline recovery.
type Policy struct {
	Source   domain.AuditSource
	FailOpen bool
}

// SignatureHeaders are captured (truncated) into the audit trail. They are not verified.
var SignatureHeaders = []string{"X-Signature", "Signature", "X-KCB-Signature"}

// Signature returns the first signature header present, truncated for audit.
func Signature(h http.Header) string {
	if h == nil {
		return ""
	}
	for _, name := range SignatureHeaders {
		if v := h.Get(name); v != "" {
			return domain.TruncateSignature(v)
		}
	}
	return ""
}

// Clean makes a raw payload safe to parse and store: invalid UTF-8 becomes
// U+FFFD and NUL characters are removed from JSON strings and keys.
func Clean(payload []byte) []byte {
	payload = bytes.ToValidUTF8(payload, []byte("\uFFFD"))
	if bytes.Contains(payload, []byte(`\u0000`)) {
		payload = stripNUL(payload)
	}
	return payload
}

// Compact normalizes a raw payload for storage, keeping the original bytes when
// they are not valid JSON. The result is always acceptable to a JSONB column.
func Compact(payload []byte) json.RawMessage {
	payload = Clean(payload)

	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		quoted, _ := json.Marshal(map[string]string{"raw": domain.CleanText(string(payload))})
		return quoted
	}
	return buf.Bytes()
}

// stripNUL re-encodes a document without NUL characters in its strings and keys.
func stripNUL(data []byte) []byte {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return bytes.ReplaceAll(data, []byte(`\u0000`), nil)
	}
	out, err := json.Marshal(cleanValue(v))
	if err != nil {
		return bytes.ReplaceAll(data, []byte(`\u0000`), nil)
	}
	return out
}

func cleanValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return domain.CleanText(val)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, x := range val {
			out[domain.CleanText(k)] = cleanValue(x)
		}
		return out
	case []interface{}:
		for i := range val {
			val[i] = cleanValue(val[i])
		}
		return val
	default:
		return v
	}
}
