package provider

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestCompact(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{name: "valid json", payload: "{ \"a\" : 1 }", want: `{"a":1}`},
		{name: "not json", payload: "plain text", want: `{"raw":"plain text"}`},
		{name: "nul escape in value", payload: `{"name":"D\u0000oe","n":12.50}`, want: `{"n":12.50,"name":"Doe"}`},
		{name: "nul escape in key", payload: `{"x\u0000y":true}`, want: `{"xy":true}`},
		{name: "invalid utf8", payload: "{\"name\":\"J\xffohn\"}", want: "{\"name\":\"J\uFFFDohn\"}"},
		{name: "raw nul byte", payload: "not\x00json", want: `{"raw":"notjson"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compact([]byte(tt.payload))
			if string(got) != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
			if !json.Valid(got) || !utf8.Valid(got) || bytes.Contains(got, []byte(`\u0000`)) {
				t.Fatalf("compacted payload is not storable: %q", got)
			}
		})
	}
}

func TestCleanKeepsNumbers(t *testing.T) {
	got := Clean([]byte(`{"amount":1500.00,"items":["a\u0000",7]}`))

	var v map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(got))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		t.Fatalf("cleaned payload does not decode: %v", err)
	}
	if v["amount"] != json.Number("1500.00") {
		t.Fatalf("expected amount 1500.00, got %v", v["amount"])
	}
	if items := v["items"].([]interface{}); items[0] != "a" {
		t.Fatalf("expected NUL stripped from array, got %q", items[0])
	}
}

func TestSignature(t *testing.T) {
	h := http.Header{}
	if got := Signature(h); got != "" {
		t.Fatalf("expected empty signature, got %q", got)
	}

	h.Set("Signature", strings.Repeat("ü", 70))
	got := Signature(h)
	if !utf8.ValidString(got) || !strings.HasSuffix(got, "...") {
		t.Fatalf("unexpected signature %q", got)
	}

	h.Set("X-Signature", "primary")
	if got := Signature(h); got != "primary" {
		t.Fatalf("expected X-Signature to win, got %q", got)
	}
}
