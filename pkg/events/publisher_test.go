package events

import (
	"context"
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestNewEventIDIsULID(t *testing.T) {
	a, b := NewEventID(), NewEventID()
	if a == b {
		t.Fatalf("expected distinct ids, got %s twice", a)
	}
	if _, err := ulid.ParseStrict(a); err != nil {
		t.Fatalf("expected valid ulid, got %v", err)
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	if err := p.Publish(context.Background(), LedgerEvent{Type: TypePaymentReceived}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
