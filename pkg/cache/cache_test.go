package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func TestNilCacheIsNoop(t *testing.T) {
	var c *ReferenceCache
	seen, err := c.Seen(context.Background(), "mpesa", "ABC123")
	if err != nil || seen {
		t.Fatalf("expected nil cache to report unseen, got %v %v", seen, err)
	}
	if err := c.Remember(context.Background(), "mpesa", "ABC123"); err != nil {
		t.Fatalf("expected nil cache remember to succeed, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("expected nil close to succeed, got %v", err)
	}
}

func TestReferenceKey(t *testing.T) {
	if got := ReferenceKey("mpesa", "ABC123"); got != "payments:ref:v1:mpesa:ABC123" {
		t.Fatalf("unexpected key %s", got)
	}
}

func TestUnreachableRedisReturnsError(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := NewReferenceCacheFromClient(client, 0, zap.NewNop())
	defer c.Close()

	if c.ttl != 72*time.Hour {
		t.Fatalf("expected default ttl, got %s", c.ttl)
	}

	seen, err := c.Seen(context.Background(), "bank", "T1")
	if err == nil {
		t.Fatalf("expected error from unreachable redis")
	}
	if seen {
		t.Fatalf("expected unseen on error")
	}
}
