package cache

import (
	"context"
	"testing"
	"time"

	"bithumbot/internal/model"
)

func TestNewSnapshotCacheEmptyAddrIsNoOp(t *testing.T) {
	c, err := NewSnapshotCache("", 0, time.Minute)
	if err != nil {
		t.Fatalf("NewSnapshotCache with empty addr returned error: %v", err)
	}
	if c != nil {
		t.Fatalf("NewSnapshotCache with empty addr = %v, want nil", c)
	}
}

func TestNilSnapshotCacheMethodsAreSafeNoOps(t *testing.T) {
	var c *SnapshotCache

	if c.IsHealthy() {
		t.Error("nil cache should report unhealthy")
	}

	// Set must not panic on a nil receiver.
	c.Set(context.Background(), "BTC", model.Snapshot{Coin: "BTC"})

	if _, ok := c.Get(context.Background(), "BTC"); ok {
		t.Error("Get on a nil cache should report a miss")
	}

	if err := c.Close(); err != nil {
		t.Errorf("Close on a nil cache = %v, want nil", err)
	}
}
