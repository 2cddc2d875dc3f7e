package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestDeduplicator_SentAfterMark(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer s.Close()

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	d := NewDeduplicator(rdb, time.Minute)
	ctx := context.Background()

	sent, err := d.Sent(ctx, "mail-1")
	if err != nil {
		t.Fatalf("first check: %v", err)
	}
	if sent {
		t.Fatalf("expected unseen mail")
	}

	// 查询本身不能占用记录
	sent, err = d.Sent(ctx, "mail-1")
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if sent {
		t.Fatalf("check must not mark mail as sent")
	}

	if err := d.MarkSent(ctx, "mail-1"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	sent, err = d.Sent(ctx, "mail-1")
	if err != nil {
		t.Fatalf("check after mark: %v", err)
	}
	if !sent {
		t.Fatalf("expected mail to be marked as sent")
	}

	s.FastForward(2 * time.Minute)
	sent, err = d.Sent(ctx, "mail-1")
	if err != nil {
		t.Fatalf("check after ttl: %v", err)
	}
	if sent {
		t.Fatalf("expected record to expire")
	}
}

func TestDeduplicator_NilSafe(t *testing.T) {
	var d *Deduplicator
	sent, err := d.Sent(context.Background(), "mail-1")
	if err != nil || sent {
		t.Fatalf("nil deduplicator should never report sent mail")
	}
	if err := d.MarkSent(context.Background(), "mail-1"); err != nil {
		t.Fatalf("nil mark: %v", err)
	}
}
