package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T) (*RedisClient, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	client := newRedisClientWith(rc, RedisOptions{
		Stream:   "jobs:test",
		Group:    "workers",
		Consumer: "worker-1",
		// Non-blocking reads keep the tests from waiting on an empty
		// stream.
		BlockMs:     -1,
		MaxAttempts: 3,
	})
	if err := client.EnsureGroup(context.Background()); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	return client, rc
}

func TestRedisClientSendAndRead(t *testing.T) {
	client, _ := newTestQueue(t)
	ctx := context.Background()

	sent := Message{JobID: "job-1", RequestID: "req-1", EnqueuedAt: "2026-01-02T03:04:05Z", Version: 1}
	if err := client.Send(ctx, sent); err != nil {
		t.Fatalf("send: %v", err)
	}

	d, err := client.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if d == nil || d.MessageID == "" {
		t.Fatalf("expected a delivery, got %+v", d)
	}
	got, err := DecodeMessage([]byte(d.Body))
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got != sent {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, sent)
	}

	// Nothing else pending for this consumer.
	d, err = client.Read(ctx)
	if err != nil {
		t.Fatalf("read empty: %v", err)
	}
	if d != nil {
		t.Fatalf("expected no delivery, got %+v", d)
	}
}

func TestRedisClientAckClearsPending(t *testing.T) {
	client, _ := newTestQueue(t)
	ctx := context.Background()

	if err := client.Send(ctx, Message{JobID: "job-1", Version: 1}); err != nil {
		t.Fatalf("send: %v", err)
	}
	d, err := client.Read(ctx)
	if err != nil || d == nil {
		t.Fatalf("read: %v (%+v)", err, d)
	}

	count, err := client.DeliveryCount(ctx, d.MessageID)
	if err != nil {
		t.Fatalf("delivery count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected delivery count 1, got %d", count)
	}

	if err := client.Ack(ctx, d.MessageID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	count, err = client.DeliveryCount(ctx, d.MessageID)
	if err != nil {
		t.Fatalf("delivery count after ack: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no pending entry after ack, got %d", count)
	}
}

func TestRedisClientDeadLetter(t *testing.T) {
	client, rc := newTestQueue(t)
	ctx := context.Background()

	if err := client.Send(ctx, Message{JobID: "job-1", Version: 1}); err != nil {
		t.Fatalf("send: %v", err)
	}
	d, err := client.Read(ctx)
	if err != nil || d == nil {
		t.Fatalf("read: %v (%+v)", err, d)
	}

	if err := client.DeadLetter(ctx, d, "decode failed"); err != nil {
		t.Fatalf("dead letter: %v", err)
	}

	entries, err := rc.XRange(ctx, "jobs:test:dlq", "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange dlq: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 dlq entry, got %d", len(entries))
	}
	values := entries[0].Values
	if values["reason"] != "decode failed" {
		t.Fatalf("unexpected reason: %v", values["reason"])
	}
	if values["original_message_id"] != d.MessageID {
		t.Fatalf("unexpected original id: %v", values["original_message_id"])
	}
	if values["payload"] != d.Body {
		t.Fatalf("dlq entry must carry the original payload")
	}
	if values["consumer"] != "worker-1" {
		t.Fatalf("unexpected consumer: %v", values["consumer"])
	}
	if _, err := time.Parse(time.RFC3339, values["moved_at"].(string)); err != nil {
		t.Fatalf("moved_at not RFC3339: %v", values["moved_at"])
	}
}

func TestRedisClientReclaimTakesOverStalledDeliveries(t *testing.T) {
	client, rc := newTestQueue(t)
	ctx := context.Background()

	if err := client.Send(ctx, Message{JobID: "job-1", Version: 1}); err != nil {
		t.Fatalf("send: %v", err)
	}
	d, err := client.Read(ctx)
	if err != nil || d == nil {
		t.Fatalf("read: %v (%+v)", err, d)
	}

	// A second worker claims what the first never acknowledged.
	other := newRedisClientWith(rc, RedisOptions{
		Stream:   "jobs:test",
		Group:    "workers",
		Consumer: "worker-2",
		BlockMs:  -1,
	})
	reclaimed, err := other.Reclaim(ctx, 0, 10)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if len(reclaimed) != 1 {
		t.Fatalf("expected 1 reclaimed delivery, got %d", len(reclaimed))
	}
	if reclaimed[0].MessageID != d.MessageID || reclaimed[0].Body != d.Body {
		t.Fatalf("reclaimed wrong delivery: %+v", reclaimed[0])
	}

	if err := other.Ack(ctx, reclaimed[0].MessageID); err != nil {
		t.Fatalf("ack reclaimed: %v", err)
	}
}

func TestRedisClientEnsureGroupIdempotent(t *testing.T) {
	client, _ := newTestQueue(t)

	// The helper already created the group once.
	if err := client.EnsureGroup(context.Background()); err != nil {
		t.Fatalf("repeated ensure group: %v", err)
	}
}

func TestRedisClientDefaults(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	client := newRedisClientWith(rc, RedisOptions{})
	if client.stream != "findoc:jobs" {
		t.Fatalf("unexpected default stream: %q", client.stream)
	}
	if client.dlqStream != "findoc:jobs:dlq" {
		t.Fatalf("unexpected default dlq stream: %q", client.dlqStream)
	}
	if client.MaxAttempts() != 3 {
		t.Fatalf("unexpected default max attempts: %d", client.MaxAttempts())
	}
	if client.Consumer() == "" {
		t.Fatalf("expected generated consumer name")
	}
}
