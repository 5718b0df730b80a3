package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Delivery is a message handed to a consumer, carrying the stream entry ID
// needed to acknowledge or dead-letter it.
type Delivery struct {
	MessageID string
	Body      string
}

// RedisOptions configures a Redis Streams queue client.
type RedisOptions struct {
	URL       string
	Stream    string
	Group     string
	DLQStream string
	Consumer  string
	// BlockMs is the XREADGROUP block time in milliseconds. Zero selects
	// the default; a negative value disables blocking entirely.
	BlockMs     int
	MaxAttempts int
}

// RedisClient sends and consumes queue messages over a Redis stream with a
// consumer group, giving at-least-once delivery.
type RedisClient struct {
	client      *redis.Client
	stream      string
	group       string
	dlqStream   string
	consumer    string
	blockMs     int
	maxAttempts int
}

// NewRedisClient connects to Redis and returns a stream-backed queue client.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*RedisClient, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	if opts.Stream == "" {
		opts.Stream = "findoc:jobs"
	}
	if opts.Group == "" {
		opts.Group = "findoc-workers"
	}
	if opts.DLQStream == "" {
		opts.DLQStream = opts.Stream + ":dlq"
	}
	if opts.Consumer == "" {
		opts.Consumer = "worker-" + uuid.NewString()[:8]
	}
	if opts.BlockMs == 0 {
		opts.BlockMs = 5000
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return &RedisClient{
		client:      client,
		stream:      opts.Stream,
		group:       opts.Group,
		dlqStream:   opts.DLQStream,
		consumer:    opts.Consumer,
		blockMs:     opts.BlockMs,
		maxAttempts: opts.MaxAttempts,
	}, nil
}

// newRedisClientWith wraps an existing connection, for tests.
func newRedisClientWith(client *redis.Client, opts RedisOptions) *RedisClient {
	if opts.Stream == "" {
		opts.Stream = "findoc:jobs"
	}
	if opts.Group == "" {
		opts.Group = "findoc-workers"
	}
	if opts.DLQStream == "" {
		opts.DLQStream = opts.Stream + ":dlq"
	}
	if opts.Consumer == "" {
		opts.Consumer = "worker-" + uuid.NewString()[:8]
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	return &RedisClient{
		client:      client,
		stream:      opts.Stream,
		group:       opts.Group,
		dlqStream:   opts.DLQStream,
		consumer:    opts.Consumer,
		blockMs:     opts.BlockMs,
		maxAttempts: opts.MaxAttempts,
	}
}

// Send appends a message to the stream.
func (c *RedisClient) Send(ctx context.Context, msg Message) error {
	payload, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode queue message: %w", err)
	}
	err = c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.stream,
		Values: map[string]any{"payload": string(payload)},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", c.stream, err)
	}
	return nil
}

// EnsureGroup creates the consumer group, reading from the start of the
// stream so messages enqueued before the first worker are not lost.
func (c *RedisClient) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// Read returns the next delivery for this consumer, or nil when nothing is
// available within the block window.
func (c *RedisClient) Read(ctx context.Context) (*Delivery, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    1,
		Block:    time.Duration(c.blockMs) * time.Millisecond,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("xreadgroup %s: %w", c.stream, err)
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}
	return deliveryFromMessage(streams[0].Messages[0]), nil
}

// Ack removes a delivery from the pending entries list.
func (c *RedisClient) Ack(ctx context.Context, messageID string) error {
	return c.client.XAck(ctx, c.stream, c.group, messageID).Err()
}

// DeliveryCount returns how many times a pending entry has been delivered.
func (c *RedisClient) DeliveryCount(ctx context.Context, messageID string) (int64, error) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.stream,
		Group:  c.group,
		Start:  messageID,
		End:    messageID,
		Count:  1,
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(pending) > 0 {
		return pending[0].RetryCount, nil
	}
	return 0, nil
}

// DeadLetter copies an exhausted delivery onto the dead-letter stream. The
// caller still acknowledges the original entry.
func (c *RedisClient) DeadLetter(ctx context.Context, d *Delivery, reason string) error {
	return c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.dlqStream,
		Values: map[string]any{
			"original_message_id": d.MessageID,
			"original_stream":     c.stream,
			"reason":              reason,
			"moved_at":            time.Now().UTC().Format(time.RFC3339),
			"consumer":            c.consumer,
			"payload":             d.Body,
		},
	}).Err()
}

// Reclaim takes over pending entries idle longer than minIdle, typically
// left by a crashed worker, and returns them for reprocessing.
func (c *RedisClient) Reclaim(ctx context.Context, minIdle time.Duration, count int) ([]Delivery, error) {
	if count <= 0 {
		count = 16
	}
	msgs, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    int64(count),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xautoclaim %s: %w", c.stream, err)
	}
	out := make([]Delivery, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, *deliveryFromMessage(msg))
	}
	return out, nil
}

// MaxAttempts returns the delivery ceiling before an entry is dead-lettered.
func (c *RedisClient) MaxAttempts() int {
	return c.maxAttempts
}

// Consumer returns this client's consumer name within the group.
func (c *RedisClient) Consumer() string {
	return c.consumer
}

// Close closes the underlying Redis connection.
func (c *RedisClient) Close() error {
	return c.client.Close()
}

var _ Client = (*RedisClient)(nil)

func deliveryFromMessage(msg redis.XMessage) *Delivery {
	d := &Delivery{MessageID: msg.ID}
	if body, ok := msg.Values["payload"].(string); ok {
		d.Body = body
	}
	return d
}
