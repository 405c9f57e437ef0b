package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	_ Producer = (*RedisProducer)(nil)
	_ Consumer = (*RedisConsumer)(nil)
)

// Stream field names.
const (
	fieldJobID      = "job_id"
	fieldAttempt    = "attempt"
	fieldLastError  = "last_error"
	fieldEnqueuedAt = "enqueued_at"
)

// NewRedisClient connects to the Redis server at url and verifies it responds.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

// RedisProducer appends dispatch messages to a Redis stream.
type RedisProducer struct {
	client redis.Cmdable
	stream string
	logger *slog.Logger
}

// NewRedisProducer creates a producer for stream.
func NewRedisProducer(client redis.Cmdable, stream string, logger *slog.Logger) *RedisProducer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisProducer{
		client: client,
		stream: stream,
		logger: logger.With(slog.String("component", "redis_producer")),
	}
}

// Enqueue appends a first-attempt message for jobID.
func (p *RedisProducer) Enqueue(ctx context.Context, jobID int64) error {
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: messageValues(Message{JobID: jobID, Attempt: 1}),
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd (stream=%s): %w", p.stream, err)
	}

	p.logger.DebugContext(ctx, "message enqueued",
		slog.Int64("job_id", jobID),
		slog.String("message_id", id),
		slog.String("stream", p.stream))
	return nil
}

// ConsumerConfig configures a RedisConsumer.
type ConsumerConfig struct {
	Stream    string
	Group     string
	Consumer  string
	DLQStream string
	BatchSize int64
	Block     time.Duration
	// ClaimMinIdle is how long a delivered but unacknowledged message must sit
	// before another consumer takes it over, e.g. after a worker crash.
	ClaimMinIdle time.Duration
	// MaxAttempts dead-letters a reclaimed message whose delivery count has
	// pushed it past this many attempts. Zero disables the check.
	MaxAttempts int
}

// RedisConsumer reads dispatch messages through a Redis consumer group.
type RedisConsumer struct {
	client redis.Cmdable
	cfg    ConsumerConfig
	logger *slog.Logger

	claimMu   sync.Mutex
	lastClaim time.Time
}

// NewRedisConsumer creates the consumer group if needed and returns a consumer.
func NewRedisConsumer(
	ctx context.Context,
	client redis.Cmdable,
	cfg ConsumerConfig,
	logger *slog.Logger,
) (*RedisConsumer, error) {
	if cfg.Consumer == "" {
		cfg.Consumer = DefaultConsumerName()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &RedisConsumer{
		client: client,
		cfg:    cfg,
		logger: logger.With(
			slog.String("component", "redis_consumer"),
			slog.String("stream", cfg.Stream),
			slog.String("consumer", cfg.Consumer)),
	}
	if err := c.ensureGroup(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// DefaultConsumerName derives a consumer name unique to this process.
func DefaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + uuid.NewString()[:8]
}

func (c *RedisConsumer) ensureGroup(ctx context.Context) error {
	// Start from "0" so a recreated group still sees messages already in the stream.
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating consumer group: %w", err)
	}
	return nil
}

// Read first takes over stale pending messages, then waits for new ones.
func (c *RedisConsumer) Read(ctx context.Context) ([]Message, error) {
	if c.claimDue() {
		claimed, err := c.claimStale(ctx)
		if err != nil {
			return nil, err
		}
		if len(claimed) > 0 {
			return claimed, nil
		}
	}

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.BatchSize,
		Block:    c.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Message{}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("reading from stream: %w", err)
	}

	messages := []Message{}
	for _, stream := range streams {
		messages = append(messages, c.parseAll(ctx, stream.Messages)...)
	}

	if len(messages) > 0 {
		c.logger.DebugContext(ctx, "read messages from stream", slog.Int("count", len(messages)))
	}
	return messages, nil
}

// claimDue rate-limits XAUTOCLAIM to twice per ClaimMinIdle window.
func (c *RedisConsumer) claimDue() bool {
	if c.cfg.ClaimMinIdle <= 0 {
		return false
	}
	c.claimMu.Lock()
	defer c.claimMu.Unlock()

	if time.Since(c.lastClaim) < c.cfg.ClaimMinIdle/2 {
		return false
	}
	c.lastClaim = time.Now()
	return true
}

// claimStale takes over messages left pending longer than ClaimMinIdle.
// Redis keeps a delivery count per pending entry, so every delivery that never
// completed counts as an attempt even across repeated crashes.
func (c *RedisConsumer) claimStale(ctx context.Context) ([]Message, error) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.cfg.Stream,
		Group:  c.cfg.Group,
		Idle:   c.cfg.ClaimMinIdle,
		Start:  "-",
		End:    "+",
		Count:  c.cfg.BatchSize,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xpending: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	deliveries := make(map[string]int64, len(pending))
	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		deliveries[p.ID] = p.RetryCount
		ids = append(ids, p.ID)
	}

	raw, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.cfg.Stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		MinIdle:  c.cfg.ClaimMinIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xclaim: %w", err)
	}

	messages := make([]Message, 0, len(raw))
	for _, msg := range c.parseAll(ctx, raw) {
		delivered := deliveries[msg.ID]
		msg.Attempt = ReclaimedAttempt(msg.Attempt, delivered)

		if c.cfg.MaxAttempts > 0 && msg.Attempt > c.cfg.MaxAttempts {
			reason := fmt.Sprintf("delivered %d times without completing", delivered)
			if err := c.DeadLetter(ctx, msg, reason); err != nil {
				c.logger.ErrorContext(ctx, "failed to dead-letter reclaimed message",
					slog.String("message_id", msg.ID),
					slog.String("error", err.Error()))
			}
			continue
		}
		messages = append(messages, msg)
	}

	if len(messages) > 0 {
		c.logger.WarnContext(ctx, "reclaimed stale messages", slog.Int("count", len(messages)))
	}
	return messages, nil
}

// ReclaimedAttempt is the attempt number of a stream entry written with
// attempt stored that has already been delivered `delivered` times.
func ReclaimedAttempt(stored int, delivered int64) int {
	return max(stored, 1) + int(max(delivered, 0))
}

// parseAll parses raw stream entries. Malformed entries are acknowledged and
// dropped so they cannot block the group.
func (c *RedisConsumer) parseAll(ctx context.Context, raw []redis.XMessage) []Message {
	messages := make([]Message, 0, len(raw))
	for _, xmsg := range raw {
		msg, err := ParseMessage(xmsg)
		if err != nil {
			c.logger.ErrorContext(ctx, "failed to parse message",
				slog.String("error", err.Error()),
				slog.String("raw_message_id", xmsg.ID))
			_ = c.Ack(ctx, Message{ID: xmsg.ID})
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}

// Ack acknowledges msg in the consumer group.
func (c *RedisConsumer) Ack(ctx context.Context, msg Message) error {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
		return fmt.Errorf("xack (stream=%s): %w", c.cfg.Stream, err)
	}
	return nil
}

// Retry acknowledges msg and appends a copy with the next attempt number.
func (c *RedisConsumer) Retry(ctx context.Context, msg Message, reason string) error {
	if err := c.Ack(ctx, msg); err != nil {
		return fmt.Errorf("acking failed message for requeue: %w", err)
	}

	msg.Attempt++
	msg.LastError = reason
	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.Stream,
		Values: messageValues(msg),
	}).Err(); err != nil {
		return fmt.Errorf("xadd requeue: %w", err)
	}

	c.logger.InfoContext(ctx, "message requeued for retry",
		slog.Int64("job_id", msg.JobID),
		slog.Int("next_attempt", msg.Attempt),
		slog.String("reason", reason))
	return nil
}

// DeadLetter acknowledges msg and appends it to the dead-letter stream.
func (c *RedisConsumer) DeadLetter(ctx context.Context, msg Message, reason string) error {
	if err := c.Ack(ctx, msg); err != nil {
		return fmt.Errorf("acking failed message for dlq: %w", err)
	}

	msg.LastError = reason
	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.DLQStream,
		Values: messageValues(msg),
	}).Err(); err != nil {
		return fmt.Errorf("xadd dlq (stream=%s): %w", c.cfg.DLQStream, err)
	}

	c.logger.ErrorContext(ctx, "message sent to DLQ",
		slog.Int64("job_id", msg.JobID),
		slog.Int("attempt", msg.Attempt),
		slog.String("final_error", reason),
		slog.String("dlq_stream", c.cfg.DLQStream))
	return nil
}

// ParseMessage converts a stream entry into a Message.
func ParseMessage(xmsg redis.XMessage) (Message, error) {
	raw, ok := xmsg.Values[fieldJobID]
	if !ok {
		return Message{}, fmt.Errorf("%w: missing %s", ErrInvalidMessage, fieldJobID)
	}
	jobID, err := strconv.ParseInt(fmt.Sprint(raw), 10, 64)
	if err != nil || jobID <= 0 {
		return Message{}, fmt.Errorf("%w: bad %s %v", ErrInvalidMessage, fieldJobID, raw)
	}

	attempt := 1
	if raw, ok := xmsg.Values[fieldAttempt]; ok {
		n, err := strconv.Atoi(fmt.Sprint(raw))
		if err != nil {
			return Message{}, fmt.Errorf("%w: bad %s %v", ErrInvalidMessage, fieldAttempt, raw)
		}
		attempt = max(n, 1)
	}

	var lastError string
	if raw, ok := xmsg.Values[fieldLastError]; ok {
		lastError = fmt.Sprint(raw)
	}

	return Message{
		ID:        xmsg.ID,
		JobID:     jobID,
		Attempt:   attempt,
		LastError: lastError,
	}, nil
}

func messageValues(msg Message) map[string]any {
	values := map[string]any{
		fieldJobID:      msg.JobID,
		fieldAttempt:    max(msg.Attempt, 1),
		fieldEnqueuedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if msg.LastError != "" {
		values[fieldLastError] = msg.LastError
	}
	return values
}
