package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	retry "github.com/avast/retry-go/v4"

	"findoc-backend/internal/bootstrap"
	"findoc-backend/internal/queue"
	"findoc-backend/internal/shared/config"
	"findoc-backend/internal/shared/metrics"
	"findoc-backend/internal/shared/telemetry"
	"findoc-backend/internal/workerproc"
)

const (
	defaultShutdownTimeoutSec = 30
	queueConnectAttempts      = 30
	queueConnectDelay         = time.Second
	ackTimeout                = 5 * time.Second
	readErrorPause            = time.Second
	reclaimInterval           = time.Minute
	reclaimMinIdle            = 5 * time.Minute
	reclaimBatch              = 16
)

func main() {
	cfg := config.Load()
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Fatal("REDIS_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	concurrency := max(1, cfg.WorkerConcurrency)
	shutdownTimeout := time.Duration(envInt("SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownTimeoutSec)) * time.Second

	consumer, err := connectQueue(ctx, cfg)
	if err != nil {
		log.Fatalf("connect queue: %v", err)
	}
	defer consumer.Close()

	if err := consumer.EnsureGroup(ctx); err != nil {
		log.Fatalf("ensure consumer group: %v", err)
	}

	app, err := bootstrap.BuildWorker(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	log.Printf("worker started stream=%s group=%s consumer=%s concurrency=%d",
		cfg.QueueStream, cfg.QueueGroup, consumer.Consumer(), concurrency)

	go reclaimLoop(ctx, app, consumer, sem, &wg)

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		delivery, err := consumer.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break pollLoop
			}
			log.Printf("read delivery: %v", err)
			select {
			case <-ctx.Done():
				break pollLoop
			case <-time.After(readErrorPause):
			}
			continue
		}
		if delivery == nil {
			continue
		}

		select {
		case <-ctx.Done():
			break pollLoop
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(d queue.Delivery) {
			defer wg.Done()
			defer func() { <-sem }()
			handleDelivery(ctx, app, consumer, &d)
		}(*delivery)
	}

	log.Printf("shutdown requested, waiting up to %s for in-flight jobs", shutdownTimeout)
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		log.Printf("shutdown timeout reached; exiting with in-flight jobs")
	}
}

// connectQueue retries the initial Redis connection so the worker survives
// starting before the broker is ready.
func connectQueue(ctx context.Context, cfg config.Config) (*queue.RedisClient, error) {
	var client *queue.RedisClient
	err := retry.Do(
		func() error {
			var err error
			client, err = queue.NewRedisClient(ctx, queue.RedisOptions{
				URL:       cfg.RedisURL,
				Stream:    cfg.QueueStream,
				Group:     cfg.QueueGroup,
				DLQStream: cfg.QueueDLQStream,
			})
			return err
		},
		retry.Context(ctx),
		retry.Attempts(queueConnectAttempts),
		retry.Delay(queueConnectDelay),
		retry.DelayType(retry.FixedDelay),
	)
	if err != nil {
		return nil, err
	}
	return client, nil
}

type streamConsumer interface {
	Read(ctx context.Context) (*queue.Delivery, error)
	Ack(ctx context.Context, messageID string) error
	DeliveryCount(ctx context.Context, messageID string) (int64, error)
	DeadLetter(ctx context.Context, d *queue.Delivery, reason string) error
	Reclaim(ctx context.Context, minIdle time.Duration, count int) ([]queue.Delivery, error)
	MaxAttempts() int
}

// reclaimLoop periodically takes over pending entries left idle by crashed
// workers and runs them through the normal handler.
func reclaimLoop(ctx context.Context, app *bootstrap.App, stream streamConsumer, sem chan struct{}, wg *sync.WaitGroup) {
	ticker := time.NewTicker(reclaimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		deliveries, err := stream.Reclaim(ctx, reclaimMinIdle, reclaimBatch)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("reclaim pending deliveries: %v", err)
			continue
		}
		for i := range deliveries {
			select {
			case <-ctx.Done():
				return
			case sem <- struct{}{}:
			}
			wg.Add(1)
			go func(d queue.Delivery) {
				defer wg.Done()
				defer func() { <-sem }()
				handleDelivery(ctx, app, stream, &d)
			}(deliveries[i])
		}
	}
}

func handleDelivery(ctx context.Context, app *bootstrap.App, stream streamConsumer, d *queue.Delivery) {
	decoded, meta, err := workerproc.ParseMessage(d.Body)
	if err != nil {
		fields := baseFields(d, decoded.JobID, decoded.RequestID)
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		switch e := err.(type) {
		case workerproc.ErrEmptyBody:
			telemetry.Error("worker.job.empty_body", fields)
			deadLetter(stream, d, "empty body", fields)
		case workerproc.ErrDecode:
			fields["error"] = e.Err.Error()
			telemetry.Error("worker.job.decode_failed", fields)
			deadLetter(stream, d, "decode failed", fields)
		case workerproc.ErrMissingJobID:
			telemetry.Error("worker.job.missing_id", fields)
			deadLetter(stream, d, "missing job id", fields)
		default:
			fields["error"] = err.Error()
			telemetry.Error("worker.job.decode_failed", fields)
			deadLetter(stream, d, "decode failed", fields)
		}
		return
	}

	fields := baseFields(d, decoded.JobID, decoded.RequestID)

	attempts, err := stream.DeliveryCount(ctx, d.MessageID)
	if err != nil {
		log.Printf("delivery count %s: %v", d.MessageID, err)
	}
	if attempts > 1 {
		fields["attempts"] = attempts
		metrics.IncRedelivery()
	}
	if maxAttempts := stream.MaxAttempts(); maxAttempts > 0 && attempts > int64(maxAttempts) {
		fields["max_attempts"] = maxAttempts
		telemetry.Error("worker.job.attempts_exhausted", fields)
		deadLetter(stream, d, "max delivery attempts exceeded", fields)
		return
	}

	telemetry.Info("worker.job.received", fields)

	ctxWithParsed := workerproc.WithParsedMessage(ctx, decoded)
	if err := workerproc.HandleMessage(ctxWithParsed, app, d.Body); err != nil {
		failFields := baseFields(d, decoded.JobID, decoded.RequestID)
		if procErr, ok := err.(workerproc.ErrProcess); ok {
			failFields["error"] = procErr.Err.Error()
		} else {
			failFields["error"] = err.Error()
		}
		telemetry.Error("worker.job.failed", failFields)
		return
	}

	if ackDelivery(stream, d, fields) {
		telemetry.Info("worker.job.completed", baseFields(d, decoded.JobID, decoded.RequestID))
	}
}

// ackDelivery acknowledges on a fresh context so shutdown cancellation does
// not leave finished jobs in the pending list.
func ackDelivery(stream streamConsumer, d *queue.Delivery, fields map[string]any) bool {
	ctx, cancel := context.WithTimeout(context.Background(), ackTimeout)
	defer cancel()
	if err := stream.Ack(ctx, d.MessageID); err != nil {
		fields["error"] = err.Error()
		telemetry.Error("worker.job.ack_failed", fields)
		return false
	}
	return true
}

// deadLetter copies the delivery to the dead letter stream and acknowledges
// the original so it stops being redelivered. A failed copy leaves the entry
// pending for the reclaimer.
func deadLetter(stream streamConsumer, d *queue.Delivery, reason string, fields map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), ackTimeout)
	defer cancel()
	fields["reason"] = reason
	if err := stream.DeadLetter(ctx, d, reason); err != nil {
		fields["error"] = err.Error()
		telemetry.Error("worker.job.dead_letter_failed", fields)
		return
	}
	metrics.IncDeadLetter()
	telemetry.Error("worker.job.dead_lettered", fields)
	if err := stream.Ack(ctx, d.MessageID); err != nil {
		fields["error"] = err.Error()
		telemetry.Error("worker.job.ack_failed", fields)
	}
}

func baseFields(d *queue.Delivery, jobID, requestID string) map[string]any {
	fields := map[string]any{
		"job_id":            jobID,
		"stream_message_id": d.MessageID,
	}
	if strings.TrimSpace(requestID) != "" {
		fields["request_id"] = requestID
	}
	return fields
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}
