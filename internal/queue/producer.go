package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"keywordintel/common/logger"

	"github.com/redis/go-redis/v9"
)

// Submission is a keyword collection request handed to the Orchestrator
// worker: a single term, the providers to collect it from (empty means
// all registered providers), and whether to keep a per-stage Report.
type Submission struct {
	RunID       string
	Term        string
	Providers   []string
	WithReport  bool
	TraceID     string
	Attempt     int
}

type Producer interface {
	Enqueue(ctx context.Context, sub Submission) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
}

func NewRedisProducer(client *redis.Client, stream string) Producer {
	return &redisProducer{client: client, stream: stream}
}

func (p *redisProducer) Enqueue(ctx context.Context, sub Submission) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RunID:     &sub.RunID,
		Component: "queue.producer",
	})

	attempt := sub.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	values := map[string]any{
		"run_id":  sub.RunID,
		"term":    sub.Term,
		"attempt": attempt,
	}
	if len(sub.Providers) > 0 {
		values["providers"] = strings.Join(sub.Providers, ",")
	}
	if sub.WithReport {
		values["with_report"] = "1"
	}
	if sub.TraceID != "" {
		values["trace_id"] = sub.TraceID
	}

	// TODO: cap stream growth with MAXLEN once submission volume is known.
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue submission (stream=%s): %w", p.stream, err)
	}

	slog.InfoContext(ctx, "submission enqueued",
		"term", sub.Term,
		"attempt", attempt,
		"stream", p.stream)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
