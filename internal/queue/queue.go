package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// Topic identifies one of the two independent job streams.
type Topic string

const (
	TopicSync Topic = "sync"
	TopicAI   Topic = "ai"
)

// Per-topic concurrency limits. The AI limit is kept low on purpose so the
// rate-limited completion API is never hammered by a large sync.
const (
	SyncConcurrency = 5
	AIConcurrency   = 3
)

// Per-job deadlines. A handler that exceeds its deadline gets a cancelled
// context and the message is redelivered.
const (
	SyncJobTimeout = 5 * time.Minute
	AIJobTimeout   = 2 * time.Minute
)

const (
	maxDeliver      = 3
	redeliveryDelay = 30 * time.Second
	fetchWait       = 2 * time.Second
	dedupWindow     = 10 * time.Minute
)

// topicSpec maps a topic to its JetStream stream and subject.
type topicSpec struct {
	stream  string
	subject string
	durable string
}

var topics = map[Topic]topicSpec{
	TopicSync: {stream: "EMAIL_SYNC", subject: "jobs.sync", durable: "sync-workers"},
	TopicAI:   {stream: "AI_TASKS", subject: "jobs.ai", durable: "ai-workers"},
}

// Queue wraps NATS JetStream for durable, at-least-once job delivery.
type Queue struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// Connect connects to NATS and obtains a JetStream context.
func Connect(url string) (*Queue, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	return &Queue{nc: nc, js: js}, nil
}

// EnsureStreams creates the job streams if they do not exist yet.
func (q *Queue) EnsureStreams(ctx context.Context) error {
	for _, spec := range topics {
		info, err := q.js.StreamInfo(spec.stream)
		if err == nil && info != nil {
			continue
		}

		_, err = q.js.AddStream(&nats.StreamConfig{
			Name:       spec.stream,
			Subjects:   []string{spec.subject},
			Storage:    nats.FileStorage,
			Retention:  nats.WorkQueuePolicy,
			Duplicates: dedupWindow,
		})
		if err != nil {
			if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
				continue
			}
			return fmt.Errorf("failed to create stream %s: %w", spec.stream, err)
		}
	}
	return nil
}

// Enqueue appends a job to the topic's stream. The msgID is used for
// broker-side deduplication within the duplicate window. The call returns
// once the broker has acknowledged the append; it never waits for the job
// to be processed.
func (q *Queue) Enqueue(topic Topic, payload interface{}, msgID string) error {
	spec, ok := topics[topic]
	if !ok {
		return fmt.Errorf("unknown topic %q", topic)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	if _, err := q.js.Publish(spec.subject, data, nats.MsgId(msgID)); err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}
	return nil
}

// Handler processes one job payload. Returning an error leaves the message
// unacknowledged so the queue redelivers it per its own policy.
type Handler func(ctx context.Context, data []byte) error

// Consume starts concurrency worker goroutines over one durable pull
// subscription. Each job runs under jobTimeout; success acks the message,
// failure naks it with a redelivery delay. Workers exit when ctx is done.
func (q *Queue) Consume(ctx context.Context, topic Topic, concurrency int, jobTimeout time.Duration, h Handler) error {
	spec, ok := topics[topic]
	if !ok {
		return fmt.Errorf("unknown topic %q", topic)
	}

	sub, err := q.js.PullSubscribe(spec.subject, spec.durable,
		nats.BindStream(spec.stream),
		nats.AckExplicit(),
		nats.AckWait(jobTimeout+time.Minute),
		nats.MaxDeliver(maxDeliver),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", spec.stream, err)
	}

	for i := 0; i < concurrency; i++ {
		go q.worker(ctx, topic, i, sub, jobTimeout, h)
	}

	log.Printf("[queue] consuming %s with %d workers", spec.stream, concurrency)
	return nil
}

func (q *Queue) worker(ctx context.Context, topic Topic, id int, sub *nats.Subscription, jobTimeout time.Duration, h Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := sub.Fetch(1, nats.MaxWait(fetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			log.Printf("[queue] %s worker %d fetch error: %v", topic, id, err)
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range msgs {
			jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
			err := h(jobCtx, msg.Data)
			cancel()

			if err != nil {
				log.Printf("[queue] %s job failed: %v", topic, err)
				if nakErr := msg.NakWithDelay(redeliveryDelay); nakErr != nil {
					log.Printf("[queue] %s nak error: %v", topic, nakErr)
				}
				continue
			}

			if ackErr := msg.Ack(); ackErr != nil {
				log.Printf("[queue] %s ack error: %v", topic, ackErr)
			}
		}
	}
}

// Close drains the connection, letting in-flight handlers finish their acks.
func (q *Queue) Close() {
	if q.nc != nil {
		if err := q.nc.Drain(); err != nil {
			q.nc.Close()
		}
	}
}
