package queue

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"time"

	"github.com/SundayYogurt/clearance_service/internal/interfaces"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

const (
	defaultMaxAttempts = 5
	maxBackoff         = time.Minute
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConsumer struct {
	Reader      MessageReader
	Handler     interfaces.ConsumerHandler
	ServiceName string

	// MaxAttempts bounds retries, except for interfaces.ErrMustDeliver.
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

func NewKafkaConsumer(broker, topic, groupID, username, password string, handler interfaces.ConsumerHandler) *KafkaConsumer {
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	if username != "" {
		dialer.TLS = &tls.Config{}
		dialer.SASLMechanism = plain.Mechanism{
			Username: username,
			Password: password,
		}
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{broker},
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 10e3, //10KB
		MaxBytes: 10e6, //10MB
		Dialer:   dialer,
	})

	return &KafkaConsumer{
		Reader:      reader,
		Handler:     handler,
		ServiceName: "Clearance Notifier",
		MaxAttempts: defaultMaxAttempts,
		Backoff:     expBackoff,
	}
}

func expBackoff(attempt int) time.Duration {
	d := time.Second << min(attempt-1, 6)
	return min(d, maxBackoff)
}

// Listen reads until ctx is cancelled. A message is committed once the
// handler succeeds, fails permanently, or runs out of attempts. Messages
// marked interfaces.ErrMustDeliver are retried until they succeed; if ctx ends
// first they stay uncommitted and are redelivered on the next start.
func (kc *KafkaConsumer) Listen(ctx context.Context) error {
	defer kc.Reader.Close()

	for {
		msg, err := kc.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			log.Printf("[%s] read error: %v\n", kc.ServiceName, err)
			if !sleepCtx(ctx, time.Second) {
				return nil
			}
			continue
		}

		log.Printf("[%s] received key=%s offset=%d\n", kc.ServiceName, string(msg.Key), msg.Offset)

		if !kc.handle(ctx, msg) {
			return nil
		}
		if err := kc.Reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("[%s] commit error: offset=%d err=%v\n", kc.ServiceName, msg.Offset, err)
		}
	}
}

// handle reports false if ctx ended before the message was settled.
func (kc *KafkaConsumer) handle(ctx context.Context, msg kafka.Message) bool {
	maxAttempts := kc.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	for attempt := 1; ; attempt++ {
		err := kc.Handler.HandleMessage(string(msg.Value))
		switch {
		case err == nil:
			return true
		case errors.Is(err, interfaces.ErrPermanent):
			log.Printf("[%s] dropping offset=%d: %v\n", kc.ServiceName, msg.Offset, err)
			return true
		case attempt >= maxAttempts && !errors.Is(err, interfaces.ErrMustDeliver):
			log.Printf("[%s] giving up on offset=%d after %d attempts: %v\n", kc.ServiceName, msg.Offset, attempt, err)
			return true
		}

		log.Printf("[%s] handler error (attempt %d): %v\n", kc.ServiceName, attempt, err)
		var wait time.Duration
		if kc.Backoff != nil {
			wait = kc.Backoff(attempt)
		}
		if !sleepCtx(ctx, wait) {
			return false
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
