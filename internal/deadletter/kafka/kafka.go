// Package kafka publishes dead letters to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/vovakirdan/myconnect-server/internal/deadletter"
)

const batchTimeout = 50 * time.Millisecond

// Sink implements deadletter.Sink on an async kafka-go writer. Write only
// enqueues; delivery errors are reported to the log.
type Sink struct {
	writer *kafka.Writer
}

// New creates a writer for topic on brokers.
func New(brokers []string, topic string, logger *zerolog.Logger) *Sink {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: batchTimeout,
		MaxAttempts:  3,
		Async:        true,
		Completion:   reportFailures(logger, topic),
	}
	return &Sink{writer: w}
}

func reportFailures(logger *zerolog.Logger, topic string) func([]kafka.Message, error) {
	return func(messages []kafka.Message, err error) {
		if err != nil {
			logger.Error().Err(err).Int("letters", len(messages)).Str("topic", topic).Msg("kafka dead-letter delivery failed")
		}
	}
}

// Write publishes the letter keyed by chat so a chat's letters stay ordered.
func (s *Sink) Write(ctx context.Context, l deadletter.Letter) error {
	value, err := encode(l)
	if err != nil {
		return err
	}
	msg := kafka.Message{Key: []byte(l.ChatID), Value: value, Time: time.Now()}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close flushes pending letters.
func (s *Sink) Close() error { return s.writer.Close() }

func encode(l deadletter.Letter) ([]byte, error) {
	if l.At.IsZero() {
		l.At = time.Now().UTC()
	}
	value, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("encode letter: %w", err)
	}
	return value, nil
}

var _ deadletter.Sink = (*Sink)(nil)
