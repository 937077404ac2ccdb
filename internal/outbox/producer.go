package outbox

import (
	"context"
	"fmt"
	"sync"

	"cdr.dev/slog/v3"
	"github.com/segmentio/kafka-go"
	"golang.org/x/xerrors"
)

// KafkaProducer keeps one writer per topic, created on first use. Messages
// are partitioned by key so a user's events stay ordered.
type KafkaProducer struct {
	brokers []string
	logger  slog.Logger

	mu      sync.Mutex
	writers map[string]*kafka.Writer
	closed  bool
}

// NewKafkaProducer creates a KafkaProducer.
func NewKafkaProducer(brokers []string, logger slog.Logger) *KafkaProducer {
	return &KafkaProducer{
		brokers: brokers,
		logger:  logger,
		writers: make(map[string]*kafka.Writer),
	}
}

// WriteMessages synchronously writes msgs to topic.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	writer, err := p.writerForTopic(topic)
	if err != nil {
		return err
	}
	if err := writer.WriteMessages(ctx, msgs...); err != nil {
		return xerrors.Errorf("write %d messages to %s: %w", len(msgs), topic, err)
	}
	return nil
}

func (p *KafkaProducer) writerForTopic(topic string) (*kafka.Writer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, xerrors.New("producer closed")
	}
	if writer, ok := p.writers[topic]; ok {
		return writer, nil
	}

	logger := p.logger.With(slog.F("topic", topic))
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            kafka.Snappy,
		AllowAutoTopicCreation: true,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Warn(context.Background(), fmt.Sprintf(msg, args...))
		}),
	}
	p.writers[topic] = writer
	return writer, nil
}

// Close flushes and releases all writers. Later writes fail.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	var firstErr error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.writers, topic)
	}
	return firstErr
}
