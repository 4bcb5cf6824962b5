package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
)

const (
	fetchBackoffBase   = 250 * time.Millisecond
	fetchBackoffCap    = 15 * time.Second
	publishBackoffBase = 100 * time.Millisecond
	memoryBufferSize   = 256
)

// ErrBufferFull is returned by MemoryClient.Publish when no consumer has drained the buffer.
var ErrBufferFull = errors.New("messaging: memory buffer full")

// Message represents a message consumed from the bus.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
	Offset  int64
	Time    time.Time
}

// Handler processes an inbound message. The context carries the producer's trace when one was propagated.
type Handler func(context.Context, Message) error

// Client is the pluggable messaging abstraction.
type Client interface {
	Publish(ctx context.Context, key []byte, value []byte) error
	Consume(ctx context.Context, handler Handler) error
	Topic() string
}

// Module wires the messaging client.
var Module = fx.Provide(NewClient)

// NewClient builds a messaging client based on configuration.
func NewClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Client, error) {
	topic := cfg.Messaging.Kafka.Topic
	if !cfg.Messaging.Enabled || cfg.Messaging.Driver == "noop" {
		logger.Info("messaging disabled; using noop client")
		return noopClient{topic: topic}, nil
	}

	switch cfg.Messaging.Driver {
	case "kafka":
		return newKafkaClient(lc, cfg.Messaging, logger), nil
	case "memory":
		logger.Info("using in-process message bus", zap.String("topic", topic))
		return NewMemoryClient(topic, logger), nil
	default:
		return nil, fmt.Errorf("unsupported messaging driver: %s", cfg.Messaging.Driver)
	}
}

// traceHeaders returns the W3C trace context of ctx as message headers.
func traceHeaders(ctx context.Context) map[string]string {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier
}

func withTrace(ctx context.Context, headers map[string]string) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(headers))
}

type noopClient struct {
	topic string
}

func (n noopClient) Publish(context.Context, []byte, []byte) error { return nil }
func (n noopClient) Consume(ctx context.Context, handler Handler) error {
	<-ctx.Done()
	return ctx.Err()
}
func (n noopClient) Topic() string { return n.topic }

// MemoryClient is an in-process bus for single-binary setups and tests.
// Messages published while nobody consumes are buffered up to a fixed size.
type MemoryClient struct {
	topic    string
	messages chan Message
	logger   *zap.Logger
	now      func() time.Time
}

// NewMemoryClient builds a MemoryClient for topic.
func NewMemoryClient(topic string, logger *zap.Logger) *MemoryClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryClient{
		topic:    topic,
		messages: make(chan Message, memoryBufferSize),
		logger:   logger,
		now:      time.Now,
	}
}

func (m *MemoryClient) Publish(ctx context.Context, key []byte, value []byte) error {
	msg := Message{
		Topic:   m.topic,
		Key:     append([]byte(nil), key...),
		Value:   append([]byte(nil), value...),
		Headers: traceHeaders(ctx),
		Time:    m.now(),
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case m.messages <- msg:
		return nil
	default:
		return ErrBufferFull
	}
}

// Consume delivers buffered messages to handler until ctx ends. Failed messages are logged and dropped.
func (m *MemoryClient) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-m.messages:
			if err := handler(withTrace(ctx, msg.Headers), msg); err != nil {
				m.logger.Error("message handler failed", zap.String("topic", msg.Topic), zap.Error(err))
			}
		}
	}
}

func (m *MemoryClient) Topic() string { return m.topic }

// kafkaClient implements the Client via kafka-go.
type kafkaClient struct {
	writer         *kafka.Writer
	reader         *kafka.Reader
	topic          string
	publishRetries uint64
	logger         *zap.Logger
}

func newKafkaClient(lc fx.Lifecycle, cfg config.Messaging, logger *zap.Logger) *kafkaClient {
	topic := cfg.Kafka.Topic

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Logger:       kafkaLogger{logger: logger},
		ErrorLogger:  kafkaLogger{logger: logger},
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        cfg.ConsumerGroup,
		Topic:          topic,
		MinBytes:       cfg.Kafka.MinBytes,
		MaxBytes:       cfg.Kafka.MaxBytes,
		CommitInterval: cfg.Kafka.CommitInterval,
		Dialer: &kafka.Dialer{
			Timeout:  cfg.Kafka.ConnectTimeout,
			ClientID: cfg.Kafka.ClientID,
		},
	})

	client := &kafkaClient{
		writer:         writer,
		reader:         reader,
		topic:          topic,
		publishRetries: uint64(cfg.Kafka.PublishRetries),
		logger:         logger,
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("closing kafka client")
			return errors.Join(writer.Close(), reader.Close())
		},
	})

	return client
}

// Publish writes one message keyed by key, so events of one order stay on one partition.
// Transient broker errors are retried with exponential backoff.
func (k *kafkaClient) Publish(ctx context.Context, key []byte, value []byte) error {
	msg := kafka.Message{Key: key, Value: value, Headers: toKafkaHeaders(traceHeaders(ctx))}
	backoff := retry.WithMaxRetries(k.publishRetries, retry.NewExponential(publishBackoffBase))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := k.writer.WriteMessages(ctx, msg)
		if err != nil && isTransient(err) {
			k.logger.Warn("kafka publish failed; retrying", zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
}

func (k *kafkaClient) Consume(ctx context.Context, handler Handler) error {
	backoff := newFetchBackoff()
	for {
		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			wait, _ := backoff.Next()
			k.logger.Error("kafka fetch failed", zap.Duration("retry_in", wait), zap.Error(err))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		backoff = newFetchBackoff()

		wrapped := Message{
			Topic:   msg.Topic,
			Key:     append([]byte(nil), msg.Key...),
			Value:   append([]byte(nil), msg.Value...),
			Headers: fromKafkaHeaders(msg.Headers),
			Offset:  msg.Offset,
			Time:    msg.Time,
		}

		if err := handler(withTrace(ctx, wrapped.Headers), wrapped); err != nil {
			// Left uncommitted so the group redelivers it.
			k.logger.Error("message handler failed", zap.Error(err), zap.Int64("offset", msg.Offset))
			continue
		}

		if err := k.reader.CommitMessages(ctx, msg); err != nil {
			k.logger.Warn("commit failed", zap.Error(err), zap.Int64("offset", msg.Offset))
		}
	}
}

func (k *kafkaClient) Topic() string { return k.topic }

func newFetchBackoff() retry.Backoff {
	return retry.WithCappedDuration(fetchBackoffCap, retry.NewExponential(fetchBackoffBase))
}

func isTransient(err error) bool {
	var writeErrs kafka.WriteErrors
	if errors.As(err, &writeErrs) {
		for _, e := range writeErrs {
			if e != nil && isTransient(e) {
				return true
			}
		}
		return false
	}
	var temporary interface{ Temporary() bool }
	return errors.As(err, &temporary) && temporary.Temporary()
}

func toKafkaHeaders(headers map[string]string) []kafka.Header {
	if len(headers) == 0 {
		return nil
	}
	out := make([]kafka.Header, 0, len(headers))
	for key, value := range headers {
		out = append(out, kafka.Header{Key: key, Value: []byte(value)})
	}
	return out
}

func fromKafkaHeaders(headers []kafka.Header) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

type kafkaLogger struct {
	logger *zap.Logger
}

func (k kafkaLogger) Printf(msg string, args ...interface{}) {
	k.logger.Sugar().Debugf(msg, args...)
}
