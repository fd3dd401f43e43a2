package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Config describes the sender's consumer-group subscription to the envelope topic.
type Config struct {
	Brokers  []string
	Topic    string
	GroupID  string
	MinBytes int // default 1KB
	MaxBytes int // default 10MB
	// CommitInterval batches offset commits; zero means 1s. Offsets are only committed
	// after the envelope's email_logs row is terminal.
	CommitInterval time.Duration
	// MaxWait bounds how long a fetch waits for MinBytes; zero means 50ms.
	MaxWait time.Duration

	// Logger receives the reader's chatter at debug and its errors at error. Nil discards both.
	Logger *zap.Logger
}

// Consumer reads envelopes for the sender with explicit commits.
type Consumer struct {
	r *kafka.Reader
}

func readerConfig(c Config) kafka.ReaderConfig {
	minBytes := c.MinBytes
	if minBytes <= 0 {
		minBytes = 1 << 10
	}
	maxBytes := c.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	ci := c.CommitInterval
	if ci <= 0 {
		ci = time.Second
	}
	mw := c.MaxWait
	if mw <= 0 {
		mw = 50 * time.Millisecond
	}

	lg := c.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	lg = lg.With(zap.String("topic", c.Topic), zap.String("group", c.GroupID))

	return kafka.ReaderConfig{
		Brokers:        c.Brokers,
		GroupID:        c.GroupID,
		Topic:          c.Topic,
		MinBytes:       minBytes,
		MaxBytes:       maxBytes,
		CommitInterval: ci,
		MaxWait:        mw,
		Logger: kafka.LoggerFunc(func(msg string, args ...any) {
			lg.Debug(fmt.Sprintf(msg, args...))
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			lg.Error(fmt.Sprintf(msg, args...))
		}),
	}
}

func NewConsumerFromConfig(c Config) *Consumer {
	return &Consumer{r: kafka.NewReader(readerConfig(c))}
}

type Message = kafka.Message

func (c *Consumer) Fetch(ctx context.Context) (Message, error) {
	return c.r.FetchMessage(ctx)
}

func (c *Consumer) Commit(ctx context.Context, m Message) error {
	return c.r.CommitMessages(ctx, m)
}

func (c *Consumer) Close() error { return c.r.Close() }
