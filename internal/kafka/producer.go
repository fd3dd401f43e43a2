package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

type ProducerConfig struct {
	Brokers      []string
	BatchSize    int           // default 100
	BatchTimeout time.Duration // default 10ms
	WriteTimeout time.Duration // default 10s
}

// Producer is a thin wrapper around segmentio/kafka-go Writer.
// Topic is taken from each message so one producer serves every outbox topic.
type Producer struct {
	w *kafka.Writer
}

func NewProducerFromConfig(c ProducerConfig) *Producer {
	bs := c.BatchSize
	if bs <= 0 {
		bs = 100
	}
	bt := c.BatchTimeout
	if bt <= 0 {
		bt = 10 * time.Millisecond
	}
	wt := c.WriteTimeout
	if wt <= 0 {
		wt = 10 * time.Second
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(c.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchSize:              bs,
		BatchTimeout:           bt,
		WriteTimeout:           wt,
		AllowAutoTopicCreation: true,
	}
	return &Producer{w: w}
}

func (p *Producer) Publish(ctx context.Context, msgs ...Message) error {
	return p.w.WriteMessages(ctx, msgs...)
}

func (p *Producer) Close() error { return p.w.Close() }
