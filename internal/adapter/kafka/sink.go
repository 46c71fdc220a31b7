// Package kafka exports finalized permanent records to a Kafka topic for
// downstream accounting.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

// Compile-time check: Sink implements domain.RecordSink.
var _ domain.RecordSink = (*Sink)(nil)

// Writer is the part of kafka.Writer the sink uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink publishes one message per permanent record, keyed by company and
// number so a record's messages stay on one partition.
type Sink struct {
	writer Writer
}

// NewSink creates a sink writing to topic on the given brokers.
func NewSink(brokers []string, topic string) *Sink {
	return NewSinkWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	})
}

// NewSinkWithWriter creates a sink over an existing writer.
func NewSinkWithWriter(w Writer) *Sink {
	return &Sink{writer: w}
}

// Send writes record to the topic.
func (s *Sink) Send(ctx context.Context, record domain.PermanentRecord) error {
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record %q: %w", record.Number, err)
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(record.TenantID, 10) + "/" + record.Number),
		Value: value,
		Time:  record.CreatedAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte("record.converted")},
			{Key: "draft_id", Value: []byte(record.DraftID)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write record %q: %w", record.Number, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *Sink) Close() error {
	return s.writer.Close()
}
