package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes changed presence records keyed by agent id, so a
// compacted topic keeps the latest position per agent. Hashing on the key
// keeps each agent's updates on one partition and in order.
type KafkaSink struct {
	writer  messageWriter
	topic   string
	changes *changeSet
}

// NewKafkaSink constructs a KafkaSink writing to topic on brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return newKafkaSink(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Snappy,
	}, topic)
}

func newKafkaSink(writer messageWriter, topic string) *KafkaSink {
	return &KafkaSink{writer: writer, topic: topic, changes: newChangeSet()}
}

// Name implements Sink.
func (s *KafkaSink) Name() string { return "kafka" }

// Publish implements Sink. Only records whose last-seen time advanced since
// the previous successful write are sent.
func (s *KafkaSink) Publish(ctx context.Context, snap Snapshot) error {
	records := s.changes.pending(snap)
	if len(records) == 0 {
		return nil
	}

	now := time.Now().UTC()
	msgs := make([]kafka.Message, 0, len(records))
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode presence for %s: %w", rec.AgentID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(rec.AgentID),
			Value: payload,
			Time:  now,
		})
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d presence updates to %s: %w", len(msgs), s.topic, err)
	}
	s.changes.commit(records)
	return nil
}

// Close flushes and releases the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
