package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/fieldpresence/internal/domain"
)

// Reader exposes the minimal kafka.Reader interface needed by the Feed.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// NewKafkaReader builds a consumer-group reader for the presence topic.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
}

// FeedOption configures optional behaviour for the Feed.
type FeedOption func(*Feed)

// WithFeedLogger overrides the logger used to report errors.
func WithFeedLogger(logger *log.Logger) FeedOption {
	return func(f *Feed) {
		f.logger = logger
	}
}

// Feed fills a presence cache from the topic written by KafkaSink, letting
// live-map replicas serve presence without polling the collector.
type Feed struct {
	reader Reader
	cache  *Cache
	sinks  []Sink
	logger *log.Logger
}

// NewFeed constructs a Feed applying records to cache and forwarding each
// changed snapshot to sinks.
func NewFeed(reader Reader, cache *Cache, sinks []Sink, opts ...FeedOption) *Feed {
	f := &Feed{
		reader: reader,
		cache:  cache,
		sinks:  sinks,
		logger: log.New(log.Writer(), "[presence-feed] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run starts a blocking loop that applies presence records until the context is cancelled.
func (f *Feed) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := f.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			f.logger.Printf("fetch error: %v", err)
			continue
		}

		rec, decodeErr := decodeRecord(msg)
		if decodeErr != nil {
			f.logger.Printf("decode error (partition=%d, offset=%d): %v", msg.Partition, msg.Offset, decodeErr)
			pollCounter.WithLabelValues("feed", "failed").Inc()
			// Commit malformed messages to avoid poison-pill loops.
			if commitErr := f.reader.CommitMessages(ctx, msg); commitErr != nil {
				f.logger.Printf("commit error after decode failure: %v", commitErr)
			}
			continue
		}

		if snap, changed := f.cache.PutIfNewer(rec, time.Now()); changed {
			pollCounter.WithLabelValues("feed", "ok").Inc()
			f.publish(ctx, snap)
		} else {
			pollCounter.WithLabelValues("feed", "discarded").Inc()
		}

		if commitErr := f.reader.CommitMessages(ctx, msg); commitErr != nil {
			f.logger.Printf("commit error: %v", commitErr)
		}
	}
}

func (f *Feed) publish(ctx context.Context, snap Snapshot) {
	for _, sink := range f.sinks {
		if err := sink.Publish(ctx, snap); err != nil {
			sinkFailureCounter.WithLabelValues(sink.Name()).Inc()
			f.logger.Printf("%s: snapshot delivery failed: %v", sink.Name(), err)
		}
	}
}

func decodeRecord(msg kafka.Message) (domain.PresenceRecord, error) {
	var rec domain.PresenceRecord
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		return rec, err
	}
	if rec.AgentID == "" {
		rec.AgentID = string(msg.Key)
	}
	if rec.AgentID == "" {
		return rec, fmt.Errorf("%w: presence record without agent id", domain.ErrValidation)
	}
	return rec, nil
}
