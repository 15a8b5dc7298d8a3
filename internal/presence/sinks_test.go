package presence

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/fieldpresence/internal/domain"
)

func TestKafkaSinkPublishesOnlyAdvancedRecords(t *testing.T) {
	writer := &stubWriter{}
	sink := newKafkaSink(writer, "agent-presence")
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	snap := Snapshot{Records: []domain.PresenceRecord{
		{AgentID: "1", Latitude: 10, LastSeenAt: now},
		{AgentID: "2", Latitude: 11, LastSeenAt: now},
	}}
	require.NoError(t, sink.Publish(context.Background(), snap))
	require.Len(t, writer.messages, 2)
	require.Equal(t, []byte("1"), writer.messages[0].Key)

	var decoded domain.PresenceRecord
	require.NoError(t, json.Unmarshal(writer.messages[0].Value, &decoded))
	require.Equal(t, 10.0, decoded.Latitude)

	snap.Records[1].LastSeenAt = now.Add(time.Second)
	require.NoError(t, sink.Publish(context.Background(), snap))
	require.Len(t, writer.messages, 3)
	require.Equal(t, []byte("2"), writer.messages[2].Key)
}

func TestKafkaSinkRetriesAfterWriteFailure(t *testing.T) {
	writer := &stubWriter{err: errors.New("leader not available")}
	sink := newKafkaSink(writer, "agent-presence")
	snap := Snapshot{Records: []domain.PresenceRecord{{AgentID: "1", LastSeenAt: time.Now()}}}

	require.ErrorContains(t, sink.Publish(context.Background(), snap), "agent-presence")
	writer.err = nil
	require.NoError(t, sink.Publish(context.Background(), snap))
	require.Len(t, writer.messages, 1)

	require.NoError(t, sink.Close())
	require.True(t, writer.closed)
}

func TestMQTTSinkPublishesRetainedPerAgent(t *testing.T) {
	client := &stubMQTT{}
	sink := NewMQTTSink(client, "fieldpresence/agents")
	now := time.Now()
	snap := Snapshot{Records: []domain.PresenceRecord{{AgentID: "7", Latitude: 1, LastSeenAt: now}}}

	require.NoError(t, sink.Publish(context.Background(), snap))
	require.NoError(t, sink.Publish(context.Background(), snap))

	require.Len(t, client.published, 1)
	require.Equal(t, "fieldpresence/agents/7", client.published[0].topic)
	require.True(t, client.published[0].retained)
}

func TestMQTTSinkReportsPublishError(t *testing.T) {
	client := &stubMQTT{err: errors.New("not connected")}
	sink := NewMQTTSink(client, "agents")
	snap := Snapshot{Records: []domain.PresenceRecord{{AgentID: "7", LastSeenAt: time.Now()}}}

	require.ErrorContains(t, sink.Publish(context.Background(), snap), "not connected")
	client.err = nil
	require.NoError(t, sink.Publish(context.Background(), snap))
	require.Len(t, client.published, 2)
}

type stubWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (s *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, msgs...)
	return nil
}

func (s *stubWriter) Close() error {
	s.closed = true
	return nil
}

type publishCall struct {
	topic    string
	retained bool
}

type stubMQTT struct {
	mu        sync.Mutex
	published []publishCall
	err       error
}

func (s *stubMQTT) Publish(topic string, _ byte, retained bool, _ interface{}) mqtt.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, publishCall{topic: topic, retained: retained})
	return doneToken{err: s.err}
}

type doneToken struct {
	err error
}

func (doneToken) Wait() bool { return true }

func (doneToken) WaitTimeout(time.Duration) bool { return true }

func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (t doneToken) Error() error { return t.err }
