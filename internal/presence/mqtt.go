package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes each changed record as a retained message on
// <prefix>/<agentID>, so a map client that subscribes late sees every agent.
type MQTTSink struct {
	client  mqttPublisher
	prefix  string
	changes *changeSet
}

// NewMQTTSink constructs an MQTTSink publishing under prefix.
func NewMQTTSink(client mqttPublisher, prefix string) *MQTTSink {
	return &MQTTSink{client: client, prefix: prefix, changes: newChangeSet()}
}

// DialMQTT connects a paho client to broker.
func DialMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID(clientID).SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect mqtt %s: %w", broker, err)
	}
	return client, nil
}

// Name implements Sink.
func (s *MQTTSink) Name() string { return "mqtt" }

// Publish implements Sink.
func (s *MQTTSink) Publish(ctx context.Context, snap Snapshot) error {
	records := s.changes.pending(snap)
	published := records[:0:0]
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode presence for %s: %w", rec.AgentID, err)
		}
		token := s.client.Publish(path.Join(s.prefix, rec.AgentID), 1, true, payload)
		select {
		case <-token.Done():
		case <-ctx.Done():
			s.changes.commit(published)
			return ctx.Err()
		}
		if err := token.Error(); err != nil {
			s.changes.commit(published)
			return fmt.Errorf("publish presence for %s: %w", rec.AgentID, err)
		}
		published = append(published, rec)
	}
	s.changes.commit(published)
	return nil
}
