package asset

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ssrltools/beamcore/internal/infrastructure/mqtt"
)

// MessagePublisher is the subset of *mqtt.Client used by Publisher.
type MessagePublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	QoS() byte
}

// Publisher sends each document as JSON to beamcore/asset/{kind}.
type Publisher struct {
	client MessagePublisher
}

// NewPublisher creates a publisher over an MQTT client.
func NewPublisher(client MessagePublisher) *Publisher {
	return &Publisher{client: client}
}

// Consume publishes docs in order and stops at the first failure.
func (p *Publisher) Consume(ctx context.Context, docs []Document) error {
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("encoding %s %s: %w", d.Kind, d.ID(), err)
		}
		if err := p.client.Publish(mqtt.Topics{}.AssetDocument(string(d.Kind)), payload, p.client.QoS(), false); err != nil {
			return fmt.Errorf("publishing %s %s: %w", d.Kind, d.ID(), err)
		}
	}
	return nil
}
