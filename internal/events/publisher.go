package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher provides typed methods for publishing events to NATS JetStream.
// A nil Publisher is valid and drops every event, so callers can wire it
// unconditionally and leave NATS optional in deployment.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates a new Publisher.
func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// PublishTurn publishes a dialogue turn event.
func (p *Publisher) PublishTurn(ctx context.Context, event TurnEvent) error {
	return p.publish(ctx, SubjectTurn, event)
}

// PublishIndexBuild publishes an index build completion event.
func (p *Publisher) PublishIndexBuild(ctx context.Context, event IndexBuildEvent) error {
	return p.publish(ctx, SubjectIndexBuild, event)
}

func (p *Publisher) publish(ctx context.Context, subject string, data any) error {
	if p == nil {
		return nil
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", subject, err)
	}
	if _, err := p.js.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}
