// Package memory records published cache events in memory, for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Publisher stores published payloads for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
	err      error
}

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	Topic   string
	Payload any
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// FailWith makes every later Publish return err. A nil err restores normal behavior.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Publish records the message and returns a pseudo ID.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, p.err)
	}
	p.messages = append(p.messages, PublishedMessage{Topic: topic, Payload: payload})
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns the recorded publishes.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// MessagesFor returns the recorded publishes for one topic.
func (p *Publisher) MessagesFor(topic string) []PublishedMessage {
	var out []PublishedMessage
	for _, msg := range p.Messages() {
		if msg.Topic == topic {
			out = append(out, msg)
		}
	}
	return out
}
