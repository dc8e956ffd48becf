// Package pubsub publishes cache events to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
)

// attributer is implemented by payloads that carry message attributes.
type attributer interface {
	Attributes() map[string]string
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type topic interface {
	Publish(ctx context.Context, msg *pubsub.Message) publishResult
	Stop()
}

type topicFactory func(name string) topic

// Publisher publishes JSON payloads, holding one topic handle per topic name.
type Publisher struct {
	newTopic topicFactory
	mu       sync.Mutex
	topics   map[string]topic
}

// New creates a Publisher backed by client.
func New(client *pubsub.Client) *Publisher {
	return newWithFactory(func(name string) topic {
		return clientTopic{t: client.Topic(name)}
	})
}

func newWithFactory(factory topicFactory) *Publisher {
	return &Publisher{newTopic: factory, topics: make(map[string]topic)}
}

// Publish marshals payload to JSON and publishes it to topicName, waiting for the server ID.
func (p *Publisher) Publish(ctx context.Context, topicName string, payload any) (string, error) {
	if topicName == "" {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := &pubsub.Message{Data: data, Attributes: map[string]string{"content_type": "application/json"}}
	if a, ok := payload.(attributer); ok {
		for k, v := range a.Attributes() {
			msg.Attributes[k] = v
		}
	}

	id, err := p.topic(topicName).Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Close flushes and stops every topic handle.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, t := range p.topics {
		t.Stop()
		delete(p.topics, name)
	}
}

func (p *Publisher) topic(name string) topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[name]
	if !ok {
		t = p.newTopic(name)
		p.topics[name] = t
	}
	return t
}

type clientTopic struct {
	t *pubsub.Topic
}

func (c clientTopic) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	return c.t.Publish(ctx, msg)
}

func (c clientTopic) Stop() {
	c.t.Stop()
}
