// Package remotejob encapsulates sending messages to remote services such as Pub/Sub.
package remotejob

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	log "queueserver/cloudlog"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

const (
	// EventJoined is published after a membership record is created.
	EventJoined = "JOINED"
	// EventLeft is published after a membership record is deleted.
	EventLeft = "LEFT"

	publishTimeout = 10 * time.Second
)

// QueueEvent holds the fields of a queue change sent through Pub/Sub.
type QueueEvent struct {
	Type      string    `json:"type"`
	QueueType string    `json:"queueType"`
	UserID    string    `json:"userId"`
	RecordID  string    `json:"recordId"`
	At        time.Time `json:"at"`
}

// Publisher sends queue events to a Pub/Sub topic. A Publisher whose client couldn't be created
// drops every event.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic

	pending sync.WaitGroup
}

// NewPublisher connects to Pub/Sub. Failing to connect is logged and yields a no-op Publisher so
// queue changes never depend on it.
func NewPublisher(ctx context.Context, projectID, topicID string, opts ...option.ClientOption) *Publisher {
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		log.Printf("Failed to start pubsub client: %s", err.Error())
		return &Publisher{}
	}
	return &Publisher{
		client: client,
		topic:  client.Topic(topicID),
	}
}

// PublishQueueEvent sends the event without waiting for the result; failures are only logged.
func (p *Publisher) PublishQueueEvent(event QueueEvent) {
	if p == nil || p.topic == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error marshalling event %#v, reason: %s", event, err.Error())
		return
	}

	result := p.topic.Publish(context.Background(), &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"type":      event.Type,
			"queueType": event.QueueType,
		},
	})

	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if _, err := result.Get(ctx); err != nil {
			log.Printf("Error publishing %s event for record %s: %v", event.Type, event.RecordID, err)
		}
	}()
}

// Close waits for in-flight publishes and releases the client.
func (p *Publisher) Close() {
	if p == nil || p.client == nil {
		return
	}
	p.pending.Wait()
	p.topic.Stop()
	if err := p.client.Close(); err != nil {
		log.Printf("Error closing pubsub client: %v", err)
	}
}
