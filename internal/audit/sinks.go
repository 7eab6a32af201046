package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roomify/apiserver/internal/mq"
	"github.com/roomify/apiserver/types"
)

// EntryStore appends audit entries to durable storage.
type EntryStore interface {
	Insert(ctx context.Context, entry types.AuditEntry) (types.AuditEntry, error)
}

// StoreSink writes entries straight to the database.
type StoreSink struct {
	store EntryStore
}

func NewStoreSink(store EntryStore) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Write(ctx context.Context, entry types.AuditEntry) error {
	_, err := s.store.Insert(ctx, entry)
	return err
}

// Publisher is the subset of the message queue used to forward entries.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// BrokerSink publishes entries to a broker channel; a Consumer on the
// other side persists them.
type BrokerSink struct {
	publisher Publisher
	channel   string
}

func NewBrokerSink(publisher Publisher, channel string) *BrokerSink {
	return &BrokerSink{publisher: publisher, channel: channel}
}

func (s *BrokerSink) Write(ctx context.Context, entry types.AuditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = s.publisher.Publish(ctx, s.channel, data, map[string]string{
		"event_id": entry.EventID,
		"action":   entry.Action,
	})
	return err
}

// Subscriber is the subset of the message queue used by Consumer.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

// Consumer drains a broker channel into the entry store.
type Consumer struct {
	subscriber Subscriber
	store      EntryStore
	channel    string
}

func NewConsumer(subscriber Subscriber, store EntryStore, channel string) *Consumer {
	return &Consumer{subscriber: subscriber, store: store, channel: channel}
}

// Run blocks until ctx is cancelled or the subscription fails.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscriber.Subscribe(ctx, c.channel, c.Handle)
}

// Handle persists one message. Undecodable payloads are dropped rather than
// redelivered forever; store failures are returned so the broker retries.
func (c *Consumer) Handle(ctx context.Context, msg mq.Message) error {
	var entry types.AuditEntry
	if err := json.Unmarshal(msg.Data, &entry); err != nil {
		return nil
	}
	if strings.TrimSpace(entry.EventID) == "" {
		entry.EventID = msg.Attributes["event_id"]
	}
	if strings.TrimSpace(entry.EventID) == "" || strings.TrimSpace(entry.Action) == "" {
		return nil
	}
	if _, err := c.store.Insert(ctx, entry); err != nil {
		return fmt.Errorf("persist audit entry %s: %w", entry.EventID, err)
	}
	return nil
}
