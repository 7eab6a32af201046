package mq

import (
	"context"
	"strings"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/roomify/apiserver/config"
)

func TestOpenRejectsDatabaseBackend(t *testing.T) {
	cfg := config.Config{Audit: config.AuditConfig{Backend: "db"}}
	if _, err := Open(context.Background(), cfg); err == nil {
		t.Fatalf("expected error for db backend")
	}
}

func TestOpenRequiresBrokerSettings(t *testing.T) {
	if _, err := Open(context.Background(), config.Config{Audit: config.AuditConfig{Backend: "rabbitmq"}}); err == nil || !strings.Contains(err.Error(), "RABBITMQ_URL") {
		t.Fatalf("expected missing url error, got %v", err)
	}
	if _, err := Open(context.Background(), config.Config{Audit: config.AuditConfig{Backend: "pubsub"}}); err == nil || !strings.Contains(err.Error(), "PUBSUB_PROJECT_ID") {
		t.Fatalf("expected missing project error, got %v", err)
	}
}

func TestHeaderAttributes(t *testing.T) {
	attrs := headerAttributes(amqp.Table{
		"event_id": "abc",
		"action":   []byte("LOGIN_SUCCESS"),
		"retries":  int32(2),
	})
	if attrs["event_id"] != "abc" || attrs["action"] != "LOGIN_SUCCESS" || attrs["retries"] != "2" {
		t.Fatalf("unexpected attributes: %v", attrs)
	}
	if headerAttributes(nil) != nil {
		t.Fatalf("expected nil for empty headers")
	}
}
