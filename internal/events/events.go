// Package events publishes plan lifecycle notifications over NATS.
// Delivery is fire-and-forget: a lost event never fails the request that
// produced it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Subjects for plan lifecycle events.
const (
	SubjectPlanSolved = "plans.agriculture.solved"
	SubjectPlanFailed = "plans.agriculture.failed"
)

// PlanSolved is emitted after a successful optimization.
type PlanSolved struct {
	EventID        uuid.UUID `json:"event_id"`
	RequestID      string    `json:"request_id"`
	Module         string    `json:"module"`
	ObjectiveValue float64   `json:"objective_value"`
	ExpectedProfit float64   `json:"expected_profit"`
	Crops          int       `json:"crops"`
	Scenarios      int       `json:"scenarios"`
	DurationMS     int64     `json:"duration_ms"`
	SolvedAt       time.Time `json:"solved_at"`
}

// PlanFailed is emitted when an optimization is rejected or fails. Kind is
// the taxonomy bucket the failure was mapped to.
type PlanFailed struct {
	EventID   uuid.UUID `json:"event_id"`
	RequestID string    `json:"request_id"`
	Module    string    `json:"module"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
	FailedAt  time.Time `json:"failed_at"`
}

// Publisher delivers events to interested subscribers.
type Publisher interface {
	Publish(ctx context.Context, subject string, event any) error
	Close()
}

// Config holds NATS connection settings.
type Config struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	MaxReconnects int
}

// Client wraps a NATS connection.
type Client struct {
	conn *nats.Conn
}

// Connect establishes a NATS connection.
func Connect(cfg Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Publish marshals event as JSON and publishes it to subject. The context
// is not consulted after marshaling; NATS buffers the write.
func (c *Client) Publish(ctx context.Context, subject string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

// Close closes the connection.
func (c *Client) Close() {
	c.conn.Close()
}

// Noop discards every event; used when no NATS URL is configured.
type Noop struct{}

func (Noop) Publish(ctx context.Context, subject string, event any) error { return nil }

func (Noop) Close() {}
