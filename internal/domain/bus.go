package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (development) or NATS (production).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `json:"type" yaml:"type"`

	// Channel settings
	ChannelBufferSize int `json:"channelBufferSize" yaml:"channelBufferSize"`

	// NATS settings
	NATSUrl           string `json:"natsUrl" yaml:"natsUrl"`
	NATSToken         string `json:"-" yaml:"natsToken"`
	NATSMaxReconnects int    `json:"natsMaxReconnects" yaml:"natsMaxReconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait" yaml:"natsReconnectWait"` // seconds

	// NATSQueueGroup load-balances subscribers across service replicas.
	NATSQueueGroup string `json:"natsQueueGroup" yaml:"natsQueueGroup"`
}

// Topic names.
const (
	TopicAnalysisCompleted = "hibd.analysis.completed"
	TopicAlert             = "hibd.alert"
	TopicReportPrepared    = "hibd.report.prepared"
)

// AnalysisCompletedEvent is published after every fresh analysis.
type AnalysisCompletedEvent struct {
	AnalysisID string      `json:"analysisId"`
	Wallet     string      `json:"wallet"`
	Report     *RiskReport `json:"report"`
	Partial    bool        `json:"partial"`

	LookupFailures int      `json:"lookupFailures"`
	Warnings       []string `json:"warnings,omitempty"`
}

// ReportPreparedEvent is published when a report_drainer instruction is built.
type ReportPreparedEvent struct {
	IntentID string  `json:"intentId"`
	Drainer  string  `json:"drainer"`
	Reporter string  `json:"reporter"`
	Lamports *uint64 `json:"lamports,omitempty"`
	PDA      string  `json:"pda"`
}

// AlertEvent is published for every alert fired.
type AlertEvent struct {
	DeliveryID     string    `json:"deliveryId"`
	SubscriptionID string    `json:"subscriptionId"`
	AnalysisID     string    `json:"analysisId"`
	Wallet         string    `json:"wallet"`
	Severity       RiskLabel `json:"severity"`
	OverallRisk    int       `json:"overallRisk"`
	Status         string    `json:"status"`
}
