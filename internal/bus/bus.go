package bus

import (
	"fmt"

	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/domain"
)

// New creates an event bus from configuration.
// "channel" keeps events in-process; "nats" fans them out across replicas.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
