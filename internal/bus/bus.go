package bus

import (
	"fmt"

	"github.com/shfed/creditcore/internal/domain"
)

// New creates an event bus from configuration. "channel" yields the
// in-process ChannelBus; "nats" yields a NATS-backed bus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
