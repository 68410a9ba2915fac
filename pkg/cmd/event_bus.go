package cmd

import (
	"log/slog"

	"github.com/aqwatch/aqwatch/pkg/eventbus"
)

// NewEventBus builds the event bus for the given provider. Only the
// in-process go-channel bus is supported; the provider argument keeps the
// call sites stable for when a brokered bus lands.
func NewEventBus(provider string, logger *slog.Logger) eventbus.EventBus {
	switch provider {
	case "", "memory", "gochannel":
		return eventbus.NewInProcessEventBus(logger)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
