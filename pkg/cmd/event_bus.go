// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/promoflow/pkg/channels/gochannel"
	"github.com/dukex/promoflow/pkg/channels/kafka"
	"github.com/dukex/promoflow/pkg/eventbus"
	"github.com/dukex/promoflow/pkg/events"
)

// NewEventBus builds the notification bus. "memory" keeps notifications in
// process; "kafka" shares them between API replicas.
func NewEventBus(provider string, logger *slog.Logger) eventbus.EventBus {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "memory":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			panic(fmt.Errorf("failed to create in-memory pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, "promoflow")
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}

// RouteNotifications sends every notification type on bus to handler and
// starts consuming.
func RouteNotifications(ctx context.Context, bus eventbus.EventBus, handler eventbus.EventHandler) error {
	for _, eventType := range events.All() {
		if err := bus.Handle(eventType, handler); err != nil {
			return fmt.Errorf("failed to register %s handler: %w", eventType, err)
		}
	}

	if err := bus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to notifications: %w", err)
	}

	return nil
}
