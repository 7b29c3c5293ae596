// Package pubsub fans typed events out to in-process subscribers. The
// catalog announces snapshot swaps through it and the logger streams
// formatted entries.
package pubsub

import (
	"context"
	"time"
)

// EventType says what happened to the payload.
type EventType string

const (
	// ReloadedEvent carries a collection that replaced the previous one as a
	// whole, such as a catalog snapshot after a rescan.
	ReloadedEvent EventType = "reloaded"
	// LoggedEvent carries one formatted log entry.
	LoggedEvent EventType = "logged"
)

// Event is a published payload with its type and publish time.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber hands out subscription channels that close with ctx.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher sends a payload to every current subscriber.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
