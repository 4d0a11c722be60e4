// Package feed defines the event envelope shared across heartbeat event feeds.
package feed

// EventType is the type of an event emitted over a feed.
type EventType int

// Event is the envelope sent over event feeds. The Data field holds an
// event-type-specific payload defined by the emitting package.
type Event struct {
	// Type of the event.
	Type EventType
	// Data holds the event payload.
	Data interface{}
}
