package out

import "github.com/artipie/stevedore/internal/events"

// EventPublisher publishes artifact lifecycle events.
type EventPublisher interface {
	Publish(eventType events.EventType, payload interface{}) error
}
