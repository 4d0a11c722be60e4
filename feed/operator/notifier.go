package operator

import "github.com/ethereum/go-ethereum/event"

// Notifier interface defines the methods of the service that provides
// operator event updates to consumers.
type Notifier interface {
	OperatorFeed() *event.Feed
}
