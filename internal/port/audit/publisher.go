// Package audit defines the port for the durable audit event stream.
package audit

import "context"

// Handler processes one audit event. Returning an error causes redelivery.
type Handler func(ctx context.Context, subject string, data []byte) error

// Publisher appends lifecycle events (proposal transitions, session
// open/close) to the durable audit stream.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Stream is a Publisher that also supports consuming, for audit tailers.
type Stream interface {
	Publisher
	Subscribe(ctx context.Context, subject string, handler Handler) (func(), error)
	Close() error
}
