package messaging

import (
	"context"
)

// Broker is the publish side of the notification pipeline. The redis
// implementation is the only one in production; tests swap in fakes.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}
