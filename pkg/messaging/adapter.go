package messaging

import (
	"context"
	"fmt"
)

// Consume subscribes to channel and feeds every payload to handler until ctx
// is done. Handler errors go to onError and do not stop consumption.
func Consume(ctx context.Context, broker Broker, channel string, handler Handler, onError func(error)) error {
	msgChan, err := broker.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}
	Drain(ctx, msgChan, handler, onError)
	return nil
}

// Drain runs handler over an existing subscription until ctx is done or the
// channel closes.
func Drain(ctx context.Context, msgChan <-chan []byte, handler Handler, onError func(error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgChan:
			if !ok {
				return
			}
			if err := handler(ctx, msg); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}
