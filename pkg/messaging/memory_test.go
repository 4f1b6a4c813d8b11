package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBroker_PublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewMemoryBroker()
	a, err := b.Subscribe(ctx, "offers")
	require.NoError(t, err)
	other, err := b.Subscribe(ctx, "other")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "offers", json.RawMessage(`{"id":1}`)))
	require.NoError(t, b.Publish(ctx, "offers", map[string]int{"id": 2}))

	assert.JSONEq(t, `{"id":1}`, string(<-a))
	assert.JSONEq(t, `{"id":2}`, string(<-a))
	assert.Empty(t, other)
}

func TestMemoryBroker_UnsubscribeOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := NewMemoryBroker()
	ch, err := b.Subscribe(ctx, "offers")
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
}

func TestMemoryBroker_Close(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker()
	ch, err := b.Subscribe(ctx, "offers")
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, ok := <-ch
	assert.False(t, ok)
	assert.ErrorIs(t, b.Publish(ctx, "offers", "x"), ErrBrokerClosed)
	_, err = b.Subscribe(ctx, "offers")
	assert.ErrorIs(t, err, ErrBrokerClosed)
}

func TestDrain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := NewMemoryBroker()

	got := make(chan string, 4)
	var errs []error
	done := make(chan error, 1)
	subscribed := make(chan struct{})
	go func() {
		msgs, err := b.Subscribe(ctx, "offers")
		if err != nil {
			done <- err
			return
		}
		close(subscribed)
		Drain(ctx, msgs, func(ctx context.Context, payload []byte) error {
			if string(payload) == `"bad"` {
				return errors.New("bad payload")
			}
			got <- string(payload)
			return nil
		}, func(err error) { errs = append(errs, err) })
		done <- nil
	}()
	<-subscribed

	require.NoError(t, b.Publish(ctx, "offers", "bad"))
	require.NoError(t, b.Publish(ctx, "offers", "good"))
	assert.Equal(t, `"good"`, <-got)

	require.NoError(t, b.Close())
	require.NoError(t, <-done)
	assert.Len(t, errs, 1)
}

func TestConsume_SubscribeError(t *testing.T) {
	b := NewMemoryBroker()
	require.NoError(t, b.Close())
	err := Consume(context.Background(), b, "offers", nil, nil)
	assert.ErrorIs(t, err, ErrBrokerClosed)
}
