package websocket

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/model"
)

func TestClientEnqueueAfterClose(t *testing.T) {
	client := &Client{SessionID: "s1", Send: make(chan []byte, 1)}

	client.close()

	// the connection's reader may still reply to a ping after the hub
	// dropped the client; that must be a no-op, not a panic
	assert.False(t, client.enqueue([]byte(`{"type":"pong"}`)))

	// closing again is safe too
	client.close()
}

func TestClientEnqueueFullBuffer(t *testing.T) {
	client := &Client{SessionID: "s1", Send: make(chan []byte, 1)}

	assert.True(t, client.enqueue([]byte("one")))
	assert.False(t, client.enqueue([]byte("two")), "full buffer reports failure instead of blocking")
}

func TestClientCloseDuringEnqueue(t *testing.T) {
	client := &Client{SessionID: "s1", Send: make(chan []byte, 1)}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			client.enqueue([]byte("x"))
		}
	}()
	go func() {
		defer wg.Done()
		client.close()
	}()
	wg.Wait()

	assert.False(t, client.enqueue([]byte("x")))
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	h := NewHub()
	go h.Run()

	client := &Client{SessionID: "s1", Send: make(chan []byte, 1)}
	h.Register(client)

	// the second event overflows the one-slot buffer and evicts the client
	h.Publish("s1", model.ProgressEvent{Type: model.EventStatus, SessionID: "s1"})
	h.Publish("s1", model.ProgressEvent{Type: model.EventStatus, SessionID: "s1"})

	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.closed
	}, time.Second, 5*time.Millisecond, "slow subscriber must be evicted")

	// the buffered event is still readable, then the channel closes
	select {
	case msg, ok := <-client.Send:
		require.True(t, ok)
		assert.NotEmpty(t, msg)
	case <-time.After(time.Second):
		t.Fatal("buffered event never delivered")
	}
	select {
	case _, ok := <-client.Send:
		assert.False(t, ok, "send channel must be closed after eviction")
	case <-time.After(time.Second):
		t.Fatal("send channel never closed")
	}

	// a late ping reply from the evicted connection is dropped silently
	assert.False(t, client.enqueue([]byte(`{"type":"pong"}`)))
}
