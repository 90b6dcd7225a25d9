package services

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	messages []int
	payloads [][]byte
	closed   bool
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, messageType)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestHub_SendTo(t *testing.T) {
	hub := NewHub()
	hub.SendTo("nobody", WSEvent{Type: EventGenerateProgress})

	conn := &fakeConn{}
	client := NewWSClient("browser-1", conn)
	hub.Add(client)

	hub.SendTo("browser-1", WSEvent{Type: EventGenerateProgress, JobID: "job", Line: "step 1"})

	select {
	case msg := <-client.send:
		var ev WSEvent
		require.NoError(t, json.Unmarshal(msg, &ev))
		assert.Equal(t, WSEvent{Type: EventGenerateProgress, JobID: "job", Line: "step 1"}, ev)
	default:
		t.Fatal("expected queued event")
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := NewHub()
	conn := &fakeConn{}
	client := NewWSClient("slow", conn)
	hub.Add(client)

	for i := 0; i < wsSendBuffer+1; i++ {
		hub.SendTo("slow", WSEvent{Type: EventGenerateProgress})
	}

	assert.Equal(t, 0, hub.Len())
	assert.True(t, conn.isClosed())
}

func TestHub_ReconnectReplacesClient(t *testing.T) {
	hub := NewHub()
	oldConn, newConn := &fakeConn{}, &fakeConn{}
	oldClient := NewWSClient("tab", oldConn)
	newClient := NewWSClient("tab", newConn)

	hub.Add(oldClient)
	hub.Add(newClient)
	assert.True(t, oldConn.isClosed())

	// the old connection's read loop ending must not evict the new one
	hub.Remove(oldClient)
	assert.Equal(t, 1, hub.Len())
	assert.False(t, newConn.isClosed())

	hub.Shutdown()
	assert.Equal(t, 0, hub.Len())
	assert.True(t, newConn.isClosed())
}

func TestWSClient_WriteLoop(t *testing.T) {
	conn := &fakeConn{}
	client := NewWSClient("c", conn)
	require.True(t, client.enqueue([]byte(`{"type":"generate.completed"}`)))

	done := make(chan struct{})
	go func() {
		defer close(done)
		client.writeLoop()
	}()

	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return len(conn.messages) == 1
	}, time.Second, 10*time.Millisecond)

	client.close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write loop did not stop")
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.Equal(t, websocket.TextMessage, conn.messages[0])
	assert.False(t, client.enqueue([]byte("late")))
}
