package gossip

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andydunstall/murmur/pkg/gossip"
	"github.com/andydunstall/murmur/pkg/log"
)

func TestEventStream_Subscribe(t *testing.T) {
	t.Run("publish", func(t *testing.T) {
		s := NewEventStream(log.NewNopLogger())
		events, unsubscribe := s.Subscribe()
		defer unsubscribe()

		e := gossip.Endpoint{Host: "10.26.104.1", Port: 7946}
		s.OnJoined(e)
		s.OnSuspected(e)
		s.OnBacked(e)
		s.OnLeaved(e)

		for _, kind := range []string{"JOINED", "SUSPECTED", "BACKED", "LEAVED"} {
			assert.Equal(t, Event{Kind: kind, Endpoint: "10.26.104.1:7946"}, <-events)
		}
	})

	t.Run("drops when full", func(t *testing.T) {
		s := NewEventStream(log.NewNopLogger())
		events, unsubscribe := s.Subscribe()
		defer unsubscribe()

		e := gossip.Endpoint{Host: "10.26.104.1", Port: 7946}
		// Publishing never blocks, even if the subscriber isn't reading.
		for i := 0; i != subscriberBufferSize*2; i++ {
			s.OnJoined(e)
		}
		assert.Len(t, events, subscriberBufferSize)
	})

	t.Run("unsubscribe", func(t *testing.T) {
		s := NewEventStream(log.NewNopLogger())
		events, unsubscribe := s.Subscribe()
		unsubscribe()
		// Idempotent.
		unsubscribe()

		s.OnJoined(gossip.Endpoint{Host: "10.26.104.1", Port: 7946})
		_, ok := <-events
		assert.False(t, ok)
	})

	t.Run("close", func(t *testing.T) {
		s := NewEventStream(log.NewNopLogger())
		events, unsubscribe := s.Subscribe()
		defer unsubscribe()

		s.Close()
		_, ok := <-events
		assert.False(t, ok)

		// Subscribing after close returns a closed channel.
		events, _ = s.Subscribe()
		_, ok = <-events
		assert.False(t, ok)
	})
}

func TestEventStream_WebSocket(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	s := NewEventStream(log.NewNopLogger())
	s.Register(router.Group("/status/gossip"))

	server := httptest.NewServer(router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/status/gossip/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Wait for the handler to subscribe before publishing.
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.subscribers) == 1
	}, time.Second, time.Millisecond*10)

	s.OnSuspected(gossip.Endpoint{Host: "10.26.104.2", Port: 7946})

	var e Event
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, Event{Kind: "SUSPECTED", Endpoint: "10.26.104.2:7946"}, e)

	// Closing the stream closes the connection.
	s.Close()
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}
