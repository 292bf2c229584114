package gossip

import (
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/andydunstall/murmur/pkg/gossip"
	"github.com/andydunstall/murmur/pkg/log"
)

// subscriberBufferSize is the number of events buffered for each subscriber
// before events are dropped.
const subscriberBufferSize = 64

// Event is a membership event sent to event stream subscribers.
type Event struct {
	Kind     string `json:"kind"`
	Endpoint string `json:"endpoint"`
}

// EventStream is a watcher that streams membership events to subscribers
// over WebSocket connections.
type EventStream struct {
	subscribers map[chan Event]struct{}
	closed      bool

	// mu protects the above fields.
	mu sync.Mutex

	upgrader *websocket.Upgrader

	logger log.Logger
}

func NewEventStream(logger log.Logger) *EventStream {
	return &EventStream{
		subscribers: make(map[chan Event]struct{}),
		upgrader:    &websocket.Upgrader{},
		logger:      logger.WithSubsystem("cluster.events"),
	}
}

func (s *EventStream) OnJoined(endpoint gossip.Endpoint) {
	s.publish(gossip.EventJoined, endpoint)
}

func (s *EventStream) OnSuspected(endpoint gossip.Endpoint) {
	s.publish(gossip.EventSuspected, endpoint)
}

func (s *EventStream) OnBacked(endpoint gossip.Endpoint) {
	s.publish(gossip.EventBacked, endpoint)
}

func (s *EventStream) OnLeaved(endpoint gossip.Endpoint) {
	s.publish(gossip.EventLeaved, endpoint)
}

// Subscribe returns a channel that receives membership events, and a
// function to unsubscribe.
func (s *EventStream) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBufferSize)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
	}
}

// Close closes all subscriptions.
func (s *EventStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	for ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = make(map[chan Event]struct{})
}

// Register registers the route streaming events over a WebSocket.
func (s *EventStream) Register(group *gin.RouterGroup) {
	group.GET("/events", s.eventsRoute)
}

func (s *EventStream) eventsRoute(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade replies to the client so nothing else to do.
		s.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return
	}
	defer conn.Close()

	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	s.logger.Debug("subscriber connected", zap.String("client-ip", c.ClientIP()))
	defer s.logger.Debug("subscriber disconnected", zap.String("client-ip", c.ClientIP()))

	// Subscribers don't send messages, though reading is needed to detect
	// the connection closing.
	closedCh := make(chan struct{})
	go func() {
		defer close(closedCh)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case e, ok := <-events:
			if !ok {
				_ = conn.WriteMessage(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				)
				return
			}
			if err := conn.WriteJSON(e); err != nil {
				s.logger.Debug("failed to write event", zap.Error(err))
				return
			}
		case <-closedCh:
			return
		}
	}
}

func (s *EventStream) publish(kind gossip.EventKind, endpoint gossip.Endpoint) {
	e := Event{
		Kind:     kind.String(),
		Endpoint: endpoint.String(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.subscribers {
		select {
		case ch <- e:
		default:
			// Called from the gossip event loop so never block on a slow
			// subscriber.
			s.logger.Warn(
				"subscriber buffer full; dropping event",
				zap.String("kind", e.Kind),
			)
		}
	}
}

var _ gossip.Watcher = &EventStream{}
