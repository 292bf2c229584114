package gossip

import (
	"time"

	"github.com/andydunstall/murmur/pkg/log"
)

type fakeTask struct {
	delay    time.Duration
	f        func()
	canceled bool
}

func (t *fakeTask) Cancel() {
	t.canceled = true
}

// fakeScheduler records scheduled tasks so tests can run them
// deterministically.
type fakeScheduler struct {
	tasks []*fakeTask
}

func (s *fakeScheduler) Submit(f func()) {
	f()
}

func (s *fakeScheduler) Schedule(delay time.Duration, f func()) Cancelable {
	task := &fakeTask{
		delay: delay,
		f:     f,
	}
	s.tasks = append(s.tasks, task)
	return task
}

func (s *fakeScheduler) ScheduleWithFixedDelay(
	initialDelay, _ time.Duration, f func(),
) Cancelable {
	return s.Schedule(initialDelay, f)
}

func (s *fakeScheduler) Shutdown() {
}

// RunLast runs the most recently scheduled task that hasn't been cancelled.
// Returns false if there are no pending tasks.
func (s *fakeScheduler) RunLast() bool {
	for i := len(s.tasks) - 1; i >= 0; i-- {
		task := s.tasks[i]
		s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
		if task.canceled {
			continue
		}
		task.f()
		return true
	}
	return false
}

// Pending returns the number of scheduled tasks that haven't been cancelled.
func (s *fakeScheduler) Pending() int {
	n := 0
	for _, task := range s.tasks {
		if !task.canceled {
			n++
		}
	}
	return n
}

var _ Scheduler = &fakeScheduler{}

type sentMessage struct {
	To  Endpoint
	Msg Message
}

// fakeTransporter records sent messages.
type fakeTransporter struct {
	sent []sentMessage
}

func (t *fakeTransporter) Send(to Endpoint, msg Message) {
	t.sent = append(t.sent, sentMessage{To: to, Msg: msg})
}

func (t *fakeTransporter) Reply(req *RemoteMessage, msg Message) {
	t.Send(req.Sender, msg)
}

// Take returns and clears the sent messages.
func (t *fakeTransporter) Take() []sentMessage {
	sent := t.sent
	t.sent = nil
	return sent
}

var _ Transporter = &fakeTransporter{}

type event struct {
	Kind     EventKind
	Endpoint Endpoint
}

type fakeWatcher struct {
	events []event
}

func (w *fakeWatcher) OnJoined(endpoint Endpoint) {
	w.events = append(w.events, event{EventJoined, endpoint})
}

func (w *fakeWatcher) OnSuspected(endpoint Endpoint) {
	w.events = append(w.events, event{EventSuspected, endpoint})
}

func (w *fakeWatcher) OnBacked(endpoint Endpoint) {
	w.events = append(w.events, event{EventBacked, endpoint})
}

func (w *fakeWatcher) OnLeaved(endpoint Endpoint) {
	w.events = append(w.events, event{EventLeaved, endpoint})
}

func (w *fakeWatcher) Count(kind EventKind) int {
	n := 0
	for _, e := range w.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

var _ Watcher = &fakeWatcher{}

// fakeClock returns a fixed time in milliseconds that tests can advance.
type fakeClock struct {
	now int64
}

func (c *fakeClock) Now() int64 {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now += d.Milliseconds()
}

type envelope struct {
	From Endpoint
	To   Endpoint
	Msg  Message
}

// fakeNetwork routes messages between in-process nodes.
type fakeNetwork struct {
	nodes map[Endpoint]*node

	queue []envelope

	// delivered contains every message delivered to a node.
	delivered []envelope
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		nodes: make(map[Endpoint]*node),
	}
}

// AddNode adds a node to the network with the given clock.
func (n *fakeNetwork) AddNode(self Endpoint, config *Config, clock *fakeClock) *node {
	node := newNode(
		self,
		config,
		&fakeScheduler{},
		&fakeNetworkTransport{self: self, network: n},
		clock.Now,
		newMetrics(),
		log.NewNopLogger(),
	)
	n.nodes[self] = node
	return node
}

// Deliver delivers queued messages, including messages sent in response,
// until the queue is empty. Messages to unknown endpoints are dropped.
//
// Returns the number of messages delivered.
func (n *fakeNetwork) Deliver() int {
	delivered := 0
	for len(n.queue) > 0 {
		env := n.queue[0]
		n.queue = n.queue[1:]

		node, ok := n.nodes[env.To]
		if !ok {
			continue
		}
		n.delivered = append(n.delivered, env)
		delivered++
		node.Dispatch(&RemoteMessage{
			Sender:  env.From,
			Payload: env.Msg,
		})
	}
	return delivered
}

// Kinds returns the kinds of the delivered messages.
func (n *fakeNetwork) Kinds() []MessageKind {
	var kinds []MessageKind
	for _, env := range n.delivered {
		kinds = append(kinds, env.Msg.Kind())
	}
	return kinds
}

type fakeNetworkTransport struct {
	self    Endpoint
	network *fakeNetwork
}

func (t *fakeNetworkTransport) Send(to Endpoint, msg Message) {
	t.network.queue = append(t.network.queue, envelope{
		From: t.self,
		To:   to,
		Msg:  msg,
	})
}

func (t *fakeNetworkTransport) Reply(req *RemoteMessage, msg Message) {
	t.Send(req.Sender, msg)
}

var _ Transporter = &fakeNetworkTransport{}

func testEndpoint(port int) Endpoint {
	return Endpoint{
		Host: "10.0.0.1",
		Port: port,
	}
}

func testConfig() *Config {
	return DefaultConfig()
}
