package gossip

import "sync"

// EventKind is a membership change observed by the local node.
type EventKind int

const (
	EventJoined EventKind = iota + 1
	EventSuspected
	EventBacked
	EventLeaved
)

func (k EventKind) String() string {
	switch k {
	case EventJoined:
		return "JOINED"
	case EventSuspected:
		return "SUSPECTED"
	case EventBacked:
		return "BACKED"
	case EventLeaved:
		return "LEAVED"
	default:
		return "UNKNOWN"
	}
}

// Watcher is used to receive notifications when the membership of the
// cluster changes.
//
// Watchers are called from the gossip event loop so must not block. They
// must not call the Gossip methods that wait on the event loop (Join, Leave
// and Close), since those wait for a task queued behind the watcher itself
// and would deadlock.
type Watcher interface {
	// OnJoined notifies that a node joined the cluster.
	OnJoined(endpoint Endpoint)

	// OnSuspected notifies that a node didn't respond to a ping and is
	// suspected of having failed.
	OnSuspected(endpoint Endpoint)

	// OnBacked notifies that a suspected node responded to a ping.
	OnBacked(endpoint Endpoint)

	// OnLeaved notifies that a node left the cluster.
	OnLeaved(endpoint Endpoint)
}

// WatcherFunc adapts a function to a Watcher.
type WatcherFunc func(kind EventKind, endpoint Endpoint)

func (f WatcherFunc) OnJoined(endpoint Endpoint) {
	f(EventJoined, endpoint)
}

func (f WatcherFunc) OnSuspected(endpoint Endpoint) {
	f(EventSuspected, endpoint)
}

func (f WatcherFunc) OnBacked(endpoint Endpoint) {
	f(EventBacked, endpoint)
}

func (f WatcherFunc) OnLeaved(endpoint Endpoint) {
	f(EventLeaved, endpoint)
}

// watchers fans out events to each registered watcher.
type watchers struct {
	watchers []Watcher

	// mu protects the above fields.
	mu sync.Mutex
}

func newWatchers() *watchers {
	return &watchers{}
}

func (w *watchers) Add(watcher Watcher) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.watchers = append(w.watchers, watcher)
}

func (w *watchers) OnJoined(endpoint Endpoint) {
	for _, watcher := range w.list() {
		watcher.OnJoined(endpoint)
	}
}

func (w *watchers) OnSuspected(endpoint Endpoint) {
	for _, watcher := range w.list() {
		watcher.OnSuspected(endpoint)
	}
}

func (w *watchers) OnBacked(endpoint Endpoint) {
	for _, watcher := range w.list() {
		watcher.OnBacked(endpoint)
	}
}

func (w *watchers) OnLeaved(endpoint Endpoint) {
	for _, watcher := range w.list() {
		watcher.OnLeaved(endpoint)
	}
}

func (w *watchers) list() []Watcher {
	w.mu.Lock()
	defer w.mu.Unlock()

	return append([]Watcher(nil), w.watchers...)
}

var _ Watcher = &watchers{}
var _ Watcher = WatcherFunc(nil)

// notifyMembershipChange notifies the watcher of the members that joined or
// left because of the mutation.
func notifyMembershipChange(w Watcher, result UpdateResult) {
	for _, endpoint := range result.Joined {
		w.OnJoined(endpoint)
	}
	for _, endpoint := range result.Left {
		w.OnLeaved(endpoint)
	}
}
