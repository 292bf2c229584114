package gossip

import (
	"cmp"
	"slices"
	"sync"
)

// Notification is a claim that a node is suspected of having failed or is
// trusted to be alive.
type Notification struct {
	Endpoint Endpoint `json:"endpoint" codec:"endpoint"`

	Suspected bool `json:"suspected" codec:"suspected"`

	// Timestamp is the UNIX timestamp in milliseconds the claim was made.
	Timestamp int64 `json:"timestamp" codec:"timestamp"`

	// ReportedBy is the node that made the claim.
	ReportedBy Endpoint `json:"reported_by" codec:"reported_by"`
}

type notificationEntry struct {
	notification Notification
	count        int
}

// notificationQueue contains suspicion and trust notifications pending
// dissemination.
//
// There is at most one notification per endpoint, where the latest claim
// replaces any older claim about the same node.
type notificationQueue struct {
	entries map[Endpoint]*notificationEntry

	threshold int

	// mu protects the above fields.
	mu sync.Mutex
}

func newNotificationQueue(threshold int) *notificationQueue {
	return &notificationQueue{
		entries:   make(map[Endpoint]*notificationEntry),
		threshold: threshold,
	}
}

func (q *notificationQueue) Suspect(endpoint Endpoint, timestamp int64, reportedBy Endpoint) {
	q.Put(Notification{
		Endpoint:   endpoint,
		Suspected:  true,
		Timestamp:  timestamp,
		ReportedBy: reportedBy,
	})
}

func (q *notificationQueue) Trust(endpoint Endpoint, timestamp int64, reportedBy Endpoint) {
	q.Put(Notification{
		Endpoint:   endpoint,
		Suspected:  false,
		Timestamp:  timestamp,
		ReportedBy: reportedBy,
	})
}

// Put adds the notification, replacing any notification for the same
// endpoint unless the existing notification is newer.
func (q *notificationQueue) Put(n Notification) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e, ok := q.entries[n.Endpoint]; ok && e.notification.Timestamp > n.Timestamp {
		return
	}
	q.entries[n.Endpoint] = &notificationEntry{notification: n}
}

// Take returns up to n of the least disseminated notifications, incrementing
// the dissemination count of each. Ties are broken by endpoint.
func (q *notificationQueue) Take(n int) []Notification {
	if n <= 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	candidates := make([]*notificationEntry, 0, len(q.entries))
	for _, e := range q.entries {
		candidates = append(candidates, e)
	}
	slices.SortFunc(candidates, func(a, b *notificationEntry) int {
		if c := cmp.Compare(a.count, b.count); c != 0 {
			return c
		}
		return a.notification.Endpoint.Compare(b.notification.Endpoint)
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}

	notifications := make([]Notification, 0, len(candidates))
	for _, e := range candidates {
		notifications = append(notifications, e.notification)
		e.count++
		if e.count >= q.threshold {
			delete(q.entries, e.notification.Endpoint)
		}
	}
	return notifications
}

func (q *notificationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.entries)
}
