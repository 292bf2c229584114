package gossip

import (
	"cmp"
	"slices"
	"sync"
)

type UpdateKind uint8

const (
	MemberJoined UpdateKind = iota + 1
	MemberLeaved
)

func (k UpdateKind) String() string {
	switch k {
	case MemberJoined:
		return "joined"
	case MemberLeaved:
		return "leaved"
	default:
		return "unknown"
	}
}

// Update is a membership change pending dissemination to the cluster.
type Update struct {
	// ID is a local identifier used to correlate feedback from peers. IDs
	// are never compared across nodes.
	ID uint64 `json:"id" codec:"id"`

	Kind UpdateKind `json:"kind" codec:"kind"`

	Endpoint Endpoint `json:"endpoint" codec:"endpoint"`

	// Timestamp is the added or removed time of the member, depending on
	// Kind.
	Timestamp int64 `json:"timestamp" codec:"timestamp"`
}

// apply applies the update to the given member list.
func (u Update) apply(members *memberList) UpdateResult {
	switch u.Kind {
	case MemberJoined:
		return members.Add(u.Endpoint, u.Timestamp)
	case MemberLeaved:
		return members.Remove(u.Endpoint, u.Timestamp)
	default:
		// Unknown kinds are rejected by the decoder.
		panic("unsupported update kind: " + u.Kind.String())
	}
}

type updateEntry struct {
	update Update
	// count is the number of times the update was disseminated or reported
	// as not useful.
	count int
}

// updateQueue contains membership updates pending dissemination.
//
// Each update is disseminated until it has been taken, or reported as not
// useful, threshold times, after which it is assumed to have reached the
// cluster and is evicted.
type updateQueue struct {
	entries map[uint64]*updateEntry
	nextID  uint64

	threshold int

	// mu protects the above fields.
	mu sync.Mutex
}

func newUpdateQueue(threshold int) *updateQueue {
	return &updateQueue{
		entries:   make(map[uint64]*updateEntry),
		nextID:    1,
		threshold: threshold,
	}
}

// Enqueue adds an update with the next local ID.
func (q *updateQueue) Enqueue(kind UpdateKind, endpoint Endpoint, timestamp int64) Update {
	q.mu.Lock()
	defer q.mu.Unlock()

	update := Update{
		ID:        q.nextID,
		Kind:      kind,
		Endpoint:  endpoint,
		Timestamp: timestamp,
	}
	q.nextID++
	q.entries[update.ID] = &updateEntry{update: update}
	return update
}

// Take returns up to n of the least disseminated updates.
func (q *updateQueue) Take(n int) []Update {
	return q.TakeExcept(n, nil)
}

// TakeExcept returns up to n of the least disseminated updates whose IDs are
// not in excluded. Ties are broken by ID.
//
// Each returned update has its dissemination count incremented.
func (q *updateQueue) TakeExcept(n int, excluded map[uint64]struct{}) []Update {
	if n <= 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	candidates := make([]*updateEntry, 0, len(q.entries))
	for id, e := range q.entries {
		if _, ok := excluded[id]; ok {
			continue
		}
		candidates = append(candidates, e)
	}
	slices.SortFunc(candidates, func(a, b *updateEntry) int {
		if c := cmp.Compare(a.count, b.count); c != 0 {
			return c
		}
		return cmp.Compare(a.update.ID, b.update.ID)
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}

	updates := make([]Update, 0, len(candidates))
	for _, e := range candidates {
		updates = append(updates, e.update)
		q.incrementLocked(e)
	}
	return updates
}

// DecreaseUsefulness records that a peer reported the update didn't change
// its state.
func (q *updateQueue) DecreaseUsefulness(id uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e, ok := q.entries[id]; ok {
		q.incrementLocked(e)
	}
}

func (q *updateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.entries)
}

func (q *updateQueue) incrementLocked(e *updateEntry) {
	e.count++
	if e.count >= q.threshold {
		delete(q.entries, e.update.ID)
	}
}
