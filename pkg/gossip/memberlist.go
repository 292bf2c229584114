package gossip

import (
	"crypto/sha256"
	"math/rand"
	"slices"
	"sync"

	"go.uber.org/atomic"
)

// Snapshot is an immutable view of the known members.
type Snapshot struct {
	// Members contains the known member records sorted by endpoint.
	Members []Member

	// Digest is a SHA-256 hash of the sorted member records. Two snapshots
	// have the same digest only if they contain identical records.
	Digest []byte
}

// UpdateResult describes the outcome of a membership mutation.
type UpdateResult struct {
	// Updated is true if any record changed.
	Updated bool

	// Digest is the digest after the mutation.
	Digest []byte

	// Joined contains the endpoints that became members because of the
	// mutation.
	Joined []Endpoint

	// Left contains the endpoints that stopped being members because of the
	// mutation.
	Left []Endpoint
}

// memberList is the local nodes view of the cluster membership.
//
// Conflicts are resolved by last-writer-wins on the added and removed
// timestamps independently, so merging is commutative, associative and
// idempotent.
//
// Mutations are serialised by a mutex. Readers load the latest snapshot
// without locking.
type memberList struct {
	members map[Endpoint]Member

	// mu protects the above fields.
	mu sync.Mutex

	snapshot *atomic.Pointer[Snapshot]
}

func newMemberList() *memberList {
	ml := &memberList{
		members:  make(map[Endpoint]Member),
		snapshot: atomic.NewPointer[Snapshot](nil),
	}
	ml.snapshot.Store(ml.buildSnapshot())
	return ml
}

// Add adds the member at the given time. The record is only replaced if
// timeAdded is newer than the known added time.
func (l *memberList) Add(endpoint Endpoint, timeAdded int64) UpdateResult {
	return l.AddAll([]Endpoint{endpoint}, timeAdded)
}

// AddAll adds each member at the given time.
func (l *memberList) AddAll(endpoints []Endpoint, timeAdded int64) UpdateResult {
	records := make([]Member, 0, len(endpoints))
	for _, e := range endpoints {
		records = append(records, Member{
			Endpoint:  e,
			TimeAdded: timeAdded,
		})
	}
	return l.MergeAll(records)
}

// Remove marks the member as removed at the given time. If the member is
// unknown, a tombstone is added so a delayed add with an older timestamp is
// ignored.
func (l *memberList) Remove(endpoint Endpoint, timeRemoved int64) UpdateResult {
	return l.MergeAll([]Member{{
		Endpoint:    endpoint,
		TimeRemoved: timeRemoved,
	}})
}

// MergeAll merges the given records into the local state, taking the max of
// the added and removed timestamps for each endpoint.
func (l *memberList) MergeAll(records []Member) UpdateResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	var result UpdateResult
	for _, incoming := range records {
		existing, ok := l.members[incoming.Endpoint]
		merged := Member{
			Endpoint:    incoming.Endpoint,
			TimeAdded:   max(existing.TimeAdded, incoming.TimeAdded),
			TimeRemoved: max(existing.TimeRemoved, incoming.TimeRemoved),
		}
		if ok && merged == existing {
			continue
		}

		l.members[incoming.Endpoint] = merged
		result.Updated = true

		existed := ok && existing.Exists()
		switch {
		case !existed && merged.Exists():
			result.Joined = append(result.Joined, merged.Endpoint)
		case existed && !merged.Exists():
			result.Left = append(result.Left, merged.Endpoint)
		}
	}

	if result.Updated {
		l.snapshot.Store(l.buildSnapshot())
	}
	result.Digest = l.snapshot.Load().Digest
	return result
}

// Member returns the known record for the given endpoint.
func (l *memberList) Member(endpoint Endpoint) (Member, bool) {
	for _, m := range l.Snapshot().Members {
		if m.Endpoint == endpoint {
			return m, true
		}
	}
	return Member{}, false
}

// Exists returns whether the given endpoint is a known member that hasn't
// been removed.
func (l *memberList) Exists(endpoint Endpoint) bool {
	m, ok := l.Member(endpoint)
	return ok && m.Exists()
}

func (l *memberList) Snapshot() *Snapshot {
	return l.snapshot.Load()
}

func (l *memberList) Digest() []byte {
	return l.snapshot.Load().Digest
}

// RandomExcept returns up to n distinct existing members chosen uniformly at
// random, excluding those in exclude.
func (l *memberList) RandomExcept(n int, exclude EndpointSet) []Endpoint {
	if n <= 0 {
		return nil
	}

	var candidates []Endpoint
	for _, m := range l.Snapshot().Members {
		if !m.Exists() || exclude.Contains(m.Endpoint) {
			continue
		}
		candidates = append(candidates, m.Endpoint)
	}

	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

// buildSnapshot must be called with mu held.
func (l *memberList) buildSnapshot() *Snapshot {
	members := make([]Member, 0, len(l.members))
	for _, m := range l.members {
		members = append(members, m)
	}
	slices.SortFunc(members, func(a, b Member) int {
		return a.Endpoint.Compare(b.Endpoint)
	})

	h := sha256.New()
	for _, m := range members {
		m.writeDigest(h)
	}
	return &Snapshot{
		Members: members,
		Digest:  h.Sum(nil),
	}
}
