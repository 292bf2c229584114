package gossip

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemberList_Add(t *testing.T) {
	t.Run("add unknown", func(t *testing.T) {
		ml := newMemberList()

		result := ml.Add(testEndpoint(1), 10)
		assert.True(t, result.Updated)
		assert.Equal(t, []Endpoint{testEndpoint(1)}, result.Joined)
		assert.Equal(t, ml.Digest(), result.Digest)

		m, ok := ml.Member(testEndpoint(1))
		require.True(t, ok)
		assert.Equal(t, Member{testEndpoint(1), 10, 0}, m)
	})

	t.Run("add older", func(t *testing.T) {
		ml := newMemberList()
		ml.Add(testEndpoint(1), 10)
		digest := ml.Digest()

		result := ml.Add(testEndpoint(1), 5)
		assert.False(t, result.Updated)
		assert.Equal(t, digest, result.Digest)

		m, _ := ml.Member(testEndpoint(1))
		assert.Equal(t, int64(10), m.TimeAdded)
	})

	t.Run("add same", func(t *testing.T) {
		ml := newMemberList()
		ml.Add(testEndpoint(1), 10)

		result := ml.Add(testEndpoint(1), 10)
		assert.False(t, result.Updated)
	})

	t.Run("add newer keeps removed time", func(t *testing.T) {
		ml := newMemberList()
		ml.Add(testEndpoint(1), 10)
		ml.Remove(testEndpoint(1), 20)

		result := ml.Add(testEndpoint(1), 30)
		assert.True(t, result.Updated)
		assert.Equal(t, []Endpoint{testEndpoint(1)}, result.Joined)

		m, _ := ml.Member(testEndpoint(1))
		assert.Equal(t, Member{testEndpoint(1), 30, 20}, m)
		assert.True(t, m.Exists())
	})

	t.Run("add all", func(t *testing.T) {
		ml := newMemberList()

		result := ml.AddAll([]Endpoint{testEndpoint(1), testEndpoint(2)}, 0)
		assert.True(t, result.Updated)
		assert.ElementsMatch(
			t, []Endpoint{testEndpoint(1), testEndpoint(2)}, result.Joined,
		)
		assert.True(t, ml.Exists(testEndpoint(1)))
		assert.True(t, ml.Exists(testEndpoint(2)))
	})
}

func TestMemberList_Remove(t *testing.T) {
	t.Run("remove known", func(t *testing.T) {
		ml := newMemberList()
		ml.Add(testEndpoint(1), 10)

		result := ml.Remove(testEndpoint(1), 20)
		assert.True(t, result.Updated)
		assert.Equal(t, []Endpoint{testEndpoint(1)}, result.Left)
		assert.False(t, ml.Exists(testEndpoint(1)))
	})

	t.Run("remove older", func(t *testing.T) {
		ml := newMemberList()
		ml.Add(testEndpoint(1), 10)
		ml.Remove(testEndpoint(1), 20)

		result := ml.Remove(testEndpoint(1), 15)
		assert.False(t, result.Updated)
	})

	t.Run("tie favours added", func(t *testing.T) {
		ml := newMemberList()
		ml.Add(testEndpoint(1), 10)

		result := ml.Remove(testEndpoint(1), 10)
		assert.True(t, result.Updated)
		assert.Empty(t, result.Left)
		assert.True(t, ml.Exists(testEndpoint(1)))
	})

	t.Run("remove unknown adds tombstone", func(t *testing.T) {
		ml := newMemberList()

		result := ml.Remove(testEndpoint(1), 20)
		assert.True(t, result.Updated)
		assert.Empty(t, result.Left)

		// A delayed add older than the removal is ignored.
		result = ml.Add(testEndpoint(1), 10)
		assert.True(t, result.Updated)
		assert.Empty(t, result.Joined)
		assert.False(t, ml.Exists(testEndpoint(1)))
	})
}

func TestMemberList_MergeAll(t *testing.T) {
	t.Run("max of each timestamp", func(t *testing.T) {
		ml := newMemberList()
		ml.MergeAll([]Member{
			{testEndpoint(1), 10, 5},
			{testEndpoint(2), 10, 20},
		})

		result := ml.MergeAll([]Member{
			{testEndpoint(1), 8, 15},
			{testEndpoint(2), 30, 0},
			{testEndpoint(3), 1, 0},
		})
		assert.True(t, result.Updated)
		assert.ElementsMatch(
			t, []Endpoint{testEndpoint(2), testEndpoint(3)}, result.Joined,
		)
		assert.Equal(t, []Endpoint{testEndpoint(1)}, result.Left)

		assert.Equal(t, []Member{
			{testEndpoint(1), 10, 15},
			{testEndpoint(2), 30, 20},
			{testEndpoint(3), 1, 0},
		}, ml.Snapshot().Members)
	})

	t.Run("commutative", func(t *testing.T) {
		a := []Member{
			{testEndpoint(1), 10, 0},
			{testEndpoint(2), 5, 12},
		}
		b := []Member{
			{testEndpoint(1), 4, 11},
			{testEndpoint(2), 15, 0},
			{testEndpoint(3), 7, 0},
		}

		ml1 := newMemberList()
		ml1.MergeAll(a)
		ml1.MergeAll(b)

		ml2 := newMemberList()
		ml2.MergeAll(b)
		ml2.MergeAll(a)

		assert.Equal(t, ml1.Digest(), ml2.Digest())
		assert.Equal(t, ml1.Snapshot().Members, ml2.Snapshot().Members)
	})

	t.Run("idempotent", func(t *testing.T) {
		records := []Member{
			{testEndpoint(1), 10, 0},
			{testEndpoint(2), 5, 12},
		}

		ml := newMemberList()
		ml.MergeAll(records)
		digest := ml.Digest()

		result := ml.MergeAll(records)
		assert.False(t, result.Updated)
		assert.Equal(t, digest, result.Digest)
	})
}

func TestMemberList_Digest(t *testing.T) {
	t.Run("order independent", func(t *testing.T) {
		ml1 := newMemberList()
		ml1.Add(testEndpoint(1), 10)
		ml1.Add(testEndpoint(2), 20)
		ml1.Add(Endpoint{Host: "10.0.0.2", Port: 1}, 30)

		ml2 := newMemberList()
		ml2.Add(Endpoint{Host: "10.0.0.2", Port: 1}, 30)
		ml2.Add(testEndpoint(2), 20)
		ml2.Add(testEndpoint(1), 10)

		assert.Equal(t, ml1.Digest(), ml2.Digest())
	})

	t.Run("changes with record", func(t *testing.T) {
		ml1 := newMemberList()
		ml1.Add(testEndpoint(1), 10)

		ml2 := newMemberList()
		ml2.Add(testEndpoint(1), 11)

		ml3 := newMemberList()
		ml3.Add(testEndpoint(1), 10)
		ml3.Remove(testEndpoint(1), 5)

		assert.NotEqual(t, ml1.Digest(), ml2.Digest())
		assert.NotEqual(t, ml1.Digest(), ml3.Digest())
	})

	t.Run("encoding", func(t *testing.T) {
		ml := newMemberList()
		ml.MergeAll([]Member{{Endpoint{"b", 2}, 7, 3}})

		var expected []byte
		expected = binary.BigEndian.AppendUint16(expected, 1)
		expected = append(expected, 'b')
		expected = binary.BigEndian.AppendUint32(expected, 2)
		expected = binary.BigEndian.AppendUint64(expected, 7)
		expected = binary.BigEndian.AppendUint64(expected, 3)
		sum := sha256.Sum256(expected)

		assert.Equal(t, sum[:], ml.Digest())
	})

	t.Run("empty", func(t *testing.T) {
		sum := sha256.Sum256(nil)
		assert.Equal(t, sum[:], newMemberList().Digest())
	})
}

func TestMemberList_RandomExcept(t *testing.T) {
	newList := func() *memberList {
		ml := newMemberList()
		for i := 1; i <= 5; i++ {
			ml.Add(testEndpoint(i), 10)
		}
		// Removed members are never selected.
		ml.Add(testEndpoint(6), 10)
		ml.Remove(testEndpoint(6), 20)
		return ml
	}

	t.Run("excludes", func(t *testing.T) {
		ml := newList()
		exclude := NewEndpointSet(testEndpoint(1), testEndpoint(2))

		for i := 0; i != 100; i++ {
			endpoints := ml.RandomExcept(2, exclude)
			assert.Len(t, endpoints, 2)
			assert.NotEqual(t, endpoints[0], endpoints[1])
			for _, e := range endpoints {
				assert.False(t, exclude.Contains(e))
				assert.NotEqual(t, testEndpoint(6), e)
			}
		}
	})

	t.Run("fewer than n", func(t *testing.T) {
		ml := newList()

		endpoints := ml.RandomExcept(10, NewEndpointSet(testEndpoint(1)))
		assert.ElementsMatch(t, []Endpoint{
			testEndpoint(2), testEndpoint(3), testEndpoint(4), testEndpoint(5),
		}, endpoints)
	})

	t.Run("none available", func(t *testing.T) {
		ml := newMemberList()
		ml.Add(testEndpoint(1), 10)

		assert.Empty(t, ml.RandomExcept(3, NewEndpointSet(testEndpoint(1))))
		assert.Empty(t, ml.RandomExcept(0, nil))
	})

	t.Run("uniform", func(t *testing.T) {
		ml := newList()

		counts := make(map[Endpoint]int)
		for i := 0; i != 5000; i++ {
			endpoints := ml.RandomExcept(1, nil)
			require.Len(t, endpoints, 1)
			counts[endpoints[0]]++
		}

		assert.Len(t, counts, 5)
		for _, count := range counts {
			// Expect ~1000 each.
			assert.Greater(t, count, 700)
		}
	})
}
