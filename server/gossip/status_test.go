package gossip

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andydunstall/murmur/pkg/gossip"
)

type fakeMembership struct {
	members   []gossip.Member
	suspected []gossip.Endpoint
	latency   []gossip.Latency
	digest    []byte
}

func (m *fakeMembership) Members() []gossip.Member {
	return m.members
}

func (m *fakeMembership) AvailableEndpoints() []gossip.Endpoint {
	suspected := gossip.NewEndpointSet(m.suspected...)
	var endpoints []gossip.Endpoint
	for _, member := range m.members {
		if member.Exists() && !suspected.Contains(member.Endpoint) {
			endpoints = append(endpoints, member.Endpoint)
		}
	}
	return endpoints
}

func (m *fakeMembership) Suspected() []gossip.Endpoint {
	return m.suspected
}

func (m *fakeMembership) LatencyRanking() []gossip.Latency {
	return m.latency
}

func (m *fakeMembership) Digest() []byte {
	return m.digest
}

func testRouter(m membership) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewStatus(m).Register(router.Group("/status/gossip"))
	return router
}

func get(t *testing.T, router *gin.Engine, path string, v any) {
	t.Helper()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestStatus(t *testing.T) {
	a := gossip.Endpoint{Host: "10.26.104.1", Port: 7946}
	b := gossip.Endpoint{Host: "10.26.104.2", Port: 7946}
	c := gossip.Endpoint{Host: "10.26.104.3", Port: 7946}

	m := &fakeMembership{
		members: []gossip.Member{
			{Endpoint: a, TimeAdded: 100},
			{Endpoint: b, TimeAdded: 100},
			{Endpoint: c, TimeAdded: 100, TimeRemoved: 200},
		},
		suspected: []gossip.Endpoint{b},
		latency: []gossip.Latency{
			{Endpoint: a, Latency: 5, PingAt: 1000},
		},
		digest: []byte{0xab, 0xcd},
	}
	router := testRouter(m)

	t.Run("members", func(t *testing.T) {
		var members []MemberStatus
		get(t, router, "/status/gossip/members", &members)

		assert.Equal(t, []MemberStatus{
			{Endpoint: "10.26.104.1:7946", TimeAdded: 100, Exists: true},
			{Endpoint: "10.26.104.2:7946", TimeAdded: 100, Exists: true, Suspected: true},
			{Endpoint: "10.26.104.3:7946", TimeAdded: 100, TimeRemoved: 200},
		}, members)
	})

	t.Run("available", func(t *testing.T) {
		var endpoints []string
		get(t, router, "/status/gossip/members/available", &endpoints)

		assert.Equal(t, []string{"10.26.104.1:7946"}, endpoints)
	})

	t.Run("latency", func(t *testing.T) {
		var latency []gossip.Latency
		get(t, router, "/status/gossip/latency", &latency)

		assert.Equal(t, m.latency, latency)
	})

	t.Run("digest", func(t *testing.T) {
		var digest DigestStatus
		get(t, router, "/status/gossip/digest", &digest)

		assert.Equal(t, DigestStatus{Digest: "abcd", Members: 3}, digest)
	})
}

func TestStatus_Empty(t *testing.T) {
	router := testRouter(&fakeMembership{})

	var members []MemberStatus
	get(t, router, "/status/gossip/members", &members)
	assert.Empty(t, members)

	var latency []gossip.Latency
	get(t, router, "/status/gossip/latency", &latency)
	assert.Empty(t, latency)
}
