package gossip

import (
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andydunstall/murmur/pkg/gossip"
	"github.com/andydunstall/murmur/server/status"
)

// MemberStatus is the status of a known member.
type MemberStatus struct {
	Endpoint    string `json:"endpoint"`
	TimeAdded   int64  `json:"time_added"`
	TimeRemoved int64  `json:"time_removed"`
	Exists      bool   `json:"exists"`
	Suspected   bool   `json:"suspected"`
}

// DigestStatus is the membership digest of a node.
type DigestStatus struct {
	// Digest is the hex encoded membership digest.
	Digest string `json:"digest"`
	// Members is the number of member records included in the digest.
	Members int `json:"members"`
}

type membership interface {
	Members() []gossip.Member
	AvailableEndpoints() []gossip.Endpoint
	Suspected() []gossip.Endpoint
	LatencyRanking() []gossip.Latency
	Digest() []byte
}

// Status exposes the local membership state.
type Status struct {
	membership membership
}

func NewStatus(membership membership) *Status {
	return &Status{
		membership: membership,
	}
}

func (s *Status) Register(group *gin.RouterGroup) {
	group.GET("/members", s.listMembersRoute)
	group.GET("/members/available", s.availableRoute)
	group.GET("/latency", s.latencyRoute)
	group.GET("/digest", s.digestRoute)
}

func (s *Status) listMembersRoute(c *gin.Context) {
	suspected := gossip.NewEndpointSet(s.membership.Suspected()...)

	members := []MemberStatus{}
	for _, m := range s.membership.Members() {
		members = append(members, MemberStatus{
			Endpoint:    m.Endpoint.String(),
			TimeAdded:   m.TimeAdded,
			TimeRemoved: m.TimeRemoved,
			Exists:      m.Exists(),
			Suspected:   suspected.Contains(m.Endpoint),
		})
	}
	c.JSON(http.StatusOK, members)
}

func (s *Status) availableRoute(c *gin.Context) {
	endpoints := []string{}
	for _, e := range s.membership.AvailableEndpoints() {
		endpoints = append(endpoints, e.String())
	}
	c.JSON(http.StatusOK, endpoints)
}

func (s *Status) latencyRoute(c *gin.Context) {
	ranking := s.membership.LatencyRanking()
	if ranking == nil {
		ranking = []gossip.Latency{}
	}
	c.JSON(http.StatusOK, ranking)
}

func (s *Status) digestRoute(c *gin.Context) {
	c.JSON(http.StatusOK, DigestStatus{
		Digest:  hex.EncodeToString(s.membership.Digest()),
		Members: len(s.membership.Members()),
	})
}

var _ status.Handler = &Status{}
