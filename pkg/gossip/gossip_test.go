package gossip

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andydunstall/murmur/pkg/log"
)

func TestGossip_MembersReturnsCopy(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	self, err := ParseEndpoint(conn.LocalAddr().String())
	require.NoError(t, err)

	config := DefaultConfig()
	config.BindAddr = conn.LocalAddr().String()
	g := New(self, config, conn, log.NewNopLogger())
	defer g.Close()

	digest := g.Digest()

	members := g.Members()
	require.Len(t, members, 1)
	members[0].TimeRemoved = members[0].TimeAdded + 1000

	m, ok := g.Member(self)
	require.True(t, ok)
	assert.True(t, m.Exists())
	assert.Equal(t, digest, g.Digest())
	assert.Equal(t, int64(0), g.Members()[0].TimeRemoved)
}
