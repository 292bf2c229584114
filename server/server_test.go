package server

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andydunstall/murmur/pkg/log"
	"github.com/andydunstall/murmur/server/config"
	"github.com/andydunstall/murmur/status/client"
)

func testConfig() *config.Config {
	conf := config.Default()
	conf.Gossip.BindAddr = "127.0.0.1:0"
	conf.Gossip.ProbeInterval = time.Millisecond * 100
	conf.Gossip.PingTimeout = time.Millisecond * 100
	conf.Gossip.ProxyPingTimeout = time.Millisecond * 200
	conf.Gossip.ExchangeInterval = time.Millisecond * 50
	conf.Admin.BindAddr = "127.0.0.1:0"
	conf.GracePeriod = time.Second
	return conf
}

func runServer(t *testing.T, conf *config.Config) (*Server, *client.Client, func()) {
	t.Helper()

	s, err := NewServer(conf, log.NewNopLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Run(ctx)
	}()

	adminURL, err := url.Parse("http://" + s.AdminAddr())
	require.NoError(t, err)
	c := client.NewClient(adminURL)

	stop := func() {
		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(time.Second * 5):
			t.Fatal("timeout")
		}
		c.Close()
	}
	return s, c, stop
}

func TestServer_JoinCluster(t *testing.T) {
	seed, seedClient, stopSeed := runServer(t, testConfig())
	defer stopSeed()

	conf := testConfig()
	conf.Cluster.Join = []string{seed.Gossip().Self().String()}
	conf.Cluster.AbortIfJoinFails = true
	node, nodeClient, stopNode := runServer(t, conf)

	assert.Eventually(t, func() bool {
		seedDigest, err := seedClient.Digest()
		if err != nil {
			return false
		}
		nodeDigest, err := nodeClient.Digest()
		if err != nil {
			return false
		}
		return seedDigest.Members == 2 && seedDigest.Digest == nodeDigest.Digest
	}, time.Second*10, time.Millisecond*50)

	available, err := seedClient.AvailableEndpoints()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		seed.Gossip().Self().String(),
		node.Gossip().Self().String(),
	}, available)

	// Stopping the node leaves the cluster.
	stopNode()

	assert.Eventually(t, func() bool {
		members, err := seedClient.GossipMembers()
		if err != nil {
			return false
		}
		for _, m := range members {
			if m.Endpoint == node.Gossip().Self().String() {
				return !m.Exists
			}
		}
		return false
	}, time.Second*5, time.Millisecond*50)
}

func TestServer_AbortIfJoinFails(t *testing.T) {
	conf := testConfig()
	conf.Cluster.Join = []string{"127.0.0.1:abc"}
	conf.Cluster.AbortIfJoinFails = true
	conf.Cluster.JoinTimeout = time.Millisecond * 300

	s, err := NewServer(conf, log.NewNopLogger())
	require.NoError(t, err)

	assert.ErrorContains(t, s.Run(context.Background()), "join cluster")
}

func TestAdvertiseAddrFromBindAddr(t *testing.T) {
	addr, err := advertiseAddrFromBindAddr("10.26.104.14:7946")
	require.NoError(t, err)
	assert.Equal(t, "10.26.104.14:7946", addr)

	_, err = advertiseAddrFromBindAddr("10.26.104.14")
	assert.Error(t, err)
}
