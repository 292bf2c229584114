package gossip

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/andydunstall/murmur/pkg/log"
)

// Gossip manages the cluster membership of the local node.
type Gossip struct {
	self Endpoint

	node *node

	scheduler *loopScheduler
	transport *packetTransport

	config *Config

	metrics *Metrics

	logger log.Logger

	closed *atomic.Bool
}

// New starts gossiping on the given packet connection.
//
// self is the endpoint advertised to other nodes and must route to conn.
func New(
	self Endpoint,
	config *Config,
	conn net.PacketConn,
	logger log.Logger,
) *Gossip {
	logger = logger.WithSubsystem("gossip")

	logger.Info(
		"starting gossip",
		zap.String("endpoint", self.String()),
		zap.String("bind-addr", config.BindAddr),
	)

	metrics := newMetrics()
	scheduler := newLoopScheduler()

	var n *node
	transport := newPacketTransport(
		self,
		conn,
		config.MaxPacketSize,
		scheduler,
		func(msg *RemoteMessage) {
			n.Dispatch(msg)
		},
		metrics,
		logger,
	)
	n = newNode(self, config, scheduler, transport, unixMilli, metrics, logger)

	scheduler.Submit(n.Start)
	go transport.Serve()

	return &Gossip{
		self:      self,
		node:      n,
		scheduler: scheduler,
		transport: transport,
		config:    config,
		metrics:   metrics,
		logger:    logger,
		closed:    atomic.NewBool(false),
	}
}

// Self returns the endpoint of the local node.
func (g *Gossip) Self() Endpoint {
	return g.self
}

// Members returns the known member records, including members that have
// left.
func (g *Gossip) Members() []Member {
	// Copy so callers can't modify the shared snapshot.
	return slices.Clone(g.node.members.Snapshot().Members)
}

// Member returns the known record of the member with the given endpoint.
func (g *Gossip) Member(endpoint Endpoint) (Member, bool) {
	return g.node.members.Member(endpoint)
}

// AvailableEndpoints returns the endpoints of members that haven't left and
// aren't suspected.
func (g *Gossip) AvailableEndpoints() []Endpoint {
	return g.node.AvailableEndpoints()
}

// Suspected returns the endpoints of members suspected of having failed.
func (g *Gossip) Suspected() []Endpoint {
	return g.node.Suspected()
}

// Digest returns the digest of the local membership state. Nodes with the
// same digest have converged.
func (g *Gossip) Digest() []byte {
	return g.node.members.Digest()
}

// LatencyRanking returns the reachable members ordered by the latency of
// their last probe.
func (g *Gossip) LatencyRanking() []Latency {
	return g.node.latency.Ranking()
}

// PendingUpdates returns the number of updates pending dissemination.
func (g *Gossip) PendingUpdates() int {
	return g.node.updates.Len()
}

// AddWatcher registers a watcher to be notified of membership changes.
func (g *Gossip) AddWatcher(w Watcher) {
	g.node.watchers.Add(w)
}

// Join attempts to join an existing cluster by announcing the local node to
// the seeds at the given addresses.
//
// The addresses may contain either IP addresses or domain names. When a
// domain name is used, the domain is resolved and each resolved IP address is
// used as a seed. If the port is omitted the bind port is used.
//
// Join doesn't wait for the seeds to respond, since membership converges via
// gossip even if some seeds are unreachable.
//
// Returns the seeds that were announced to.
func (g *Gossip) Join(ctx context.Context, addrs []string) ([]Endpoint, error) {
	var seeds []Endpoint
	for _, unresolvedAddr := range addrs {
		unresolvedAddr = g.ensurePort(unresolvedAddr)
		resolved, err := resolveAddr(ctx, unresolvedAddr)
		if err != nil {
			return nil, fmt.Errorf("resolve: %s: %w", unresolvedAddr, err)
		}
		if len(resolved) == 0 {
			g.logger.Warn(
				"join: domain did not resolve any addresses",
				zap.String("addr", unresolvedAddr),
			)
			continue
		}

		for _, addr := range resolved {
			seed, err := ParseEndpoint(addr)
			if err != nil {
				return nil, err
			}
			if seed == g.self {
				continue
			}
			seeds = append(seeds, seed)
		}
	}

	if len(seeds) == 0 {
		return nil, nil
	}

	if err := g.run(ctx, func() {
		g.node.Join(seeds)
	}); err != nil {
		return nil, err
	}
	return seeds, nil
}

// Leave gracefully leaves the cluster.
//
// This marks the local node as left and notifies up to 3 members.
//
// After the node has left it should be closed.
func (g *Gossip) Leave(ctx context.Context) error {
	var notified int
	if err := g.run(ctx, func() {
		notified = g.node.Leave()
	}); err != nil {
		return err
	}

	g.logger.Info("left cluster", zap.Int("notified", notified))
	return nil
}

// TrustMember asks the failure detector to re-probe the member if it is
// currently suspected.
func (g *Gossip) TrustMember(endpoint Endpoint) {
	g.scheduler.Submit(func() {
		g.node.TrustMember(endpoint)
	})
}

func (g *Gossip) Metrics() *Metrics {
	return g.metrics
}

// Close stops gossiping and closes the packet connection.
//
// To leave gracefully, first call Leave, otherwise other nodes in the
// cluster will detect this node as failed rather than as having left.
func (g *Gossip) Close() error {
	if !g.closed.CompareAndSwap(false, true) {
		// Already closed.
		return nil
	}

	var errs error
	if err := g.run(context.Background(), g.node.Stop); err != nil {
		errs = errors.Join(errs, err)
	}
	if err := g.transport.Close(); err != nil {
		errs = errors.Join(errs, err)
	}
	g.scheduler.Shutdown()
	return errs
}

// run runs f on the event loop and waits for it to complete.
func (g *Gossip) run(ctx context.Context, f func()) error {
	doneCh := make(chan struct{})
	g.scheduler.Submit(func() {
		f()
		close(doneCh)
	})

	select {
	case <-doneCh:
		return nil
	case <-g.scheduler.shutdownCh:
		return fmt.Errorf("gossip closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ensurePort adds the configured bind port to addr if addr doesn't already
// have a port.
func (g *Gossip) ensurePort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}

	_, bindPort, err := net.SplitHostPort(g.config.BindAddr)
	if err != nil {
		// We've already bound to bind addr so expect it to be valid.
		panic("invalid bind addr: " + g.config.BindAddr)
	}

	return net.JoinHostPort(strings.Trim(addr, "[]"), bindPort)
}

// resolveAddr resolves the given address, which may be a domain pointing
// to multiple IP addresses.
func resolveAddr(ctx context.Context, addr string) ([]string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid addr: %s: %w", addr, err)
	}

	// If the address already contains an IP address, do nothing.
	if ip := net.ParseIP(host); ip != nil {
		return []string{addr}, nil
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("lookup host: %s: %w", host, err)
	}

	var addrs []string
	for _, ip := range ips {
		addrs = append(addrs, net.JoinHostPort(ip.String(), port))
	}
	return addrs, nil
}

func unixMilli() int64 {
	return time.Now().UnixMilli()
}
