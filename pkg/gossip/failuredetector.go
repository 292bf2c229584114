package gossip

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/andydunstall/murmur/pkg/log"
)

type pingState int

const (
	pingStateNone pingState = iota
	pingStateDirect
	pingStateProxy
)

func (s pingState) String() string {
	switch s {
	case pingStateNone:
		return "none"
	case pingStateDirect:
		return "direct"
	case pingStateProxy:
		return "proxy"
	default:
		return "unknown"
	}
}

// pingContext is the state of the outstanding probe.
type pingContext struct {
	state pingState

	// target is the probed node. Unset when state is none.
	target Endpoint
	// pingAt is the UNIX timestamp in milliseconds the probe started and
	// identifies the probe.
	pingAt int64
	// proxies contains the nodes asked to probe the target. Only set when
	// state is proxy.
	proxies EndpointSet
	// timeout is the pending timeout of the current state.
	timeout Cancelable
}

// acceptsPong returns whether a pong from sender completes the probe.
//
// A pong that arrives after the direct timeout still proves the target is
// alive so is accepted while probing via proxies.
func (c *pingContext) acceptsPong(sender Endpoint, pingAt int64) bool {
	switch c.state {
	case pingStateNone:
		return false
	case pingStateDirect, pingStateProxy:
		return c.target == sender && c.pingAt == pingAt
	default:
		panic("unsupported ping state: " + c.state.String())
	}
}

// acceptsProxyPingDone returns whether a proxy ping done from sender
// completes the probe.
func (c *pingContext) acceptsProxyPingDone(sender Endpoint, target Endpoint, pingAt int64) bool {
	switch c.state {
	case pingStateNone, pingStateDirect:
		return false
	case pingStateProxy:
		return c.target == target &&
			c.pingAt == pingAt &&
			c.proxies.Contains(sender)
	default:
		panic("unsupported ping state: " + c.state.String())
	}
}

// failureDetector probes nodes to detect failures.
//
// Each probe pings a node directly. If the node doesn't respond within the
// ping timeout, up to K other nodes are asked to ping it. If none of the
// proxies report a response within the proxy ping timeout the node is
// suspected.
//
// Nodes whose state was recently disputed by another node are queued to be
// probed next so the local node verifies the claim itself.
//
// The failure detector is only accessed from the event loop so isn't
// protected by a mutex.
type failureDetector struct {
	self Endpoint

	ctx pingContext

	// retryQueue contains nodes to probe before selecting a random node.
	retryQueue []Endpoint
	queued     EndpointSet

	lastPingAt int64

	members       *memberList
	latency       *latencyRecorder
	notifications *notificationQueue

	scheduler Scheduler
	transport Transporter
	watcher   Watcher

	config *Config
	clock  func() int64

	metrics *Metrics

	logger log.Logger
}

func newFailureDetector(
	self Endpoint,
	members *memberList,
	latency *latencyRecorder,
	notifications *notificationQueue,
	scheduler Scheduler,
	transport Transporter,
	watcher Watcher,
	config *Config,
	clock func() int64,
	metrics *Metrics,
	logger log.Logger,
) *failureDetector {
	return &failureDetector{
		self:          self,
		queued:        make(EndpointSet),
		members:       members,
		latency:       latency,
		notifications: notifications,
		scheduler:     scheduler,
		transport:     transport,
		watcher:       watcher,
		config:        config,
		clock:         clock,
		metrics:       metrics,
		logger:        logger.WithSubsystem("gossip.detector"),
	}
}

// Register registers the failure detector message handlers.
func (d *failureDetector) Register(dispatcher *dispatcher) {
	dispatcher.Register(MessageKindPing, typedHandler(d.onPing))
	dispatcher.Register(MessageKindPong, typedHandler(d.onPong))
	dispatcher.Register(MessageKindPingRequest, typedHandler(d.onPingRequest))
	dispatcher.Register(MessageKindProxyPing, typedHandler(d.onProxyPing))
	dispatcher.Register(MessageKindProxyPingResponse, typedHandler(d.onProxyPingResponse))
	dispatcher.Register(MessageKindProxyPingDone, typedHandler(d.onProxyPingDone))
}

// Start schedules the first probe.
func (d *failureDetector) Start() {
	d.scheduleProbe()
}

// Stop cancels the outstanding probe.
func (d *failureDetector) Stop() {
	d.transition(pingContext{state: pingStateNone})
}

// TrustMember queues the node to be probed next if its last probe failed.
func (d *failureDetector) TrustMember(endpoint Endpoint) {
	if d.latency.Failed(endpoint) {
		d.pushFront(endpoint)
	}
}

// ProcessNotifications folds the suspicion and trust claims of other nodes
// into the local state.
//
// A claim that disagrees with the local state queues the node to be probed,
// where the outcome of that probe is then disseminated.
func (d *failureDetector) ProcessNotifications(notifications []Notification) {
	for _, n := range notifications {
		if n.Endpoint == d.self {
			continue
		}
		failed := d.latency.Failed(n.Endpoint)
		if n.Suspected {
			if !failed && !d.queued.Contains(n.Endpoint) {
				d.logger.Debug(
					"member suspected by remote node",
					zap.String("endpoint", n.Endpoint.String()),
					zap.String("reported-by", n.ReportedBy.String()),
				)
				d.pushBack(n.Endpoint)
			}
		} else {
			if failed {
				d.logger.Debug(
					"member trusted by remote node",
					zap.String("endpoint", n.Endpoint.String()),
					zap.String("reported-by", n.ReportedBy.String()),
				)
				d.pushFront(n.Endpoint)
			}
		}
	}
}

func (d *failureDetector) scheduleProbe() {
	d.scheduler.Schedule(d.config.ProbeInterval, d.probe)
}

func (d *failureDetector) probe() {
	if d.ctx.state != pingStateNone {
		// A probe is already outstanding.
		return
	}

	target, ok := d.selectTarget()
	if !ok {
		d.scheduleProbe()
		return
	}

	pingAt := d.nextPingAt()
	d.transport.Send(target, &Ping{PingAt: pingAt})
	d.transition(pingContext{
		state:  pingStateDirect,
		target: target,
		pingAt: pingAt,
		timeout: d.scheduler.Schedule(d.config.PingTimeout, func() {
			d.onPingTimeout(target, pingAt)
		}),
	})

	d.logger.Debug(
		"probe",
		zap.String("target", target.String()),
		zap.Int64("ping-at", pingAt),
	)
}

// selectTarget selects the next node to probe. Nodes in the retry queue are
// probed first, otherwise a random member is selected.
func (d *failureDetector) selectTarget() (Endpoint, bool) {
	for len(d.retryQueue) > 0 {
		target := d.retryQueue[0]
		d.retryQueue = d.retryQueue[1:]
		delete(d.queued, target)

		if target == d.self || !d.members.Exists(target) {
			continue
		}
		return target, true
	}

	targets := d.members.RandomExcept(1, NewEndpointSet(d.self))
	if len(targets) == 0 {
		return Endpoint{}, false
	}
	return targets[0], true
}

func (d *failureDetector) onPingTimeout(target Endpoint, pingAt int64) {
	if d.ctx.state != pingStateDirect || d.ctx.target != target || d.ctx.pingAt != pingAt {
		return
	}

	exclude := d.latency.FailedEndpoints()
	exclude.Add(d.self)
	exclude.Add(target)
	proxies := d.members.RandomExcept(d.config.ProxyCount, exclude)
	if len(proxies) == 0 {
		d.logger.Debug(
			"ping timeout; no proxies available",
			zap.String("target", target.String()),
		)
		d.pingFailed(target, pingAt)
		return
	}

	for _, proxy := range proxies {
		d.transport.Send(proxy, &PingRequest{
			PingAt: pingAt,
			Target: target,
		})
	}
	d.transition(pingContext{
		state:   pingStateProxy,
		target:  target,
		pingAt:  pingAt,
		proxies: NewEndpointSet(proxies...),
		timeout: d.scheduler.Schedule(d.config.ProxyPingTimeout, func() {
			d.onProxyPingTimeout(target, pingAt)
		}),
	})

	d.logger.Debug(
		"ping timeout; probing via proxies",
		zap.String("target", target.String()),
		zap.Int("proxies", len(proxies)),
	)
}

func (d *failureDetector) onProxyPingTimeout(target Endpoint, pingAt int64) {
	if d.ctx.state != pingStateProxy || d.ctx.target != target || d.ctx.pingAt != pingAt {
		return
	}
	d.pingFailed(target, pingAt)
}

func (d *failureDetector) onPing(req *RemoteMessage, msg *Ping) {
	d.transport.Reply(req, &Pong{PingAt: msg.PingAt})
}

func (d *failureDetector) onPong(req *RemoteMessage, msg *Pong) {
	sender := req.Sender
	if !d.ctx.acceptsPong(sender, msg.PingAt) {
		d.logger.Debug(
			"discarding stale pong",
			zap.String("sender", sender.String()),
			zap.Int64("ping-at", msg.PingAt),
		)
		return
	}
	d.metrics.Probes.WithLabelValues("direct").Inc()
	d.pingSucceeded(sender, msg.PingAt)
}

func (d *failureDetector) onPingRequest(req *RemoteMessage, msg *PingRequest) {
	d.transport.Send(msg.Target, &ProxyPing{
		PingAt:         msg.PingAt,
		OriginalSender: req.Sender,
	})
}

func (d *failureDetector) onProxyPing(req *RemoteMessage, msg *ProxyPing) {
	d.transport.Reply(req, &ProxyPingResponse{
		PingAt:         msg.PingAt,
		OriginalSender: msg.OriginalSender,
	})
}

func (d *failureDetector) onProxyPingResponse(req *RemoteMessage, msg *ProxyPingResponse) {
	d.transport.Send(msg.OriginalSender, &ProxyPingDone{
		PingAt: msg.PingAt,
		Target: req.Sender,
	})
}

func (d *failureDetector) onProxyPingDone(req *RemoteMessage, msg *ProxyPingDone) {
	sender := req.Sender
	if !d.ctx.acceptsProxyPingDone(sender, msg.Target, msg.PingAt) {
		d.logger.Debug(
			"discarding stale proxy ping done",
			zap.String("sender", sender.String()),
			zap.String("target", msg.Target.String()),
			zap.Int64("ping-at", msg.PingAt),
		)
		return
	}
	d.metrics.Probes.WithLabelValues("proxy").Inc()
	d.pingSucceeded(msg.Target, msg.PingAt)
}

func (d *failureDetector) pingSucceeded(target Endpoint, pingAt int64) {
	now := d.clock()
	wasFailed := d.latency.Failed(target)
	d.latency.Record(target, pingAt, max(now-pingAt, 0))

	if wasFailed {
		d.logger.Info("member backed", zap.String("endpoint", target.String()))
		d.notifications.Trust(target, now, d.self)
		d.watcher.OnBacked(target)
	}

	d.transition(pingContext{state: pingStateNone})
	d.scheduleProbe()
}

func (d *failureDetector) pingFailed(target Endpoint, pingAt int64) {
	d.metrics.Probes.WithLabelValues("failed").Inc()

	wasFailed := d.latency.Failed(target)
	d.latency.RecordFailure(target, pingAt)

	if !wasFailed {
		d.logger.Info("member suspected", zap.String("endpoint", target.String()))
		d.notifications.Suspect(target, d.clock(), d.self)
		d.watcher.OnSuspected(target)
	}

	d.transition(pingContext{state: pingStateNone})
	d.scheduleProbe()
}

// transition replaces the ping context, cancelling the timeout of the
// previous state.
func (d *failureDetector) transition(next pingContext) {
	switch next.state {
	case pingStateNone:
	case pingStateDirect, pingStateProxy:
		if next.timeout == nil {
			panic(fmt.Sprintf("%s ping state without timeout", next.state))
		}
	default:
		panic("unsupported ping state: " + next.state.String())
	}

	if d.ctx.timeout != nil {
		d.ctx.timeout.Cancel()
	}
	d.ctx = next
}

// nextPingAt returns the current time, ensuring each probe has a unique
// timestamp.
func (d *failureDetector) nextPingAt() int64 {
	pingAt := d.clock()
	if pingAt <= d.lastPingAt {
		pingAt = d.lastPingAt + 1
	}
	d.lastPingAt = pingAt
	return pingAt
}

func (d *failureDetector) pushFront(endpoint Endpoint) {
	if d.queued.Contains(endpoint) {
		d.retryQueue = slices.DeleteFunc(d.retryQueue, func(e Endpoint) bool {
			return e == endpoint
		})
	}
	d.retryQueue = append([]Endpoint{endpoint}, d.retryQueue...)
	d.queued.Add(endpoint)
}

func (d *failureDetector) pushBack(endpoint Endpoint) {
	if d.queued.Contains(endpoint) {
		return
	}
	d.retryQueue = append(d.retryQueue, endpoint)
	d.queued.Add(endpoint)
}
