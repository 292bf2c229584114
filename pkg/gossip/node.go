package gossip

import (
	"go.uber.org/zap"

	"github.com/andydunstall/murmur/pkg/log"
)

const (
	// leaveNotifyCount is the number of members notified when the local
	// node leaves.
	leaveNotifyCount = 3
)

// node wires together the membership protocol for the local node.
//
// Protocol state is owned by the event loop. node must only be called from
// tasks run by the scheduler, except the query methods which only read
// concurrency safe state.
type node struct {
	self      Endpoint
	timeAdded int64

	members       *memberList
	latency       *latencyRecorder
	updates       *updateQueue
	notifications *notificationQueue

	detector  *failureDetector
	exchanger *exchanger

	dispatcher *dispatcher
	scheduler  Scheduler
	transport  Transporter
	watchers   *watchers

	exchangeTask Cancelable

	config *Config
	clock  func() int64

	metrics *Metrics

	logger log.Logger
}

func newNode(
	self Endpoint,
	config *Config,
	scheduler Scheduler,
	transport Transporter,
	clock func() int64,
	metrics *Metrics,
	logger log.Logger,
) *node {
	members := newMemberList()
	timeAdded := clock()
	members.Add(self, timeAdded)

	latency := newLatencyRecorder()
	updates := newUpdateQueue(config.UpdateThreshold)
	notifications := newNotificationQueue(config.NotificationThreshold)
	watchers := newWatchers()

	detector := newFailureDetector(
		self,
		members,
		latency,
		notifications,
		scheduler,
		transport,
		watchers,
		config,
		clock,
		metrics,
		logger,
	)
	exchanger := newExchanger(
		self,
		members,
		updates,
		notifications,
		latency,
		detector,
		transport,
		watchers,
		config,
		metrics,
		logger,
	)

	n := &node{
		self:          self,
		timeAdded:     timeAdded,
		members:       members,
		latency:       latency,
		updates:       updates,
		notifications: notifications,
		detector:      detector,
		exchanger:     exchanger,
		dispatcher:    newDispatcher(logger),
		scheduler:     scheduler,
		transport:     transport,
		watchers:      watchers,
		config:        config,
		clock:         clock,
		metrics:       metrics,
		logger:        logger,
	}

	detector.Register(n.dispatcher)
	exchanger.Register(n.dispatcher)
	n.dispatcher.Register(MessageKindMemberJoinRpc, typedHandler(n.onMemberJoinRpc))
	n.dispatcher.Register(MessageKindMemberJoinResponse, typedHandler(n.onMemberJoinResponse))
	n.dispatcher.Register(MessageKindMemberLeavedRpc, typedHandler(n.onMemberLeavedRpc))

	return n
}

// Start schedules the failure detector probes and anti-entropy exchanges.
func (n *node) Start() {
	n.detector.Start()
	n.exchangeTask = n.scheduler.ScheduleWithFixedDelay(
		n.config.ExchangeInterval, n.config.ExchangeInterval, n.exchange,
	)
}

func (n *node) Stop() {
	if n.exchangeTask != nil {
		n.exchangeTask.Cancel()
	}
	n.detector.Stop()
}

func (n *node) Dispatch(msg *RemoteMessage) {
	n.dispatcher.Dispatch(msg)
}

// Join adds the seeds as members and announces the local node to each.
//
// Seeds are added with a zero timestamp so any record received from the
// cluster replaces them.
func (n *node) Join(seeds []Endpoint) {
	var filtered []Endpoint
	for _, seed := range seeds {
		if seed != n.self {
			filtered = append(filtered, seed)
		}
	}

	result := n.members.AddAll(filtered, 0)
	notifyMembershipChange(n.watchers, result)

	for _, seed := range filtered {
		n.transport.Send(seed, &MemberJoinRpc{
			Endpoint:   n.self,
			TimeJoined: n.timeAdded,
		})
	}
}

// Leave removes the local node and notifies up to 3 reachable members.
//
// Returns the number of members notified.
func (n *node) Leave() int {
	now := n.clock()
	result := n.members.Remove(n.self, now)
	if result.Updated {
		n.updates.Enqueue(MemberLeaved, n.self, now)
	}

	exclude := n.latency.FailedEndpoints()
	exclude.Add(n.self)
	peers := n.members.RandomExcept(leaveNotifyCount, exclude)
	for _, peer := range peers {
		n.transport.Send(peer, &MemberLeavedRpc{
			Endpoint:   n.self,
			TimeLeaved: now,
		})
	}
	return len(peers)
}

func (n *node) TrustMember(endpoint Endpoint) {
	n.detector.TrustMember(endpoint)
}

// AvailableEndpoints returns the members that haven't left and aren't
// suspected.
func (n *node) AvailableEndpoints() []Endpoint {
	failed := n.latency.FailedEndpoints()
	var available []Endpoint
	for _, m := range n.members.Snapshot().Members {
		if m.Exists() && !failed.Contains(m.Endpoint) {
			available = append(available, m.Endpoint)
		}
	}
	return available
}

// Suspected returns the members that haven't left but whose last probe
// failed.
func (n *node) Suspected() []Endpoint {
	failed := n.latency.FailedEndpoints()
	var suspected []Endpoint
	for _, m := range n.members.Snapshot().Members {
		if m.Exists() && failed.Contains(m.Endpoint) {
			suspected = append(suspected, m.Endpoint)
		}
	}
	return suspected
}

func (n *node) onMemberJoinRpc(req *RemoteMessage, msg *MemberJoinRpc) {
	result := n.members.Add(msg.Endpoint, msg.TimeJoined)

	n.transport.Reply(req, &MemberJoinResponse{
		Members: n.members.Snapshot().Members,
	})

	if !result.Updated {
		return
	}

	n.logger.Info(
		"member joined",
		zap.String("endpoint", msg.Endpoint.String()),
	)

	n.updates.Enqueue(MemberJoined, msg.Endpoint, msg.TimeJoined)
	notifyMembershipChange(n.watchers, result)
	n.detector.TrustMember(msg.Endpoint)
	n.exchanger.SpreadUpdatesExcept(NewEndpointSet(msg.Endpoint))
}

func (n *node) onMemberJoinResponse(req *RemoteMessage, msg *MemberJoinResponse) {
	result := n.members.MergeAll(msg.Members)
	notifyMembershipChange(n.watchers, result)

	n.logger.Info(
		"joined via seed",
		zap.String("seed", req.Sender.String()),
		zap.Int("members", len(msg.Members)),
	)
}

func (n *node) onMemberLeavedRpc(_ *RemoteMessage, msg *MemberLeavedRpc) {
	result := n.members.Remove(msg.Endpoint, msg.TimeLeaved)
	if !result.Updated {
		return
	}

	n.logger.Info(
		"member left",
		zap.String("endpoint", msg.Endpoint.String()),
	)

	n.updates.Enqueue(MemberLeaved, msg.Endpoint, msg.TimeLeaved)
	notifyMembershipChange(n.watchers, result)
	n.exchanger.SpreadUpdatesExcept(NewEndpointSet(msg.Endpoint))
}

func (n *node) exchange() {
	n.exchanger.SpreadUpdates()
	n.updateMetrics()
}

func (n *node) updateMetrics() {
	members := 0
	for _, m := range n.members.Snapshot().Members {
		if m.Exists() {
			members++
		}
	}
	n.metrics.Members.Set(float64(members))
	n.metrics.Suspected.Set(float64(len(n.Suspected())))
	n.metrics.PendingUpdates.Set(float64(n.updates.Len()))
}
