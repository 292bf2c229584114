package gossip

import (
	"bytes"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andydunstall/murmur/pkg/log"
)

// exchanger runs anti-entropy exchanges to reconcile the membership state
// of two nodes.
//
// An exchange starts by sending pending updates along with the local digest.
// The receiver applies the updates and, if the digests still differ,
// responds with its own pending updates, and so on until the digests match.
// If neither node has useful updates the nodes fall back to merging their
// full member lists.
//
// Each exchange message carries the number of hops taken so far, and an
// exchange is abandoned once it exceeds the configured max hops.
//
// The exchanger is only accessed from the event loop.
type exchanger struct {
	self Endpoint

	members       *memberList
	updates       *updateQueue
	notifications *notificationQueue
	latency       *latencyRecorder
	detector      *failureDetector

	transport Transporter
	watcher   Watcher

	config *Config

	metrics *Metrics

	logger log.Logger
}

func newExchanger(
	self Endpoint,
	members *memberList,
	updates *updateQueue,
	notifications *notificationQueue,
	latency *latencyRecorder,
	detector *failureDetector,
	transport Transporter,
	watcher Watcher,
	config *Config,
	metrics *Metrics,
	logger log.Logger,
) *exchanger {
	return &exchanger{
		self:          self,
		members:       members,
		updates:       updates,
		notifications: notifications,
		latency:       latency,
		detector:      detector,
		transport:     transport,
		watcher:       watcher,
		config:        config,
		metrics:       metrics,
		logger:        logger.WithSubsystem("gossip.exchanger"),
	}
}

// Register registers the exchange message handlers.
func (e *exchanger) Register(dispatcher *dispatcher) {
	dispatcher.Register(MessageKindMemberUpdatesRpc, typedHandler(e.onMemberUpdatesRpc))
	dispatcher.Register(MessageKindMemberUpdatesResponse, typedHandler(e.onMemberUpdatesResponse))
	dispatcher.Register(MessageKindMembersMergeResponse, typedHandler(e.onMembersMergeResponse))
	dispatcher.Register(MessageKindAgreed, typedHandler(e.onAgreed))
	dispatcher.Register(MessageKindMembersMerged, typedHandler(e.onMembersMerged))
}

// SpreadUpdates starts an exchange with a random member that isn't
// suspected.
func (e *exchanger) SpreadUpdates() {
	e.SpreadUpdatesExcept(nil)
}

// SpreadUpdatesExcept starts an exchange with a random member that isn't
// suspected or in exclude.
func (e *exchanger) SpreadUpdatesExcept(exclude EndpointSet) {
	excluded := e.latency.FailedEndpoints()
	excluded.Add(e.self)
	for endpoint := range exclude {
		excluded.Add(endpoint)
	}

	peers := e.members.RandomExcept(1, excluded)
	if len(peers) == 0 {
		return
	}
	e.startExchange(peers[0], uuid.NewString(), 0)
}

func (e *exchanger) startExchange(to Endpoint, exchangeID string, hop int) {
	msg := &MemberUpdatesRpc{
		ExchangeID:    exchangeID,
		Hop:           hop,
		Updates:       e.updates.Take(e.config.MaxUpdates),
		Notifications: e.notifications.Take(e.config.MaxNotifications),
		Digest:        e.members.Digest(),
	}
	e.transport.Send(to, msg)

	e.logger.Debug(
		"start exchange",
		zap.String("exchange-id", exchangeID),
		zap.String("peer", to.String()),
		zap.Int("hop", hop),
		zap.Int("updates", len(msg.Updates)),
		zap.Int("notifications", len(msg.Notifications)),
	)
}

func (e *exchanger) onMemberUpdatesRpc(req *RemoteMessage, msg *MemberUpdatesRpc) {
	e.detector.ProcessNotifications(msg.Notifications)
	e.reconcile(req, msg.ExchangeID, msg.Hop, msg.Updates, msg.Digest)
}

func (e *exchanger) onMemberUpdatesResponse(req *RemoteMessage, msg *MemberUpdatesResponse) {
	e.applyFeedback(msg.Updated)
	e.reconcile(req, msg.ExchangeID, msg.Hop, msg.Updates, msg.Digest)
}

// reconcile applies the remote updates then either agrees, if the digests
// match, or responds with local pending updates or the full member list.
func (e *exchanger) reconcile(
	req *RemoteMessage,
	exchangeID string,
	hop int,
	updates []Update,
	digest []byte,
) {
	if bytes.Equal(e.members.Digest(), digest) {
		updated := make(map[uint64]bool, len(updates))
		for _, u := range updates {
			updated[u.ID] = false
		}
		e.agree(req, exchangeID, hop, updated)
		return
	}

	updated := make(map[uint64]bool, len(updates))
	var applied map[uint64]struct{}
	if len(updates) > 0 {
		updated, applied = e.applyUpdates(updates)
		if bytes.Equal(e.members.Digest(), digest) {
			e.agree(req, exchangeID, hop, updated)
			return
		}
	}

	if !e.withinHops(req, exchangeID, hop) {
		return
	}

	// Don't send back updates that were just received.
	pending := e.updates.TakeExcept(e.config.MaxUpdates, applied)
	if len(pending) > 0 {
		e.transport.Reply(req, &MemberUpdatesResponse{
			ExchangeID: exchangeID,
			Hop:        hop + 1,
			Updates:    pending,
			Digest:     e.members.Digest(),
			Updated:    updated,
		})
		return
	}

	snapshot := e.members.Snapshot()
	e.transport.Reply(req, &MembersMergeResponse{
		ExchangeID: exchangeID,
		Hop:        hop + 1,
		MergeHop:   1,
		Members:    snapshot.Members,
		Digest:     snapshot.Digest,
		Updated:    updated,
	})
}

func (e *exchanger) onMembersMergeResponse(req *RemoteMessage, msg *MembersMergeResponse) {
	e.applyFeedback(msg.Updated)

	result := e.members.MergeAll(msg.Members)
	e.onMerged(result)

	if bytes.Equal(result.Digest, msg.Digest) {
		e.transport.Reply(req, &MembersMerged{
			ExchangeID: msg.ExchangeID,
			Hop:        msg.Hop + 1,
		})
		e.metrics.Exchanges.WithLabelValues("merged").Inc()
		return
	}

	if !e.withinHops(req, msg.ExchangeID, msg.Hop) {
		return
	}

	if msg.MergeHop > 1 {
		// Both nodes have attempted a merge without converging, so retry
		// exchanging updates.
		e.startExchange(req.Sender, msg.ExchangeID, msg.Hop+1)
		return
	}

	snapshot := e.members.Snapshot()
	e.transport.Reply(req, &MembersMergeResponse{
		ExchangeID: msg.ExchangeID,
		Hop:        msg.Hop + 1,
		MergeHop:   msg.MergeHop + 1,
		Members:    snapshot.Members,
		Digest:     snapshot.Digest,
	})
}

func (e *exchanger) onAgreed(req *RemoteMessage, msg *Agreed) {
	e.applyFeedback(msg.Updated)

	e.logger.Debug(
		"exchange agreed",
		zap.String("exchange-id", msg.ExchangeID),
		zap.String("peer", req.Sender.String()),
		zap.Int("hop", msg.Hop),
	)
}

func (e *exchanger) onMembersMerged(req *RemoteMessage, msg *MembersMerged) {
	e.logger.Debug(
		"exchange merged",
		zap.String("exchange-id", msg.ExchangeID),
		zap.String("peer", req.Sender.String()),
		zap.Int("hop", msg.Hop),
	)
}

func (e *exchanger) agree(
	req *RemoteMessage,
	exchangeID string,
	hop int,
	updated map[uint64]bool,
) {
	e.transport.Reply(req, &Agreed{
		ExchangeID: exchangeID,
		Hop:        hop + 1,
		Updated:    updated,
	})
	e.metrics.Exchanges.WithLabelValues("agreed").Inc()
}

// applyUpdates applies the remote updates to the local member list.
//
// Returns whether each update changed the local state, and the IDs of the
// local updates enqueued to disseminate the updates that did.
func (e *exchanger) applyUpdates(updates []Update) (map[uint64]bool, map[uint64]struct{}) {
	updated := make(map[uint64]bool, len(updates))
	enqueued := make(map[uint64]struct{})
	for _, u := range updates {
		result := u.apply(e.members)
		updated[u.ID] = result.Updated
		if !result.Updated {
			continue
		}

		local := e.updates.Enqueue(u.Kind, u.Endpoint, u.Timestamp)
		enqueued[local.ID] = struct{}{}
		notifyMembershipChange(e.watcher, result)
	}
	return updated, enqueued
}

// onMerged enqueues updates for members that joined or left because of a
// full merge.
func (e *exchanger) onMerged(result UpdateResult) {
	for _, endpoint := range result.Joined {
		if m, ok := e.members.Member(endpoint); ok {
			e.updates.Enqueue(MemberJoined, endpoint, m.TimeAdded)
		}
	}
	for _, endpoint := range result.Left {
		if m, ok := e.members.Member(endpoint); ok {
			e.updates.Enqueue(MemberLeaved, endpoint, m.TimeRemoved)
		}
	}
	notifyMembershipChange(e.watcher, result)
}

// applyFeedback decreases the usefulness of local updates that didn't change
// the remote nodes state.
func (e *exchanger) applyFeedback(updated map[uint64]bool) {
	for id, ok := range updated {
		if !ok {
			e.updates.DecreaseUsefulness(id)
		}
	}
}

// withinHops returns whether a response with the next hop can be sent.
func (e *exchanger) withinHops(req *RemoteMessage, exchangeID string, hop int) bool {
	if hop+1 <= e.config.MaxHops {
		return true
	}

	e.logger.Warn(
		"exchange abandoned; exceeded max hops",
		zap.String("exchange-id", exchangeID),
		zap.String("peer", req.Sender.String()),
		zap.Int("hop", hop),
	)
	e.metrics.Exchanges.WithLabelValues("abandoned").Inc()
	return false
}
