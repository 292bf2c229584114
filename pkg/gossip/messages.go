package gossip

import "fmt"

type MessageKind uint8

const (
	MessageKindMemberJoinRpc      MessageKind = 1
	MessageKindMemberJoinResponse MessageKind = 2
	MessageKindMemberLeavedRpc    MessageKind = 3

	MessageKindMemberUpdatesRpc      MessageKind = 10
	MessageKindAgreed                MessageKind = 11
	MessageKindMemberUpdatesResponse MessageKind = 12
	MessageKindMembersMergeResponse  MessageKind = 13
	MessageKindMembersMerged         MessageKind = 14

	MessageKindPing              MessageKind = 20
	MessageKindPong              MessageKind = 21
	MessageKindPingRequest       MessageKind = 22
	MessageKindProxyPing         MessageKind = 23
	MessageKindProxyPingResponse MessageKind = 24
	MessageKindProxyPingDone     MessageKind = 25
)

func (k MessageKind) String() string {
	switch k {
	case MessageKindMemberJoinRpc:
		return "member_join_rpc"
	case MessageKindMemberJoinResponse:
		return "member_join_response"
	case MessageKindMemberLeavedRpc:
		return "member_leaved_rpc"
	case MessageKindMemberUpdatesRpc:
		return "member_updates_rpc"
	case MessageKindAgreed:
		return "agreed"
	case MessageKindMemberUpdatesResponse:
		return "member_updates_response"
	case MessageKindMembersMergeResponse:
		return "members_merge_response"
	case MessageKindMembersMerged:
		return "members_merged"
	case MessageKindPing:
		return "ping"
	case MessageKindPong:
		return "pong"
	case MessageKindPingRequest:
		return "ping_request"
	case MessageKindProxyPing:
		return "proxy_ping"
	case MessageKindProxyPingResponse:
		return "proxy_ping_response"
	case MessageKindProxyPingDone:
		return "proxy_ping_done"
	default:
		return "unknown"
	}
}

// Message is a protocol message exchanged between nodes.
type Message interface {
	Kind() MessageKind
}

// RemoteMessage is a message received from another node.
type RemoteMessage struct {
	// Sender is the advertised endpoint of the node that sent the message.
	Sender Endpoint

	Payload Message
}

// newMessage returns an empty message of the given kind to decode into.
func newMessage(kind MessageKind) (Message, error) {
	switch kind {
	case MessageKindMemberJoinRpc:
		return &MemberJoinRpc{}, nil
	case MessageKindMemberJoinResponse:
		return &MemberJoinResponse{}, nil
	case MessageKindMemberLeavedRpc:
		return &MemberLeavedRpc{}, nil
	case MessageKindMemberUpdatesRpc:
		return &MemberUpdatesRpc{}, nil
	case MessageKindAgreed:
		return &Agreed{}, nil
	case MessageKindMemberUpdatesResponse:
		return &MemberUpdatesResponse{}, nil
	case MessageKindMembersMergeResponse:
		return &MembersMergeResponse{}, nil
	case MessageKindMembersMerged:
		return &MembersMerged{}, nil
	case MessageKindPing:
		return &Ping{}, nil
	case MessageKindPong:
		return &Pong{}, nil
	case MessageKindPingRequest:
		return &PingRequest{}, nil
	case MessageKindProxyPing:
		return &ProxyPing{}, nil
	case MessageKindProxyPingResponse:
		return &ProxyPingResponse{}, nil
	case MessageKindProxyPingDone:
		return &ProxyPingDone{}, nil
	default:
		return nil, fmt.Errorf("unsupported message kind: %d", kind)
	}
}

// MemberJoinRpc announces a node joining the cluster to a seed.
type MemberJoinRpc struct {
	Endpoint   Endpoint `codec:"endpoint"`
	TimeJoined int64    `codec:"time_joined"`
}

func (MemberJoinRpc) Kind() MessageKind { return MessageKindMemberJoinRpc }

// MemberJoinResponse contains the seeds known members.
type MemberJoinResponse struct {
	Members []Member `codec:"members"`
}

func (MemberJoinResponse) Kind() MessageKind { return MessageKindMemberJoinResponse }

// MemberLeavedRpc announces a node gracefully leaving the cluster.
type MemberLeavedRpc struct {
	Endpoint   Endpoint `codec:"endpoint"`
	TimeLeaved int64    `codec:"time_leaved"`
}

func (MemberLeavedRpc) Kind() MessageKind { return MessageKindMemberLeavedRpc }

// MemberUpdatesRpc starts an anti-entropy exchange.
//
// Every exchange message carries the exchange ID, used to correlate logs,
// and the number of hops taken so far in the exchange.
type MemberUpdatesRpc struct {
	ExchangeID    string         `codec:"exchange_id"`
	Hop           int            `codec:"hop"`
	Updates       []Update       `codec:"updates"`
	Notifications []Notification `codec:"notifications"`
	Digest        []byte         `codec:"digest"`
}

func (MemberUpdatesRpc) Kind() MessageKind { return MessageKindMemberUpdatesRpc }

// Agreed terminates an exchange where the digests match after applying
// updates.
type Agreed struct {
	ExchangeID string `codec:"exchange_id"`
	Hop        int    `codec:"hop"`
	// Updated maps the ID of each received update to whether it changed
	// the receivers state.
	Updated map[uint64]bool `codec:"updated"`
}

func (Agreed) Kind() MessageKind { return MessageKindAgreed }

// MemberUpdatesResponse continues an exchange by sending the responders
// pending updates.
type MemberUpdatesResponse struct {
	ExchangeID string          `codec:"exchange_id"`
	Hop        int             `codec:"hop"`
	Updates    []Update        `codec:"updates"`
	Digest     []byte          `codec:"digest"`
	Updated    map[uint64]bool `codec:"updated"`
}

func (MemberUpdatesResponse) Kind() MessageKind { return MessageKindMemberUpdatesResponse }

// MembersMergeResponse falls back to exchanging the full member list.
type MembersMergeResponse struct {
	ExchangeID string `codec:"exchange_id"`
	Hop        int    `codec:"hop"`
	// MergeHop is 1 on the first merge attempt and incremented each time
	// the merge bounces back.
	MergeHop int             `codec:"merge_hop"`
	Members  []Member        `codec:"members"`
	Digest   []byte          `codec:"digest"`
	Updated  map[uint64]bool `codec:"updated"`
}

func (MembersMergeResponse) Kind() MessageKind { return MessageKindMembersMergeResponse }

// MembersMerged terminates an exchange where the digests match after a
// full merge.
type MembersMerged struct {
	ExchangeID string `codec:"exchange_id"`
	Hop        int    `codec:"hop"`
}

func (MembersMerged) Kind() MessageKind { return MessageKindMembersMerged }

type Ping struct {
	PingAt int64 `codec:"ping_at"`
}

func (Ping) Kind() MessageKind { return MessageKindPing }

type Pong struct {
	PingAt int64 `codec:"ping_at"`
}

func (Pong) Kind() MessageKind { return MessageKindPong }

// PingRequest asks a proxy to probe the target on behalf of the sender.
type PingRequest struct {
	PingAt int64    `codec:"ping_at"`
	Target Endpoint `codec:"target"`
}

func (PingRequest) Kind() MessageKind { return MessageKindPingRequest }

// ProxyPing is sent by a proxy to the target.
type ProxyPing struct {
	PingAt         int64    `codec:"ping_at"`
	OriginalSender Endpoint `codec:"original_sender"`
}

func (ProxyPing) Kind() MessageKind { return MessageKindProxyPing }

// ProxyPingResponse is sent by the target back to the proxy.
type ProxyPingResponse struct {
	PingAt         int64    `codec:"ping_at"`
	OriginalSender Endpoint `codec:"original_sender"`
}

func (ProxyPingResponse) Kind() MessageKind { return MessageKindProxyPingResponse }

// ProxyPingDone is sent by the proxy to the original sender once the target
// responds.
type ProxyPingDone struct {
	PingAt int64    `codec:"ping_at"`
	Target Endpoint `codec:"target"`
}

func (ProxyPingDone) Kind() MessageKind { return MessageKindProxyPingDone }
