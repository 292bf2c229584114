package gossip

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

type Config struct {
	// BindAddr is the address to bind to listen for gossip traffic.
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`

	// AdvertiseAddr is the address to advertise to other nodes. This is also
	// the nodes identity in the cluster.
	AdvertiseAddr string `json:"advertise_addr" yaml:"advertise_addr"`

	// MaxPacketSize is the maximum size of any packet sent.
	MaxPacketSize int `json:"max_packet_size" yaml:"max_packet_size"`

	// ProbeInterval is the delay between failure detector probes.
	ProbeInterval time.Duration `json:"probe_interval" yaml:"probe_interval"`

	// PingTimeout is the time to wait for a direct ping response before
	// probing via proxies.
	PingTimeout time.Duration `json:"ping_timeout" yaml:"ping_timeout"`

	// ProxyPingTimeout is the time to wait for a proxy ping response before
	// suspecting the target.
	ProxyPingTimeout time.Duration `json:"proxy_ping_timeout" yaml:"proxy_ping_timeout"`

	// ProxyCount is the number of proxies used for an indirect probe.
	ProxyCount int `json:"proxy_count" yaml:"proxy_count"`

	// ExchangeInterval is the delay between anti-entropy exchanges.
	ExchangeInterval time.Duration `json:"exchange_interval" yaml:"exchange_interval"`

	// MaxHops is the maximum number of messages in a single exchange.
	MaxHops int `json:"max_hops" yaml:"max_hops"`

	// MaxUpdates is the maximum number of updates in an exchange message.
	MaxUpdates int `json:"max_updates" yaml:"max_updates"`

	// MaxNotifications is the maximum number of notifications in an exchange
	// message.
	MaxNotifications int `json:"max_notifications" yaml:"max_notifications"`

	// UpdateThreshold is the number of times an update is disseminated
	// before being discarded.
	UpdateThreshold int `json:"update_threshold" yaml:"update_threshold"`

	// NotificationThreshold is the number of times a notification is
	// disseminated before being discarded.
	NotificationThreshold int `json:"notification_threshold" yaml:"notification_threshold"`
}

// DefaultConfig returns the default gossip configuration.
func DefaultConfig() *Config {
	return &Config{
		BindAddr:              ":7946",
		MaxPacketSize:         65507,
		ProbeInterval:         time.Second * 3,
		PingTimeout:           time.Second,
		ProxyPingTimeout:      time.Second * 2,
		ProxyCount:            3,
		ExchangeInterval:      time.Second,
		MaxHops:               10,
		MaxUpdates:            1,
		MaxNotifications:      8,
		UpdateThreshold:       10,
		NotificationThreshold: 10,
	}
}

func (c *Config) Validate() error {
	if c.BindAddr == "" {
		return fmt.Errorf("missing bind addr")
	}
	if c.MaxPacketSize <= 0 {
		return fmt.Errorf("invalid max packet size: %v", c.MaxPacketSize)
	}
	if c.ProbeInterval <= 0 {
		return fmt.Errorf("invalid probe interval: %v", c.ProbeInterval)
	}
	if c.PingTimeout <= 0 {
		return fmt.Errorf("invalid ping timeout: %v", c.PingTimeout)
	}
	if c.ProxyPingTimeout <= 0 {
		return fmt.Errorf("invalid proxy ping timeout: %v", c.ProxyPingTimeout)
	}
	if c.ProxyCount < 0 {
		return fmt.Errorf("invalid proxy count: %d", c.ProxyCount)
	}
	if c.ExchangeInterval <= 0 {
		return fmt.Errorf("invalid exchange interval: %v", c.ExchangeInterval)
	}
	if c.MaxHops <= 0 {
		return fmt.Errorf("missing max hops")
	}
	if c.MaxNotifications < 0 {
		return fmt.Errorf("invalid max notifications: %d", c.MaxNotifications)
	}
	if c.MaxUpdates <= 0 {
		return fmt.Errorf("missing max updates")
	}
	if c.UpdateThreshold <= 0 {
		return fmt.Errorf("missing update threshold")
	}
	if c.NotificationThreshold <= 0 {
		return fmt.Errorf("missing notification threshold")
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet, prefix string) {
	if prefix != "" {
		prefix = prefix + "."
	}
	prefix = prefix + "gossip."

	fs.StringVar(
		&c.BindAddr,
		prefix+"bind-addr",
		c.BindAddr,
		`
The host/port to listen for inter-node gossip traffic.

If the host is unspecified it defaults to all listeners, such as
a bind address ':7946' will listen on '0.0.0.0:7946'`,
	)

	fs.StringVar(
		&c.AdvertiseAddr,
		prefix+"advertise-addr",
		c.AdvertiseAddr,
		`
Gossip listen address to advertise to other nodes in the cluster. This is the
address other nodes will use to gossip with the node, and identifies the node
in the cluster.

Such as if the listen address is ':7946', the advertised address may be
'10.26.104.45:7946' or 'node1.cluster:7946'.

By default, if the bind address includes an IP to bind to that will be used.
If the bind address does not include an IP (such as ':7946') the nodes
private IP will be used.`,
	)

	fs.IntVar(
		&c.MaxPacketSize,
		prefix+"max-packet-size",
		c.MaxPacketSize,
		`
The maximum size of any packet sent or received.

Exchanges that fall back to a full merge send the complete member list in a
single packet, so this limits the size of the cluster that can be merged.
Packets larger than your networks MTU will be fragmented.`,
	)

	fs.DurationVar(
		&c.ProbeInterval,
		prefix+"probe-interval",
		c.ProbeInterval,
		`
The interval between failure detector probes.

Each probe pings a node in the cluster. If the node doesn't respond it is
probed indirectly via other nodes, then suspected if still unreachable.`,
	)

	fs.DurationVar(
		&c.PingTimeout,
		prefix+"ping-timeout",
		c.PingTimeout,
		`
The time to wait for a node to respond to a direct ping before probing the
node via proxies.`,
	)

	fs.DurationVar(
		&c.ProxyPingTimeout,
		prefix+"proxy-ping-timeout",
		c.ProxyPingTimeout,
		`
The time to wait for proxies to report the node responded before the node is
suspected.`,
	)

	fs.IntVar(
		&c.ProxyCount,
		prefix+"proxy-count",
		c.ProxyCount,
		`
The number of nodes asked to probe an unresponsive node.`,
	)

	fs.DurationVar(
		&c.ExchangeInterval,
		prefix+"exchange-interval",
		c.ExchangeInterval,
		`
The interval between anti-entropy exchanges.

Each exchange selects another reachable node and reconciles the membership
state of both nodes until their digests match.`,
	)

	fs.IntVar(
		&c.MaxHops,
		prefix+"max-hops",
		c.MaxHops,
		`
The maximum number of messages in a single exchange before the exchange is
abandoned.`,
	)

	fs.IntVar(
		&c.MaxUpdates,
		prefix+"max-updates",
		c.MaxUpdates,
		`
The maximum number of pending updates included in an exchange message.`,
	)

	fs.IntVar(
		&c.MaxNotifications,
		prefix+"max-notifications",
		c.MaxNotifications,
		`
The maximum number of suspicion and trust notifications included in an
exchange message.`,
	)

	fs.IntVar(
		&c.UpdateThreshold,
		prefix+"update-threshold",
		c.UpdateThreshold,
		`
The number of times a membership update is disseminated before it is assumed
to have reached the cluster.`,
	)

	fs.IntVar(
		&c.NotificationThreshold,
		prefix+"notification-threshold",
		c.NotificationThreshold,
		`
The number of times a notification is disseminated before it is assumed to
have reached the cluster.`,
	)
}
