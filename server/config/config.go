package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/andydunstall/murmur/pkg/gossip"
	"github.com/andydunstall/murmur/pkg/log"
)

type AdminConfig struct {
	// BindAddr is the address to bind to listen for incoming HTTP connections.
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`
}

func (c *AdminConfig) Validate() error {
	if c.BindAddr == "" {
		return fmt.Errorf("missing bind addr")
	}
	return nil
}

func (c *AdminConfig) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(
		&c.BindAddr,
		"admin.bind-addr",
		c.BindAddr,
		`
The host/port to listen for incoming admin connections.

The admin server exposes health, Prometheus metrics and the membership status
of the node.

If the host is unspecified it defaults to all listeners, such as
'--admin.bind-addr :8002' will listen on '0.0.0.0:8002'`,
	)
}

type ClusterConfig struct {
	// Join contains a list of addresses of members in the cluster to join.
	Join []string `json:"join" yaml:"join"`

	// AbortIfJoinFails indicates whether the node should exit if the seeds
	// couldn't be resolved within the join timeout.
	AbortIfJoinFails bool `json:"abort_if_join_fails" yaml:"abort_if_join_fails"`

	// JoinTimeout is the maximum time to resolve the seeds, retrying with
	// backoff.
	JoinTimeout time.Duration `json:"join_timeout" yaml:"join_timeout"`
}

func (c *ClusterConfig) Validate() error {
	if c.JoinTimeout < 0 {
		return fmt.Errorf("invalid join timeout: %v", c.JoinTimeout)
	}
	if len(c.Join) > 0 && c.JoinTimeout == 0 {
		return fmt.Errorf("missing join timeout")
	}
	return nil
}

func (c *ClusterConfig) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringSliceVar(
		&c.Join,
		"cluster.join",
		c.Join,
		`
A list of addresses of members in the cluster to join.

This may be either addresses of specific nodes, such as
'--cluster.join 10.26.104.14,10.26.104.75', or a domain that resolves to
the addresses of the nodes in the cluster (e.g. a Kubernetes headless
service), such as '--cluster.join murmur.prod-murmur-ns'.

Each address must include the host, and may optionally include a port. If no
port is given, the gossip port of this node is used.

Note the node always joins the nodes via gossip, so it only needs a single
member to learn about the rest of the cluster.`,
	)
	fs.BoolVar(
		&c.AbortIfJoinFails,
		"cluster.abort-if-join-fails",
		c.AbortIfJoinFails,
		`
Whether the node should abort if '--cluster.join' was given but the seeds
couldn't be resolved within '--cluster.join-timeout'.`,
	)
	fs.DurationVar(
		&c.JoinTimeout,
		"cluster.join-timeout",
		c.JoinTimeout,
		`
The maximum time to resolve the seeds given by '--cluster.join'.`,
	)
}

type Config struct {
	Gossip  gossip.Config `json:"gossip" yaml:"gossip"`
	Admin   AdminConfig   `json:"admin" yaml:"admin"`
	Cluster ClusterConfig `json:"cluster" yaml:"cluster"`
	Log     log.Config    `json:"log" yaml:"log"`

	// GracePeriod is the duration to gracefully shutdown the node. During
	// the grace period the node leaves the cluster and waits for pending
	// admin requests to complete.
	GracePeriod time.Duration `json:"grace_period" yaml:"grace_period"`
}

func Default() *Config {
	return &Config{
		Gossip: *gossip.DefaultConfig(),
		Admin: AdminConfig{
			BindAddr: ":8002",
		},
		Cluster: ClusterConfig{
			JoinTimeout: time.Minute,
		},
		Log:         log.DefaultConfig(),
		GracePeriod: time.Minute,
	}
}

func (c *Config) Validate() error {
	if err := c.Gossip.Validate(); err != nil {
		return fmt.Errorf("gossip: %w", err)
	}
	if err := c.Admin.Validate(); err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	if err := c.Cluster.Validate(); err != nil {
		return fmt.Errorf("cluster: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}

	if c.GracePeriod <= 0 {
		return fmt.Errorf("invalid grace period: %v", c.GracePeriod)
	}

	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	c.Gossip.RegisterFlags(fs, "")
	c.Admin.RegisterFlags(fs)
	c.Cluster.RegisterFlags(fs)
	c.Log.RegisterFlags(fs)

	fs.DurationVar(
		&c.GracePeriod,
		"grace-period",
		c.GracePeriod,
		`
Maximum duration after a shutdown signal is received (SIGTERM or
SIGINT) to gracefully shutdown the node.

The node first leaves the cluster, notifying other members, then waits for
pending admin requests to complete before exiting.`,
	)
}
