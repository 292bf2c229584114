package status

import (
	"github.com/spf13/cobra"

	servergossip "github.com/andydunstall/murmur/server/gossip"
	"github.com/andydunstall/murmur/status/client"
)

type membersOutput struct {
	Members []servergossip.MemberStatus `json:"members"`
}

func newMembersCommand() *cobra.Command {
	return newQueryCommand(
		"members",
		"inspect known members",
		`Inspect known members.

Queries the node for each member record it knows about, including members
that have left the cluster and whether the member is suspected of having
failed.

Examples:
  murmur status members
`,
		func(c *client.Client) (any, error) {
			members, err := c.GossipMembers()
			if err != nil {
				return nil, err
			}
			return membersOutput{Members: members}, nil
		},
	)
}

type availableOutput struct {
	Endpoints []string `json:"endpoints"`
}

func newAvailableCommand() *cobra.Command {
	return newQueryCommand(
		"available",
		"inspect available members",
		`Inspect available members.

Queries the node for the endpoints of members that haven't left the cluster
and aren't suspected of having failed.

Examples:
  murmur status available
`,
		func(c *client.Client) (any, error) {
			endpoints, err := c.AvailableEndpoints()
			if err != nil {
				return nil, err
			}
			return availableOutput{Endpoints: endpoints}, nil
		},
	)
}

type latencyOutput struct {
	Latency []latencyEntry `json:"latency"`
}

type latencyEntry struct {
	Endpoint  string `json:"endpoint"`
	LatencyMS int64  `json:"latency_ms"`
	PingAt    int64  `json:"ping_at"`
}

func newLatencyCommand() *cobra.Command {
	return newQueryCommand(
		"latency",
		"inspect member latency",
		`Inspect member latency.

Queries the node for the latency of the last successful probe of each member,
ordered from lowest to highest latency.

Examples:
  murmur status latency
`,
		func(c *client.Client) (any, error) {
			ranking, err := c.Latency()
			if err != nil {
				return nil, err
			}
			output := latencyOutput{Latency: []latencyEntry{}}
			for _, l := range ranking {
				output.Latency = append(output.Latency, latencyEntry{
					Endpoint:  l.Endpoint.String(),
					LatencyMS: l.Latency,
					PingAt:    l.PingAt,
				})
			}
			return output, nil
		},
	)
}

func newDigestCommand() *cobra.Command {
	return newQueryCommand(
		"digest",
		"inspect membership digest",
		`Inspect membership digest.

Queries the node for the digest of its membership state. Nodes with the same
digest have converged.

Examples:
  murmur status digest
`,
		func(c *client.Client) (any, error) {
			return c.Digest()
		},
	)
}
