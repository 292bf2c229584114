package cli

import (
	"github.com/spf13/cobra"

	"github.com/andydunstall/murmur/cli/node"
	"github.com/andydunstall/murmur/cli/status"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "murmur [command] (flags)",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Long: `murmur is a decentralized cluster membership service.

Each node gossips with the other members of the cluster to agree on the set of
members, and probes members directly and via proxies to detect failures. There
is no coordinator: nodes converge using periodic anti-entropy exchanges.

Start a node with:

  $ murmur node

Join an existing cluster with:

  $ murmur node --cluster.join 10.26.104.14

You can also inspect the status of a node using:

  $ murmur status
`,
	}

	cmd.AddCommand(node.NewCommand())
	cmd.AddCommand(status.NewCommand())

	return cmd
}

func init() {
	cobra.EnableCommandSorting = false
}
