package status

import (
	"fmt"
	"net/url"
	"os"

	yaml "github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/andydunstall/murmur/status/client"
	"github.com/andydunstall/murmur/status/config"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "inspect node status",
		Long: `Inspect node status.

Each murmur node exposes a status API to inspect the membership state known
by that node, this can be used to answer questions such as:
* What members does this node know about?
* Which members are currently suspected of having failed?
* Have the nodes in the cluster converged?
* Which membership events is this node observing?

See 'status --help' for the availale commands.

Examples:
  # Inspect the members known by the node.
  murmur status members

  # Inspect the available members known by node 10.26.104.56:8002.
  murmur status available --server.url http://10.26.104.56:8002

  # Check whether three nodes have converged.
  murmur status convergence --server.urls http://10.26.104.56:8002,http://10.26.104.57:8002,http://10.26.104.58:8002
`,
	}

	cmd.AddCommand(newMembersCommand())
	cmd.AddCommand(newAvailableCommand())
	cmd.AddCommand(newLatencyCommand())
	cmd.AddCommand(newDigestCommand())
	cmd.AddCommand(newConvergenceCommand())
	cmd.AddCommand(newEventsCommand())

	return cmd
}

func registerServerURLFlag(cmd *cobra.Command, conf *config.Config) {
	cmd.Flags().StringVar(
		&conf.Server.URL,
		"server.url",
		"http://localhost:8002",
		`
murmur node URL. This URL should point to the node admin port.
`,
	)
}

// newQueryCommand creates a command that queries a single node and outputs
// the result as YAML.
func newQueryCommand(
	use string,
	short string,
	long string,
	query func(c *client.Client) (any, error),
) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
	}

	var conf config.Config
	registerServerURLFlag(cmd, &conf)

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		// The URL has already been validated in conf.
		url, _ := url.Parse(conf.Server.URL)
		client := client.NewClient(url)
		defer client.Close()

		output, err := query(client)
		if err != nil {
			fmt.Printf("failed to get %s: %s\n", use, err.Error())
			os.Exit(1)
		}

		b, _ := yaml.Marshal(output)
		fmt.Println(string(b))
	}

	return cmd
}
