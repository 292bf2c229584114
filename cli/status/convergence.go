package status

import (
	"fmt"
	"net/url"
	"os"

	yaml "github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/andydunstall/murmur/status/client"
	"github.com/andydunstall/murmur/status/config"
)

func newConvergenceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convergence",
		Short: "check whether nodes have converged",
		Long: `Check whether nodes have converged.

Queries the membership digest of each node concurrently and reports whether
all nodes have the same digest. Exits with a non-zero status if the nodes
haven't converged.

Examples:
  murmur status convergence --server.urls http://10.26.104.56:8002,http://10.26.104.57:8002
`,
	}

	var conf config.Config

	cmd.Flags().StringSliceVar(
		&conf.Server.URLs,
		"server.urls",
		nil,
		`
murmur node URLs. Each URL should point to a node admin port.
`,
	)

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if len(conf.Server.URLs) == 0 {
			fmt.Println("invalid config: missing server.urls")
			os.Exit(1)
		}
		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		output, err := checkConvergence(conf.Server.URLs)
		if err != nil {
			fmt.Printf("failed to check convergence: %s\n", err.Error())
			os.Exit(1)
		}

		b, _ := yaml.Marshal(output)
		fmt.Println(string(b))

		if !output.Converged {
			os.Exit(1)
		}
	}

	return cmd
}

type nodeDigest struct {
	URL     string `json:"url"`
	Digest  string `json:"digest"`
	Members int    `json:"members"`
}

type convergenceOutput struct {
	Converged bool         `json:"converged"`
	Nodes     []nodeDigest `json:"nodes"`
}

func checkConvergence(urls []string) (convergenceOutput, error) {
	nodes := make([]nodeDigest, len(urls))

	var g errgroup.Group
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			// The URL has already been validated in conf.
			url, _ := url.Parse(u)
			client := client.NewClient(url)
			defer client.Close()

			digest, err := client.Digest()
			if err != nil {
				return fmt.Errorf("%s: %w", u, err)
			}
			nodes[i] = nodeDigest{
				URL:     u,
				Digest:  digest.Digest,
				Members: digest.Members,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return convergenceOutput{}, err
	}

	converged := true
	for _, n := range nodes[1:] {
		if n.Digest != nodes[0].Digest {
			converged = false
		}
	}
	return convergenceOutput{
		Converged: converged,
		Nodes:     nodes,
	}, nil
}
