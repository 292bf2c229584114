package status

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	yaml "github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	servergossip "github.com/andydunstall/murmur/server/gossip"
	"github.com/andydunstall/murmur/status/client"
	"github.com/andydunstall/murmur/status/config"
)

func newEventsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "watch membership events",
		Long: `Watch membership events.

Streams the membership events observed by the node (JOINED, SUSPECTED, BACKED
and LEAVED) until interrupted.

Examples:
  murmur status events
`,
	}

	var conf config.Config
	registerServerURLFlag(cmd, &conf)

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		ctx, cancel := signal.NotifyContext(
			context.Background(), syscall.SIGINT, syscall.SIGTERM,
		)
		defer cancel()

		// The URL has already been validated in conf.
		url, _ := url.Parse(conf.Server.URL)
		client := client.NewClient(url)
		defer client.Close()

		if err := client.WatchEvents(ctx, func(e servergossip.Event) {
			b, _ := yaml.Marshal(e)
			fmt.Printf("---\n%s", string(b))
		}); err != nil {
			fmt.Printf("failed to watch events: %s\n", err.Error())
			os.Exit(1)
		}
	}

	return cmd
}
