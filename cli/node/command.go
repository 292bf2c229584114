package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	murmurconfig "github.com/andydunstall/murmur/pkg/config"
	"github.com/andydunstall/murmur/pkg/log"
	"github.com/andydunstall/murmur/server"
	"github.com/andydunstall/murmur/server/config"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "start a cluster node",
		Long: `Start a cluster node.

The node gossips with the other members of the cluster to maintain a
membership list and detect failed members. There is no coordinator, so any
node can be used to join the cluster.

Use '--cluster.join' to configure addresses of existing members in the cluster
to join.

Examples:
  # Start the first node in a cluster.
  murmur node

  # Start a node, listening for gossip traffic on :7946 and admin connections
  # on :8002.
  murmur node --gossip.bind-addr :7946 --admin.bind-addr :8002

  # Start a node and join an existing cluster by specifying each member.
  murmur node --cluster.join 10.26.104.14,10.26.104.75

  # Start a node and join an existing cluster by specifying a domain.
  # The node will resolve the domain and attempt to join each returned
  # member.
  murmur node --cluster.join cluster.murmur-ns.svc.cluster.local
`,
	}

	conf := config.Default()

	var configPath string
	cmd.Flags().StringVar(
		&configPath,
		"config.path",
		"",
		`
YAML config file path.`,
	)

	var configExpandEnv bool
	cmd.Flags().BoolVar(
		&configExpandEnv,
		"config.expand-env",
		false,
		`
Whether to expand environment variables in the config file.

This will replaces references to ${VAR} or $VAR with the corresponding
environment variable. The replacement is case-sensitive.

References to undefined variables will be replaced with an empty string. A
default value can be given using form ${VAR:default}.`,
	)

	// Register flags and set default values.
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if configPath != "" {
			if err := murmurconfig.Load(conf, configPath, configExpandEnv); err != nil {
				fmt.Printf("load config: %s\n", err.Error())
				os.Exit(1)
			}
		}

		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		logger, err := log.NewLogger(conf.Log)
		if err != nil {
			fmt.Printf("failed to setup logger: %s\n", err.Error())
			os.Exit(1)
		}
		defer func() {
			_ = logger.Sync()
		}()

		if err := run(conf, logger); err != nil {
			logger.Error("failed to run node", zap.Error(err))
			os.Exit(1)
		}
	}

	return cmd
}

func run(conf *config.Config, logger log.Logger) error {
	logger.Info("starting murmur node", zap.Any("conf", conf))

	s, err := server.NewServer(conf, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer cancel()

	return s.Run(ctx)
}
