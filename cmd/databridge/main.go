// Command databridge is the operator and artist CLI: it submits and decides
// transfers through the API and drives the local development stack.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/DataBridge/internal/client"
)

type globalOptions struct {
	server      string
	actor       int64
	jsonOutput  bool
	composeFile string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "databridge: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "databridge",
		Short: "DataBridge transfer pipeline CLI",
		Long: `databridge submits files for transfer into production, records approval decisions,
follows transfers through scanning and delivery, and manages the local development stack.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.server, "server", envOr("DATABRIDGE_URL", "http://localhost:8080"), "API base URL")
	cmd.PersistentFlags().Int64Var(&opts.actor, "as", envInt("DATABRIDGE_ACTOR"), "User id to act as")
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Print raw JSON")
	cmd.PersistentFlags().StringVarP(&opts.composeFile, "compose-file", "f", "docker-compose.yml", "Compose file to use for stack commands")
	cmd.AddCommand(
		newSubmitCmd(opts),
		newListCmd(opts),
		newShowCmd(opts),
		newHistoryCmd(opts),
		newDecisionCmd(opts, "approve", "Approve the current stage of a transfer"),
		newDecisionCmd(opts, "reject", "Reject a transfer at its current stage"),
		newDecisionCmd(opts, "skip", "Skip the current stage (administrators)"),
		newCancelCmd(opts),
		newStatsCmd(opts),
		newNotificationsCmd(opts),
		newStackCmd(opts),
	)
	return cmd
}

func (o *globalOptions) client() (*client.Client, error) {
	if o.actor <= 0 {
		return nil, fmt.Errorf("no user: pass --as or set DATABRIDGE_ACTOR")
	}
	return client.New(o.server, o.actor), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string) int64 {
	n, _ := strconv.ParseInt(os.Getenv(key), 10, 64)
	return n
}
