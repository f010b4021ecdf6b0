package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/DataBridge/internal/client"
)

// Stack modes map to the compose services each deployment needs. split runs
// the API and the asynq worker against Postgres, Redis and MinIO; single runs
// the all-in-one server with in-memory persistence and local storage.
const (
	modeSplit  = "split"
	modeSingle = "single"
	modeInfra  = "infra"
)

var (
	infraServices = []string{"postgres", "redis", "minio"}
	stackModes    = map[string][]string{
		modeSplit:  append(slices.Clone(infraServices), "api", "worker"),
		modeSingle: {"server"},
		modeInfra:  infraServices,
	}
)

// demoUsers matches the users seeded by docker-compose.yml.
const demoUsers = "1:Ana:artist,2:Tom:team_lead,3:Sue:supervisor,4:Lin:line_producer,5:Dee:data_team,6:Ian:it_team,7:Ada:admin"

func newStackCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stack",
		Short: "Run DataBridge locally with docker compose or go run",
	}
	cmd.AddCommand(
		newStackUpCmd(opts),
		newStackDownCmd(opts),
		newStackLogsCmd(opts),
		newStackStatusCmd(opts),
		newStackRunCmd(),
	)
	return cmd
}

// composeBase returns the docker compose prefix for mode. The server service
// sits behind the single profile so it never races the API for its port.
func composeBase(file, mode string) []string {
	args := []string{"compose", "-f", file}
	if mode == modeSingle {
		args = append(args, "--profile", modeSingle)
	}
	return args
}

func stackServices(mode string) ([]string, error) {
	services, ok := stackModes[mode]
	if !ok {
		return nil, fmt.Errorf("unknown stack mode %q (want split, single or infra)", mode)
	}
	return services, nil
}

// upArgs renders "stack up" for mode.
func upArgs(file, mode string, build bool) ([]string, error) {
	services, err := stackServices(mode)
	if err != nil {
		return nil, err
	}
	args := append(composeBase(file, mode), "up", "-d")
	if build && mode != modeInfra {
		args = append(args, "--build")
	}
	return append(args, services...), nil
}

func newStackUpCmd(opts *globalOptions) *cobra.Command {
	var (
		mode    string
		noBuild bool
		wait    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Start the services of a deployment mode (split, single or infra)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			args, err := upArgs(opts.composeFile, mode, !noBuild)
			if err != nil {
				return err
			}
			if err := runCommand(cmd.Context(), "docker", args...); err != nil {
				return err
			}
			if mode == modeInfra || wait <= 0 {
				return nil
			}
			if err := waitHealthy(cmd.Context(), client.New(opts.server, 0), wait); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "DataBridge API ready at %s\n", opts.server)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", modeSplit, "Deployment mode: split, single or infra")
	cmd.Flags().BoolVar(&noBuild, "no-build", false, "Start from existing images")
	cmd.Flags().DurationVar(&wait, "wait", time.Minute, "How long to wait for /healthz; 0 disables")
	return cmd
}

// waitHealthy polls the API liveness endpoint until it answers or timeout
// passes.
func waitHealthy(ctx context.Context, c *client.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var last error
	err := retry.Do(ctx, retry.NewConstant(500*time.Millisecond), func(ctx context.Context) error {
		if last = c.Health(ctx); last != nil {
			return retry.RetryableError(last)
		}
		return nil
	})
	if err != nil && last != nil {
		return fmt.Errorf("api not healthy after %s: %w", timeout, last)
	}
	return err
}

func newStackDownCmd(opts *globalOptions) *cobra.Command {
	var wipe bool
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop every DataBridge service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			args := append(composeBase(opts.composeFile, modeSingle), "down")
			if wipe {
				args = append(args, "-v")
			}
			return runCommand(cmd.Context(), "docker", args...)
		},
	}
	cmd.Flags().BoolVar(&wipe, "wipe", false, "Also remove the database and object store volumes")
	return cmd
}

func newStackLogsCmd(opts *globalOptions) *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:       "logs [api|worker|server|postgres|redis|minio...]",
		Short:     "Show logs of DataBridge services",
		ValidArgs: append(slices.Clone(stackModes[modeSplit]), "server"),
		Args:      cobra.OnlyValidArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			composeArgs := append(composeBase(opts.composeFile, modeSingle), "logs")
			if follow {
				composeArgs = append(composeArgs, "--follow")
			}
			return runCommand(cmd.Context(), "docker", append(composeArgs, args...)...)
		},
	}
	cmd.Flags().BoolVar(&follow, "follow", false, "Stream logs continuously")
	return cmd
}

func newStackStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List running services and check the API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			args := append(composeBase(opts.composeFile, modeSingle), "ps")
			if err := runCommand(cmd.Context(), "docker", args...); err != nil {
				return err
			}
			if err := client.New(opts.server, 0).Health(cmd.Context()); err != nil {
				return fmt.Errorf("api %s: %w", opts.server, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "api %s: ok\n", opts.server)
			return nil
		},
	}
}

// binary is a DataBridge command started with go run against the compose
// infrastructure.
type binary struct {
	name    string
	path    string
	short   string
	storage string
}

var binaries = []binary{
	{name: "api", path: "./cmd/api", short: "HTTP API backed by Postgres, enqueueing stage jobs to Redis", storage: "s3"},
	{name: "worker", path: "./cmd/worker", short: "asynq worker running scan, copy and sweep jobs", storage: "s3"},
	{name: "server", path: "./cmd/server", short: "All-in-one server with in-memory persistence", storage: "local"},
}

// runEnv returns the environment for b. Values already set in base win over
// the demo defaults so a developer can point a binary at other
// infrastructure; an explicit storage always wins.
func runEnv(base []string, b binary, storage string) []string {
	defaults := []string{
		"DATABRIDGE_STORAGE=" + b.storage,
		"DATABRIDGE_SEED_USERS=" + demoUsers,
		"DATABRIDGE_SIGNING_SECRET=local-dev-secret",
	}
	env := slices.Clone(base)
	for _, kv := range defaults {
		key := kv[:strings.IndexByte(kv, '=')+1]
		if !slices.ContainsFunc(base, func(e string) bool { return strings.HasPrefix(e, key) }) {
			env = append(env, kv)
		}
	}
	if storage != "" {
		// exec keeps the last value of a duplicated key
		env = append(env, "DATABRIDGE_STORAGE="+storage)
	}
	return env
}

func newStackRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a DataBridge binary with go run against the local stack",
		Long: `run starts one DataBridge binary from source. api and worker expect the
infrastructure from "databridge stack up --mode infra"; server needs nothing.`,
	}
	for _, b := range binaries {
		cmd.AddCommand(newBinaryCmd(b))
	}
	return cmd
}

func newBinaryCmd(b binary) *cobra.Command {
	var storage string
	cmd := &cobra.Command{
		Use:   b.name,
		Short: b.short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if storage != "" && storage != "local" && storage != "s3" {
				return fmt.Errorf("unknown storage %q", storage)
			}
			run := exec.CommandContext(cmd.Context(), "go", append([]string{"run", b.path}, args...)...)
			run.Env = runEnv(os.Environ(), b, storage)
			run.Stdout = os.Stdout
			run.Stderr = os.Stderr
			return run.Run()
		},
	}
	cmd.Flags().StringVar(&storage, "storage", "", fmt.Sprintf("Payload storage: local or s3 (default %s)", b.storage))
	return cmd
}

func runCommand(ctx context.Context, name string, args ...string) error {
	execCmd := exec.CommandContext(ctx, name, args...)
	execCmd.Stdout = os.Stdout
	execCmd.Stderr = os.Stderr
	execCmd.Stdin = os.Stdin
	return execCmd.Run()
}
