// Package cli implements the digest terminal client.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ashtonliu88/diff-digest/common/id"
	"github.com/ashtonliu88/diff-digest/common/logger"
	"github.com/ashtonliu88/diff-digest/common/otel"
	"github.com/ashtonliu88/diff-digest/core/config"
	"github.com/ashtonliu88/diff-digest/internal/cache"
	"github.com/ashtonliu88/diff-digest/internal/client"
	"github.com/ashtonliu88/diff-digest/internal/kvstore"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

const (
	ExitSuccess      = 0
	ExitRuntimeError = 1
	ExitUsageError   = 2
)

// Preference keys and their defaults.
const (
	prefOwnerKey = "repo-owner"
	prefRepoKey  = "repo-name"
	defaultOwner = "openai"
	defaultRepo  = "openai-node"
)

// app is the per-invocation state shared by the subcommands.
type app struct {
	cfg       config.Config
	out       io.Writer
	errOut    io.Writer
	closeFn   func() error
	telemetry *otel.Telemetry
	client    *client.Client
	cache     *cache.Cache
	owner     *kvstore.Value[string]
	repo      *kvstore.Value[string]
	opened    bool
}

func (a *app) open(ctx context.Context) error {
	cfg, err := config.Load(config.ServiceTypeClient)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.opened = true

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		return fmt.Errorf("initializing otel: %w", err)
	}
	a.telemetry = telemetry

	logger.SetupTo(a.errOut, cfg)
	// Node 2 keeps client session ids apart from the server's.
	if err := id.Init(2); err != nil {
		return fmt.Errorf("initializing id generator: %w", err)
	}

	store, closeFn, err := kvstore.Open(ctx, cfg.Cache)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Cache.Backend, err)
	}
	a.closeFn = closeFn
	a.cache = cache.New(store, cache.WithExpiry(cfg.Cache.Expiry))
	a.owner = kvstore.NewValue(store, prefOwnerKey, defaultOwner)
	a.repo = kvstore.NewValue(store, prefRepoKey, defaultRepo)
	a.client = client.New(cfg.Client.ServerURL, nil)

	slog.DebugContext(ctx, "client ready", "server", cfg.Client.ServerURL, "cache_backend", cfg.Cache.Backend)
	return nil
}

// close releases what open acquired, including after a partial open.
func (a *app) close(ctx context.Context) {
	if !a.opened {
		return
	}
	a.opened = false

	if a.closeFn != nil {
		if err := a.closeFn(); err != nil {
			slog.DebugContext(ctx, "closing store", "error", err)
		}
	}
	if err := a.telemetry.Shutdown(context.WithoutCancel(ctx)); err != nil {
		slog.DebugContext(ctx, "otel shutdown", "error", err)
	}
}

// repository resolves owner and repo from flags, falling back to and then
// updating the saved preferences.
func (a *app) repository(ctx context.Context, owner, repo string) (string, string) {
	if owner == "" {
		owner = a.owner.Get(ctx)
	} else if err := a.owner.Set(ctx, owner); err != nil {
		slog.WarnContext(ctx, "saving owner preference failed", "error", err)
	}
	if repo == "" {
		repo = a.repo.Get(ctx)
	} else if err := a.repo.Set(ctx, repo); err != nil {
		slog.WarnContext(ctx, "saving repo preference failed", "error", err)
	}
	return owner, repo
}

// newRootCommand builds the command tree writing results to out and logs and
// progress to errOut. The returned app must be closed by the caller; see
// runCommand.
func newRootCommand(out, errOut io.Writer) (*cobra.Command, *app) {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "digest",
		Short:         "Generate release notes from pull request diffs",
		Long:          "digest lists merged pull requests and streams developer and marketing notes for them from a diff digest server.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.open(cmd.Context())
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.AddCommand(newDiffsCommand(a))
	root.AddCommand(newNotesCommand(a))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print digest version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(out, "digest version %s\n", version)
		},
	})
	return root, a
}

// runCommand executes root with args. Cleanup runs here rather than in a
// post-run hook because cobra skips those when the command fails.
func runCommand(ctx context.Context, root *cobra.Command, a *app, args []string) error {
	defer a.close(ctx)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// Run executes the CLI and returns the process exit code.
func Run(ctx context.Context, args []string) int {
	root, a := newRootCommand(os.Stdout, os.Stderr)

	if err := runCommand(ctx, root, a, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if isUsageError(err) {
			return ExitUsageError
		}
		return ExitRuntimeError
	}
	return ExitSuccess
}

type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func isUsageError(err error) bool {
	var ue *usageError
	return errors.As(err, &ue)
}
