package cli

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	httpadapter "agora/contexts/platform-ops/message-ledger/adapters/http"
)

// Opener wires a ledger for one command invocation. The returned close func
// releases database and broker connections.
type Opener func(logOutput io.Writer) (httpadapter.Handler, func() error, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Tenant  string
	Actor   string

	open Opener
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the ledgerctl root command.
func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operate the message processing ledger",
		Long: `Inspect and repair the message processing ledger.

Connection settings come from the same environment as the api and worker
processes (POSTGRES_DSN, KAFKA_BROKERS, LEDGER_*).`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Tenant, "tenant", "t", "", "tenant id (required)")
	cmd.PersistentFlags().StringVar(&opts.Actor, "actor", "ledgerctl", "operator recorded on manual transitions")

	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewRetriesCommand(opts))
	cmd.AddCommand(NewDeadLettersCommand(opts))
	for _, action := range transitionActions {
		cmd.AddCommand(NewTransitionCommand(opts, action))
	}
	cmd.AddCommand(NewCleanupCommand(opts))

	return cmd
}

// withLedger opens the ledger, runs fn and always releases connections.
func withLedger(opts *RootOptions, cmd *cobra.Command, fn func(httpadapter.Handler, *OutputFormatter) error) error {
	if opts.Tenant == "" {
		return NewExitError(ExitCommandError, "--tenant is required")
	}
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logOutput := io.Discard
	if opts.Verbose {
		logOutput = out.GetErrWriter()
	}
	handler, closeFn, err := opts.open(logOutput)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open ledger", err)
	}
	defer func() {
		if closeFn == nil {
			return
		}
		if err := closeFn(); err != nil {
			out.VerboseLog("closing ledger: %v", err)
		}
	}()
	return fn(handler, out)
}
