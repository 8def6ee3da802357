package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	httpadapter "agora/contexts/platform-ops/message-ledger/adapters/http"
	httptransport "agora/contexts/platform-ops/message-ledger/transport/http"
)

type transitionAction struct {
	use    string
	action string
	short  string
}

// transitionActions mirror the operator transitions on the HTTP surface.
var transitionActions = []transitionAction{
	{use: "retry", action: "retry", short: "Send a dead-lettered record back to pending"},
	{use: "dead-letter", action: "dead-letter", short: "Dead-letter a record by hand"},
	{use: "fail", action: "permanent-failure", short: "Mark a record permanently failed"},
	{use: "cancel", action: "cancel", short: "Cancel a pending record"},
}

type TransitionOptions struct {
	*RootOptions
	Reason string
}

func NewTransitionCommand(rootOpts *RootOptions, action transitionAction) *cobra.Command {
	opts := &TransitionOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:           action.use + " <message-id>",
		Short:         action.short,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(opts.RootOptions, cmd, func(h httpadapter.Handler, out *OutputFormatter) error {
				out.VerboseLog("applying %s to %s/%s as %s", action.action, opts.Tenant, args[0], opts.Actor)
				resp, err := h.TransitionHandler(
					context.Background(),
					opts.Actor,
					opts.Tenant,
					args[0],
					action.action,
					httptransport.TransitionRequest{Reason: opts.Reason},
				)
				if err != nil {
					return ledgerFailure(out, err)
				}
				return out.Success(resp.Item, func(w io.Writer) {
					fmt.Fprintf(w, "%s/%s is now %s\n", resp.Item.TenantID, resp.Item.MessageID, resp.Item.Status)
				})
			})
		},
	}
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "reason recorded on the record")
	return cmd
}

type CleanupOptions struct {
	*RootOptions
	RetentionDays int
}

func NewCleanupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CleanupOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:           "cleanup",
		Short:         "Delete terminal records older than the retention window",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(opts.RootOptions, cmd, func(h httpadapter.Handler, out *OutputFormatter) error {
				resp, err := h.CleanupHandler(context.Background(), opts.Tenant, httptransport.CleanupRequest{
					RetentionDays: opts.RetentionDays,
				})
				if err != nil {
					return ledgerFailure(out, err)
				}
				return out.Success(resp, func(w io.Writer) {
					fmt.Fprintf(w, "Deleted %d terminal records older than %s\n", resp.Deleted, resp.Cutoff)
				})
			})
		},
	}
	cmd.Flags().IntVar(&opts.RetentionDays, "retention-days", 30, "keep terminal records newer than this many days")
	return cmd
}
