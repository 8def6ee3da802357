package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	httpadapter "agora/contexts/platform-ops/message-ledger/adapters/http"
	domainerrors "agora/contexts/platform-ops/message-ledger/domain/errors"
	httptransport "agora/contexts/platform-ops/message-ledger/transport/http"
)

func NewGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <message-id>",
		Short:         "Show one processing record",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(opts, cmd, func(h httpadapter.Handler, out *OutputFormatter) error {
				resp, err := h.GetRecordHandler(context.Background(), opts.Tenant, args[0])
				if err != nil {
					return ledgerFailure(out, err)
				}
				return out.Success(resp.Item, func(w io.Writer) {
					writeRecordDetail(w, resp.Item)
				})
			})
		},
	}
}

func NewStatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stats",
		Short:         "Count records per status for a tenant",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(opts, cmd, func(h httpadapter.Handler, out *OutputFormatter) error {
				resp, err := h.StatisticsHandler(context.Background(), opts.Tenant)
				if err != nil {
					return ledgerFailure(out, err)
				}
				return out.Success(resp, func(w io.Writer) {
					fmt.Fprintf(w, "Tenant: %s\n", resp.TenantID)
					fmt.Fprintf(w, "Total:  %d\n", resp.Total)
					statuses := make([]string, 0, len(resp.Counts))
					for status := range resp.Counts {
						statuses = append(statuses, status)
					}
					sort.Strings(statuses)
					for _, status := range statuses {
						fmt.Fprintf(w, "  %-20s %d\n", status, resp.Counts[status])
					}
					fmt.Fprintf(w, "Average duration: %.1fms\n", resp.AverageDurationMs)
				})
			})
		},
	}
}

type RetriesOptions struct {
	*RootOptions
	Limit int
}

func NewRetriesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RetriesOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:           "retries",
		Short:         "List records due for retry",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(opts.RootOptions, cmd, func(h httpadapter.Handler, out *OutputFormatter) error {
				resp, err := h.ReadyForRetryHandler(context.Background(), opts.Tenant, opts.Limit)
				if err != nil {
					return ledgerFailure(out, err)
				}
				return out.Success(resp.Items, func(w io.Writer) {
					writeRecordTable(w, resp.Items)
				})
			})
		},
	}
	cmd.Flags().IntVar(&opts.Limit, "limit", 100, "maximum records to list")
	return cmd
}

type DeadLettersOptions struct {
	*RootOptions
	From string
	To   string
	Skip int
	Take int
}

func NewDeadLettersCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeadLettersOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "dead-letters",
		Short: "List dead-lettered records",
		Long: `List dead-lettered records, newest first.

Examples:
  ledgerctl dead-letters --tenant acme
  ledgerctl dead-letters --tenant acme --from 2026-01-01T00:00:00Z --take 20 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(opts.RootOptions, cmd, func(h httpadapter.Handler, out *OutputFormatter) error {
				resp, err := h.DeadLetteredHandler(context.Background(), opts.Tenant, httptransport.DeadLetterListRequest{
					From: opts.From,
					To:   opts.To,
					Skip: opts.Skip,
					Take: opts.Take,
				})
				if err != nil {
					return ledgerFailure(out, err)
				}
				return out.Success(resp.Items, func(w io.Writer) {
					writeRecordTable(w, resp.Items)
				})
			})
		},
	}
	cmd.Flags().StringVar(&opts.From, "from", "", "RFC3339 lower bound on dead_lettered_at")
	cmd.Flags().StringVar(&opts.To, "to", "", "RFC3339 upper bound on dead_lettered_at")
	cmd.Flags().IntVar(&opts.Skip, "skip", 0, "records to skip")
	cmd.Flags().IntVar(&opts.Take, "take", 50, "page size")
	return cmd
}

// ledgerFailure reports a refused operation in the selected format and maps
// it to an exit code.
func ledgerFailure(out *OutputFormatter, err error) error {
	code := "E_INTERNAL"
	exit := ExitFailure
	switch {
	case errors.Is(err, domainerrors.ErrRecordNotFound), errors.Is(err, domainerrors.ErrDeadLetterNotFound):
		code = "E_NOT_FOUND"
	case errors.Is(err, domainerrors.ErrInvalidTransition), errors.Is(err, domainerrors.ErrStatusConflict):
		code = "E_CONFLICT"
	case errors.Is(err, domainerrors.ErrInvalidRequest), errors.Is(err, domainerrors.ErrInvalidRetention):
		code = "E_INVALID"
		exit = ExitCommandError
	}
	_ = out.Error(code, err.Error())
	return WrapExitError(exit, "ledger operation failed", err)
}

func writeRecordTable(w io.Writer, items []httptransport.ProcessingRecordDTO) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No records.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MESSAGE ID\tTYPE\tSTATUS\tATTEMPTS\tNEXT RETRY\tREASON")
	for _, item := range items {
		reason := item.DeadLetterReason
		if reason == "" {
			reason = item.ErrorMessage
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			item.MessageID,
			item.MessageType,
			item.Status,
			item.AttemptCount,
			item.MaxAttempts,
			orDash(item.NextRetryAt),
			orDash(reason),
		)
	}
	_ = tw.Flush()
}

func writeRecordDetail(w io.Writer, item httptransport.ProcessingRecordDTO) {
	fmt.Fprintf(w, "Message:   %s/%s\n", item.TenantID, item.MessageID)
	fmt.Fprintf(w, "Type:      %s\n", item.MessageType)
	fmt.Fprintf(w, "Status:    %s\n", item.Status)
	fmt.Fprintf(w, "Attempts:  %d/%d\n", item.AttemptCount, item.MaxAttempts)
	fmt.Fprintf(w, "Received:  %s\n", item.ReceivedAt)
	if item.NextRetryAt != "" {
		fmt.Fprintf(w, "Next retry: %s\n", item.NextRetryAt)
	}
	if item.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:     %s\n", item.ErrorMessage)
	}
	if item.IsDeadLettered {
		fmt.Fprintf(w, "Dead-lettered at %s: %s\n", item.DeadLetteredAt, item.DeadLetterReason)
	}
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
