package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cadence/internal/calendar"
	"github.com/roach88/cadence/internal/httpapi"
	"github.com/roach88/cadence/internal/ics"
)

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <root-id> <rule>",
		Short: "Replace a series rule and add or remove occurrences to match",
		Long: `Set a new recurrence rule on a series root. Occurrences the new rule no
longer produces are deleted, missing ones are created, and edited
occurrences that still match are kept.

Example:
  cadence reconcile 42 'FREQ=WEEKLY;BYDAY=MO,WE;COUNT=8'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(rootOpts, cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.engine.ReconcileRule(cmd.Context(), id, args[1])
			if err != nil {
				return a.out.Fail("reconcile failed", err)
			}
			return a.out.Success(reconcileText(res))
		},
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <root-id>",
		Short: "Show the materialization state of a series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(rootOpts, cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.engine.SeriesStatus(cmd.Context(), id)
			if err != nil {
				return a.out.Fail("status failed", err)
			}
			return a.out.Success(stateText(st.View(a.loc)))
		},
	}
}

// exportResult is the JSON payload of export.
type exportResult struct {
	UID      string `json:"uid"`
	Calendar string `json:"calendar"`
}

func (r exportResult) WriteText(w io.Writer) error {
	_, err := io.WriteString(w, r.Calendar)
	return err
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export the series containing an event as iCalendar",
		Long: `Write the series as an RFC 5545 calendar: one master VEVENT with the
rule and exception dates, plus one override per occurrence.

Example:
  cadence export 42 > series.ics
  cadence export 42 -o series.ics`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(rootOpts, cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.engine.Series(cmd.Context(), id)
			if err != nil {
				return a.out.Fail("export failed", err)
			}
			var buf bytes.Buffer
			if err := ics.Encode(&buf, ics.Series(s, a.loc, time.Now())); err != nil {
				return WrapExitError(ExitCommandError, "failed to encode calendar", err)
			}

			if output != "" {
				if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
					return WrapExitError(ExitCommandError, "failed to write calendar", err)
				}
				a.out.VerboseLog("wrote %s", output)
				return nil
			}
			return a.out.Success(exportResult{UID: ics.UID(s.Root.ID), Calendar: buf.String()})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

// NewExpandCommand creates the expand command.
func NewExpandCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		start string
		count int
	)

	cmd := &cobra.Command{
		Use:   "expand <rule>",
		Short: "Validate a recurrence rule and list its first occurrences",
		Long: `Expand a rule from --start without storing anything.

Example:
  cadence expand 'FREQ=MONTHLY;BYDAY=MO,TU,WE,TH,FR;BYSETPOS=-1' --start 2024-01-31T09:00 -n 6`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			from := time.Now().In(a.loc)
			if start != "" {
				if from, err = calendar.ParseInstant(start, a.loc); err != nil {
					return WrapExitError(ExitCommandError, "invalid --start", err)
				}
			}
			if count > httpapi.MaxPreviewCount {
				count = httpapi.MaxPreviewCount
			}

			p, err := a.engine.PreviewRule(args[0], from, count)
			if err != nil {
				return a.out.Fail("invalid rule", err)
			}
			return a.out.Success(previewText(*p))
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first occurrence (ISO-8601, default now)")
	cmd.Flags().IntVarP(&count, "count", "n", httpapi.DefaultPreviewCount, "number of occurrences to list")
	return cmd
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the series graph in the database",
		Long: `Report events that break the series invariants, such as occurrences
whose parent is itself an occurrence, recurring roots without a rule, or
events that end before they start.

Exits 1 when any violation is found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			vs, err := a.engine.Check(cmd.Context())
			if err != nil {
				return a.out.Fail("check failed", err)
			}
			if vs == nil {
				vs = violationsText{}
			}
			if err := a.out.Success(violationsText(vs)); err != nil {
				return err
			}
			if len(vs) > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d violation(s) found", len(vs)))
			}
			return nil
		},
	}
}
