package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/cadence/internal/calendar"
	"github.com/roach88/cadence/internal/engine"
	"github.com/roach88/cadence/internal/httpapi"
)

// InputOptions holds the JSON body flags shared by create and edit.
type InputOptions struct {
	Data string
	File string
}

func (o *InputOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.Data, "data", "d", "", "JSON body")
	cmd.Flags().StringVarP(&o.File, "file", "f", "", "read the JSON body from a file (- for stdin)")
}

// decode reads the body into v. Unknown fields are rejected.
func (o *InputOptions) decode(cmd *cobra.Command, v any) error {
	var raw []byte
	switch {
	case o.Data != "" && o.File != "":
		return NewExitError(ExitCommandError, "use only one of --data and --file")
	case o.Data != "":
		raw = []byte(o.Data)
	case o.File == "-":
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read stdin", err)
		}
		raw = b
	case o.File != "":
		b, err := os.ReadFile(o.File)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read input file", err)
		}
		raw = b
	default:
		return NewExitError(ExitCommandError, "a JSON body is required (--data or --file)")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return WrapExitError(ExitCommandError, "malformed JSON body", err)
	}
	return nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid event id %q", s))
	}
	return id, nil
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	input := &InputOptions{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an event or a recurring series",
		Long: `Create a standalone event, or a series when recurrence_rule is set.

Example:
  cadence create -d '{"kind":"APPOINTMENT","start":"2024-01-08T10:00","end":"2024-01-08T11:00",
    "clinician_id":7,"location_id":3,"client_id":11,"status_id":1,
    "recurrence_rule":"FREQ=WEEKLY;COUNT=10"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var req httpapi.EventRequest
			if err := input.decode(cmd, &req); err != nil {
				return err
			}
			a, err := openApp(rootOpts, cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			draft, err := req.Draft(a.loc)
			if err != nil {
				return a.out.Fail("invalid event", err)
			}
			v, err := a.engine.CreateSeries(cmd.Context(), draft)
			if err != nil {
				return a.out.Fail("create failed", err)
			}
			return a.out.Success(eventText(v))
		},
	}
	input.register(cmd)
	return cmd
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one event",
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

			v, err := a.engine.GetEvent(cmd.Context(), id)
			if err != nil {
				return a.out.Fail("get failed", err)
			}
			return a.out.Success(eventText(v))
		},
	}
}

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	input := &InputOptions{}
	var scope string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit an event, one occurrence, or the rest of a series",
		Long: `Apply a partial update. Absent fields are left unchanged.

--scope is required:
  single      update the event in place
  occurrence  detach the event from its series, then update it
  series      update the event and every later occurrence

Example:
  cadence edit 42 --scope series -d '{"start":"2024-02-05T14:00","end":"2024-02-05T15:00"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var req httpapi.PatchRequest
			if err := input.decode(cmd, &req); err != nil {
				return err
			}
			a, err := openApp(rootOpts, cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			sc, err := engine.ParseEditScope(scope)
			if err != nil {
				return a.out.Fail("invalid scope", err)
			}
			patch, err := req.Patch(a.loc)
			if err != nil {
				return a.out.Fail("invalid patch", err)
			}
			v, err := a.engine.EditEvent(cmd.Context(), id, sc, patch)
			if err != nil {
				return a.out.Fail("edit failed", err)
			}
			return a.out.Success(eventText(v))
		},
	}
	input.register(cmd)
	cmd.Flags().StringVarP(&scope, "scope", "s", "", "edit scope, required (single|occurrence|series)")
	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an event, the rest of a series, or a whole series",
		Long: `Delete events.

--scope is required:
  single, occurrence  delete this event only; it is not generated again
  series              delete this event and every later occurrence
  all                 delete the whole series`,
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

			sc, err := engine.ParseDeleteScope(scope)
			if err != nil {
				return a.out.Fail("invalid scope", err)
			}
			res, err := a.engine.DeleteEvent(cmd.Context(), id, sc)
			if err != nil {
				return a.out.Fail("delete failed", err)
			}
			return a.out.Success(deleteText(res))
		},
	}
	cmd.Flags().StringVarP(&scope, "scope", "s", "", "delete scope, required (single|occurrence|series|all)")
	return cmd
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	Role       string
	Actor      int64
	Start      string
	End        string
	ResourceID int64
	LocationID int64
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events in a range",
		Long: `List events whose start falls in [start, end). Without --start the
current month is listed; without --end one month from --start.

Example:
  cadence list --start 2024-01-01 --end 2024-02-01
  cadence list --role clinician --actor 7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			q, err := opts.query(a)
			if err != nil {
				return a.out.Fail("invalid query", err)
			}
			views, err := a.engine.ListEvents(cmd.Context(), q)
			if err != nil {
				return a.out.Fail("list failed", err)
			}
			if views == nil {
				views = []calendar.View{}
			}
			return a.out.Success(listText(views))
		},
	}

	cmd.Flags().StringVar(&opts.Role, "role", "ADMIN", "caller role (ADMIN|CLINICIAN)")
	cmd.Flags().Int64Var(&opts.Actor, "actor", 0, "caller's clinician id (required for CLINICIAN)")
	cmd.Flags().StringVar(&opts.Start, "start", "", "range start (ISO-8601)")
	cmd.Flags().StringVar(&opts.End, "end", "", "range end, exclusive (ISO-8601)")
	cmd.Flags().Int64Var(&opts.ResourceID, "resource", 0, "only events of this clinician")
	cmd.Flags().Int64Var(&opts.LocationID, "location", 0, "only events at this location")
	return cmd
}

func (o *ListOptions) query(a *app) (engine.Query, error) {
	role, err := engine.ParseRole(o.Role)
	if err != nil {
		return engine.Query{}, err
	}
	q := engine.Query{Role: role, ActorID: o.Actor, ResourceID: o.ResourceID, LocationID: o.LocationID}
	if o.Start != "" {
		if q.Start, err = calendar.ParseInstant(o.Start, a.loc); err != nil {
			return q, engine.NewValidationError("start", err.Error())
		}
	}
	if o.End != "" {
		if q.End, err = calendar.ParseInstant(o.End, a.loc); err != nil {
			return q, engine.NewValidationError("end", err.Error())
		}
	}
	return q, nil
}

// NewPromoteCommand creates the promote command.
func NewPromoteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "promote <id>",
		Short: "Split a series so an occurrence heads the rest of it",
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

			v, err := a.engine.Promote(cmd.Context(), id)
			if err != nil {
				return a.out.Fail("promote failed", err)
			}
			return a.out.Success(eventText(v))
		},
	}
}
