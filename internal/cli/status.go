package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"todox/internal/app"
	"todox/internal/systemd"
)

type statusReport struct {
	Reminders *app.Inspection     `json:"reminders,omitempty"`
	Unit      *systemd.UnitStatus `json:"unit,omitempty"`
}

func newStatusCmd(cfgPath *string) *cobra.Command {
	var (
		asJSON bool
		unit   string
		user   bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show persisted reminders and optionally the systemd unit state",
		Long: `status reads the reminder mirror from the configured storage and lists
how many reminders each task has, exactly as a restarted daemon would
restore them. With --unit it also asks systemd about the service.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var rep statusReport
			ins, err := app.Inspect(cmd.Context(), *cfgPath)
			switch {
			case err == nil:
				rep.Reminders = &ins
			case errors.Is(err, app.ErrNoStorage) && unit != "":
			default:
				return err
			}
			if unit != "" {
				st, err := systemd.QueryUnit(cmd.Context(), unit, user)
				if err != nil {
					return fmt.Errorf("query unit: %w", err)
				}
				rep.Unit = st
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			writeStatus(cmd.OutOrStdout(), rep)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().StringVar(&unit, "unit", "", "systemd unit to query (e.g. todox.service)")
	cmd.Flags().BoolVar(&user, "user", false, "query the user systemd instance")
	return cmd
}

func writeStatus(w io.Writer, rep statusReport) {
	if u := rep.Unit; u != nil {
		if !u.Found() {
			fmt.Fprintf(w, "unit %s: not found\n", u.Name)
		} else {
			fmt.Fprintf(w, "unit %s: %s (%s)\n", u.Name, u.Active, u.SubState)
			if !u.ActiveSince.IsZero() && u.Active == "active" {
				fmt.Fprintf(w, "  since %s\n", u.ActiveSince.Format("2006-01-02 15:04:05"))
			}
		}
	}
	ins := rep.Reminders
	if ins == nil {
		return
	}
	fmt.Fprintf(w, "storage %s: %d reminders across %d tasks\n", ins.Driver, ins.Total, len(ins.Tasks))
	if len(ins.Tasks) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tTITLE\tCOUNT\tREMINDERS")
	for _, t := range ins.Tasks {
		title := t.Title
		if title == "" {
			title = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", t.TaskID, title, t.Count, strings.Join(t.Labels, ","))
	}
	_ = tw.Flush()
}
