package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/clinic/internal/clinic"
)

// AgendaOptions holds flags for the agenda command.
type AgendaOptions struct {
	*RootOptions
	Date string
}

// NewAgendaCommand creates the agenda command.
func NewAgendaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AgendaOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "agenda",
		Short: "Show the appointments for a day",
		Long: `Show the appointments for a day in time order, with patient names.

Appointments whose patient was deleted are listed as "(removed patient)".`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgenda(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Date, "date", "", "day to show, YYYY-MM-DD (default today)")

	return cmd
}

func runAgenda(opts *AgendaOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	date := opts.Date
	if date == "" {
		date = opts.now().Format(clinic.DateLayout)
	}
	if _, err := time.Parse(clinic.DateLayout, date); err != nil {
		msg := fmt.Sprintf("invalid --date %q: must be YYYY-MM-DD", date)
		_ = out.Error(ErrCodeInvalidArgument, msg)
		return NewExitError(ExitCommandError, msg)
	}

	s, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := s.repo.Agenda(cmd.Context(), date)
	if err != nil {
		return s.out.Fail("agenda failed", err)
	}

	if out.Format == "json" {
		return out.Success(map[string]any{"date": date, "appointments": entries})
	}

	if len(entries) == 0 {
		fmt.Fprintf(out.Writer, "No appointments on %s\n", date)
		return nil
	}
	fmt.Fprintf(out.Writer, "Agenda for %s\n\n", date)
	for _, e := range entries {
		line := fmt.Sprintf("  %s  %s  [%s]", e.Time, e.PatientName, e.Status)
		if e.Note != "" {
			line += "  " + e.Note
		}
		fmt.Fprintln(out.Writer, line)
	}
	return nil
}
