package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/hush/internal/utils"
	"github.com/spf13/cobra"
)

var (
	eventsSession int64
	eventsLimit   int
)

var eventsCmd = &cobra.Command{
	Use:         "events",
	Short:       "List recorded mute and unmute events",
	Annotations: map[string]string{dbAnnotation: "required"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		records, err := DB.ListEvents(cmd.Context(), eventsSession, eventsLimit)
		if err != nil {
			utils.ShowError("Failed to list events", err, nil)
			return err
		}

		if len(records) == 0 {
			fmt.Println("No events found in database.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "SESSION\tTICK\tTIME\tEVENT\tREGION\tTEXT")
		fmt.Fprintln(w, "-------\t----\t----\t-----\t------\t----")
		for _, r := range records {
			kind := r.Kind.String()
			if r.Forced {
				kind += " (forced)"
			}
			fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\n",
				r.SessionID, r.Tick, r.At.Local().Format("2006-01-02 15:04:05"), kind, r.Region, r.Text)
		}
		w.Flush()
		return nil
	},
}

func init() {
	eventsCmd.Flags().Int64VarP(&eventsSession, "session", "s", 0, "Only show events of this session (0 = all)")
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 50, "Maximum number of events (0 = no limit)")
	rootCmd.AddCommand(eventsCmd)
}
