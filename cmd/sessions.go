package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/andresmejia3/hush/internal/utils"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:         "sessions",
	Short:       "List recorded watch sessions",
	Annotations: map[string]string{dbAnnotation: "required"},
	Run: func(cmd *cobra.Command, args []string) {
		sessions, err := DB.ListSessions(cmd.Context())
		if err != nil {
			utils.Die("Failed to list sessions", err, nil)
		}

		if len(sessions) == 0 {
			fmt.Println("No sessions found in database.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tSTARTED\tDURATION\tLANG\tREGIONS\tENGINES\tPASSES\tEVENTS")
		fmt.Fprintln(w, "--\t-------\t--------\t----\t-------\t-------\t------\t------")
		for _, s := range sessions {
			duration := "running"
			if s.EndedAt != nil {
				duration = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
				s.ID, s.StartedAt.Local().Format("2006-01-02 15:04"), duration,
				s.Language, strings.Join(s.Regions, ","), s.Engines, s.Ticks, s.Events)
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}
