package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/hush/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetTables bool
	resetDebug  bool
	resetYes    bool
)

var resetCmd = &cobra.Command{
	Use:         "reset",
	Short:       "Reset stored state (event log, debug masks)",
	Long:        "Clears stored data. By default, it resets everything it can reach. Use flags to clear specific components.",
	Annotations: map[string]string{dbAnnotation: "optional"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		// If no flags are set, default to clearing EVERYTHING
		if !resetTables && !resetDebug {
			resetTables = DB != nil
			resetDebug = true
		}
		return runReset(cmd, os.Stdin)
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetTables, "tables", false, "Drop the event log tables (needs --db or POSTGRES_HOST)")
	resetCmd.Flags().BoolVar(&resetDebug, "debug", false, "Delete the saved debug masks")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, in io.Reader) error {
	reader := bufio.NewReader(in)

	if resetTables {
		if DB == nil {
			err := errors.New("no database given")
			utils.ShowError("Cannot reset the event log", err, nil)
			return err
		}
		if confirm(reader, "⚠️  Are you sure you want to DROP all database tables?") {
			fmt.Println("🗑️  Clearing Database...")
			if err := DB.Reset(cmd.Context()); err != nil {
				utils.ShowError("Failed to reset database", err, nil)
				return err
			}
		}
	}

	if resetDebug {
		dir := Cfg.DebugDir
		if dir == "" {
			fmt.Println("ℹ️  No debug_dir configured, nothing to clear.")
		} else if confirm(reader, fmt.Sprintf("⚠️  Are you sure you want to delete everything in %s?", dir)) {
			fmt.Println("🗑️  Clearing Debug Masks...")
			removeDir(dir)
		}
	}

	fmt.Println("✨ Reset Complete.")
	return nil
}

func confirm(r *bufio.Reader, prompt string) bool {
	if resetYes {
		return true
	}
	fmt.Printf("%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeDir(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
