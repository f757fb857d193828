package cmd

import (
	"fmt"

	"github.com/andresmejia3/hush/internal/utils"
	"github.com/spf13/cobra"
)

var configShowPath bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective settings as YAML",
	Long: "Prints the settings file merged over the built-in defaults. Redirect the output " +
		"into the settings file to start customizing regions, colours or the mute command.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if configShowPath {
			fmt.Println(configPath)
			return nil
		}
		if err := Cfg.Validate(); err != nil {
			utils.ShowError("Invalid settings", err, nil)
			return err
		}
		out, err := Cfg.Marshal()
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&configShowPath, "path", false, "Only print where the settings file is read from")
	rootCmd.AddCommand(configCmd)
}
