package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var configJSON bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration parley would use here, after merging
~/.config/parley/config.*, ./.parley.*, PARLEY_* variables and flags.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		entries := cfg.Entries()
		if configJSON {
			m := make(map[string]string, len(entries))
			for _, e := range entries {
				m[e.Key] = e.Value
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(m)
		}
		for _, e := range entries {
			fmt.Fprintf(out, "%s = %s\n", e.Key, e.Value)
		}
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&configJSON, "json", false, "print as a JSON object")
	configCmd.Annotations = map[string]string{skipProfile: "true"}
	rootCmd.AddCommand(configCmd)
}
