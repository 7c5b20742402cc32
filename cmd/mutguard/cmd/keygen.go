package cmd

import (
	"fmt"

	"github.com/solatis/mutguard/internal/core/auth"
	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an API key for the guard service",
	Long:  `Prints a new API key. Pass it to the server through MG_API_KEY or MG_API_KEY_<n> and to clients through MG_API_KEY.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := auth.GenerateAPIKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
