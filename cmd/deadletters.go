package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var deadLettersLimit int

var deadLettersCmd = &cobra.Command{
	Use:   "deadletters",
	Short: "List permanently failed jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		letters, err := st.ListDeadLetters(ctx, deadLettersLimit)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(letters)
	},
}

func init() {
	deadLettersCmd.Flags().IntVar(&deadLettersLimit, "limit", 50, "maximum rows to list")
	rootCmd.AddCommand(deadLettersCmd)
}
