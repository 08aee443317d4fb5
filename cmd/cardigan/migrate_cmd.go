package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/cardigan/pkg/store"
)

var migrateDataDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	Long: `Opens the sqlite database under --data-dir, applying any pending schema
migrations, then exits. The serve command does this automatically on
startup; this subcommand exists for operators who want migrations applied
as a separate deploy step.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, err := store.NewStore(ctx, store.Config{Path: dbPath(migrateDataDir)})
		if err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		defer s.Close()
		fmt.Println("migrations applied")
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDataDir, "data-dir", "./data", "Directory holding the sqlite database file")
	rootCmd.AddCommand(migrateCmd)
}
