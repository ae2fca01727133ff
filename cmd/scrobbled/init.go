package main

import (
	"fmt"
	"os"

	"github.com/scrobbled/scrobbled/internal/store"
	"github.com/scrobbled/scrobbled/internal/util"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the data directory, database and search index",
	Long: `Create the data directory, the scrobble database with its schema, and the
full-text search index with its propagation triggers.

Running init is optional - every command creates what it needs - but it is
a convenient connectivity check. Use --dry-run to see what would be created
without touching anything.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().Bool("dry-run", false, "show what would be created without making changes")
}

func runInit(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	dryRun, _ := cmd.Flags().GetBool("dry-run")

	if dryRun {
		fmt.Printf("Would create data directory: %s\n", dataDir())
		fmt.Printf("Would create database:       %s\n", dbPath())
		fmt.Printf("Would expect auth file:      %s\n", authPath())
		if _, err := os.Stat(dbPath()); err == nil {
			fmt.Println("Database already exists.")
		}
		return nil
	}

	if err := os.MkdirAll(dataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := store.Open(dbPath())
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	if err := db.EnsureSearchIndex(); err != nil {
		return err
	}

	triggers, err := db.SearchTriggerCount()
	if err != nil {
		return err
	}

	util.SuccessLog("Initialized database at %s (SQLite %s, %d index triggers)",
		dbPath(), store.SQLiteVersion(), triggers)
	util.InfoLog("Next step: scrobbled auth --api-key KEY --username USER")
	return nil
}
