package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/andresmejia3/trackpose/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetDB    bool
	resetFiles bool
	resetCache bool
)

var resetCmd = &cobra.Command{
	Use:         "reset",
	Short:       "Reset system state (Database, Output Files, Cache)",
	Long:        "Clears all data. By default, it resets everything. Use flags to clear specific components.",
	Annotations: map[string]string{annotStore: optional, annotCache: optional},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetFiles && !resetCache {
			resetDB = true
			resetFiles = true
			resetCache = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetDB {
			if DB == nil {
				fmt.Println("⏭️  No database configured, skipping.")
			} else if confirm(reader, "⚠️  Are you sure you want to DROP all database tables?") {
				fmt.Println("🗑️  Clearing Database...")
				if err := DB.Reset(cmd.Context()); err != nil {
					utils.ShowError("Failed to reset database", err, nil)
					return err
				}
			}
		}

		if resetFiles {
			if confirm(reader, fmt.Sprintf("⚠️  Are you sure you want to delete all results in %s?", Cfg.Output.Dir)) {
				fmt.Println("🗑️  Clearing Output Files...")
				removeDir(Cfg.Output.Dir)
			}
		}

		if resetCache {
			if Cache == nil {
				fmt.Println("⏭️  No cache configured, skipping.")
			} else if confirm(reader, "⚠️  Are you sure you want to delete all cached results?") {
				n, err := Cache.Flush(cmd.Context())
				if err != nil {
					utils.ShowError("Failed to flush cache", err, nil)
					return err
				}
				fmt.Printf("🗑️  Removed %d cached results.\n", n)
			}
		}

		fmt.Println("✨ System Reset Complete.")
		return nil
	},
}

func init() {
	// --db is the persistent connection string, so the table switch needs its own name
	resetCmd.Flags().BoolVar(&resetDB, "tables", false, "Drop the PostgreSQL tables")
	resetCmd.Flags().BoolVar(&resetFiles, "files", false, "Clear result files in the output dir")
	resetCmd.Flags().BoolVar(&resetCache, "cache", false, "Clear cached results in Redis")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, prompt string) bool {
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
