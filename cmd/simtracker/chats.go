package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hyperengineering/simtracker/internal/store"
	"github.com/spf13/cobra"
)

var chatsJSONOutput bool

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "Manage chats in the SQLite database",
	Long:  "Import, list, and inspect stored chats without running the server.",
}

func init() {
	chatsCmd.PersistentFlags().BoolVar(&chatsJSONOutput, "json", false,
		"Output in JSON format")

	chatsCmd.AddCommand(chatsImportCmd)
	chatsCmd.AddCommand(chatsListCmd)
	chatsCmd.AddCommand(chatsInfoCmd)
}

// openDatabase opens the configured chat database.
func openDatabase() (*store.SQLiteStore, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}
	db, err := store.NewSQLiteStore(cfg.Chat.DBPath)
	if err != nil {
		return nil, "", err
	}
	return db, cfg.Chat.DBPath, nil
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
