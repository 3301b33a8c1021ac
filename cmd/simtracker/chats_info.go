package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var chatsInfoCmd = &cobra.Command{
	Use:   "info <chat-id>",
	Short: "Show detailed information about a stored chat",
	Args:  cobra.ExactArgs(1),
	RunE:  runChatsInfo,
}

func runChatsInfo(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	db, path, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	info, err := db.GetChat(ctx, args[0])
	if err != nil {
		return err
	}

	var sizeBytes int64
	if st, statErr := os.Stat(path); statErr == nil {
		sizeBytes = st.Size()
	}

	out := cmd.OutOrStdout()

	if chatsJSONOutput {
		return printJSON(out, map[string]any{
			"chat":          info,
			"database":      path,
			"db_size_bytes": sizeBytes,
		})
	}

	fmt.Fprintf(out, "Chat:      %s\n", info.ID)
	fmt.Fprintf(out, "Name:      %s\n", info.Name)
	if info.UserName != "" {
		fmt.Fprintf(out, "User:      %s\n", info.UserName)
	}
	if info.CharacterName != "" {
		fmt.Fprintf(out, "Character: %s\n", info.CharacterName)
	}
	fmt.Fprintf(out, "Messages:  %d\n", info.Messages)
	fmt.Fprintf(out, "Created:   %s\n", info.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "Updated:   %s\n", info.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "Database:  %s (%s)\n", path, formatSize(sizeBytes))

	return nil
}
