package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var chatsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored chats, most recently updated first",
	Args:  cobra.NoArgs,
	RunE:  runChatsList,
}

func runChatsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	db, _, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	chats, err := db.ListChats(ctx)
	if err != nil {
		return fmt.Errorf("list chats: %w", err)
	}

	if chatsJSONOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"chats": chats,
			"total": len(chats),
		})
	}

	if len(chats) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No chats found.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "ID\tNAME\tMESSAGES\tUPDATED")
	for _, c := range chats {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			c.ID,
			c.Name,
			c.Messages,
			c.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	w.Flush()

	return nil
}
