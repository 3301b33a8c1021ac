package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hyperengineering/simtracker/internal/chat"
	"github.com/hyperengineering/simtracker/internal/store"
	"github.com/spf13/cobra"
)

var (
	importName      string
	importUser      string
	importCharacter string
)

var chatsImportCmd = &cobra.Command{
	Use:   "import <chat.jsonl>",
	Short: "Import a JSONL chat file into the database",
	Args:  cobra.ExactArgs(1),
	RunE:  runChatsImport,
}

func init() {
	chatsImportCmd.Flags().StringVar(&importName, "name", "", "Chat name (default file name)")
	chatsImportCmd.Flags().StringVar(&importUser, "user", "", "User display name")
	chatsImportCmd.Flags().StringVar(&importCharacter, "character", "", "Character display name")
}

func runChatsImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	path := args[0]

	fs, err := chat.OpenFile(path)
	if err != nil {
		return err
	}
	msgs, err := fs.Load(ctx)
	if err != nil {
		return err
	}

	name := importName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	db, _, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	info, err := db.ImportChat(ctx, store.ChatInfo{
		Name:          name,
		UserName:      importUser,
		CharacterName: importCharacter,
	}, msgs)
	if err != nil {
		return fmt.Errorf("import chat: %w", err)
	}

	if chatsJSONOutput {
		return printJSON(cmd.OutOrStdout(), info)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %q as %s (%d messages)\n", info.Name, info.ID, info.Messages)
	return nil
}
