package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/hyperengineering/simtracker/internal/generate"
	"github.com/hyperengineering/simtracker/internal/render"
	"github.com/spf13/cobra"
)

var generateJSON bool

var generateCmd = &cobra.Command{
	Use:   "generate <message-id>",
	Short: "Regenerate the tracker block of one message with the model",
	Args:  cobra.ExactArgs(1),
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().BoolVar(&generateJSON, "json", false, "Output in JSON format")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("message id %q: %w", args[0], err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Generation.APIKey == "" && cfg.Generation.BaseURL == "" {
		return errors.New("OPENAI_API_KEY or generation.base_url is required")
	}
	opts, err := generate.OptionsFrom(cfg.Generation, cfg.Tracker)
	if err != nil {
		return err
	}

	tr, err := openTranscript(ctx, cfg)
	if err != nil {
		return err
	}
	defer tr.Close()

	completer := generate.NewOpenAI(cfg.Generation.APIKey, cfg.Generation.BaseURL, cfg.Generation.Model)
	g := generate.New(completer, tr.chat, render.NewSessionState(), nil, opts)

	res, err := g.Regenerate(ctx, id)
	if err != nil {
		return err
	}

	if generateJSON {
		return printJSON(cmd.OutOrStdout(), res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Regenerated message %d (%d characters)\n",
		res.MessageID, len(res.Record.Characters))
	return nil
}
