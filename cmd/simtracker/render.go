package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hyperengineering/simtracker/internal/dispatch"
	"github.com/hyperengineering/simtracker/internal/host"
	"github.com/spf13/cobra"
)

var (
	renderOut      string
	renderPosition string
	renderTemplate string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the transcript to a static HTML page",
	Long:  "Renders the chat once, with all sidebar work settled, and writes the page.",
	Args:  cobra.NoArgs,
	RunE:  runRender,
}

func init() {
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "", "Output file (default stdout)")
	renderCmd.Flags().StringVar(&renderPosition, "position", "", "Override the tracker position")
	renderCmd.Flags().StringVar(&renderTemplate, "template", "", "Override the tracker template path")
}

func runRender(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if renderPosition != "" {
		cfg.Tracker.Position = renderPosition
	}
	if renderTemplate != "" {
		cfg.Tracker.TemplatePath = renderTemplate
	}
	if err := cfg.Tracker.Validate(); err != nil {
		return err
	}

	tr, err := openTranscript(ctx, cfg)
	if err != nil {
		return err
	}
	defer tr.Close()

	// Sidebar anchoring retries run on the manual clock and settle in Flush.
	sched := &dispatch.Manual{}
	h, err := host.New(tr.chat, sched, cfg.Tracker)
	if err != nil {
		return err
	}
	if err := h.Refresh(ctx); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	sched.Flush()

	doc, err := h.HTML()
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	if renderOut == "" {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), doc)
		return err
	}
	if err := os.WriteFile(renderOut, []byte(doc+"\n"), 0o644); err != nil {
		return fmt.Errorf("write page: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d messages)\n", renderOut, len(h.Messages()))
	return nil
}
