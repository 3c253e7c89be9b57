package cli

import (
	"fmt"

	"github.com/raphaelgruber/threadsync/internal/service"
	"github.com/spf13/cobra"
)

var summarizeStats bool

var summarizeCmd = &cobra.Command{
	Use:   "summarize <page-id>",
	Short: "Append an AI summary to a page",
	Long: `Summarize the text of a page with the completion service and append the
summary under an "AI summary" heading.

The first draft is reviewed by the model and rewritten once if the review
finds problems.

Examples:
  threadsync summarize 1a2b3c4d-0000-0000-0000-000000000000
  threadsync pages | head
  threadsync summarize <id from pages> --stats`,
	Args: cobra.ExactArgs(1),
	RunE: runSummarize,
}

func init() {
	summarizeCmd.Flags().BoolVar(&summarizeStats, "stats", false, "print timing and token statistics")
}

func runSummarize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pageID := args[0]

	if err := cfg.ValidateStore(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	b, err := openBackends(ctx, false)
	if err != nil {
		return err
	}
	completer, err := newCompleter(ctx)
	if err != nil {
		return err
	}

	svc := service.NewKnowledgeService(b.store, service.NewGenerator(completer, logger), 0, logger)
	res := svc.GenerateAndAttach(ctx, pageID)

	out := cmd.OutOrStdout()
	renderAttach(out, pageID, res, defaultTheme)
	if summarizeStats {
		printStats(out, collector.Snapshot())
	}
	if res.Status != service.AttachOK {
		return errRunFailed
	}
	return nil
}
