package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/raphaelgruber/threadsync/internal/models"
	"github.com/spf13/cobra"
)

var pagesFilter string

var pagesCmd = &cobra.Command{
	Use:   "pages",
	Short: "List knowledge pages",
	Long: `List every page in the knowledge store with its id and title.

Examples:
  threadsync pages
  threadsync pages --filter review`,
	Args: cobra.NoArgs,
	RunE: runPages,
}

func init() {
	pagesCmd.Flags().StringVarP(&pagesFilter, "filter", "f", "", "only show titles containing this text (case-insensitive)")
}

func runPages(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if err := cfg.ValidateStore(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	b, err := openBackends(ctx, false)
	if err != nil {
		return err
	}

	refs, err := b.store.ListPages(ctx)
	if err != nil {
		return fmt.Errorf("list pages: %w", err)
	}
	printPages(cmd.OutOrStdout(), filterPages(refs, pagesFilter))
	return nil
}

func filterPages(refs []models.PageRef, filter string) []models.PageRef {
	if filter == "" {
		return refs
	}
	filter = strings.ToLower(filter)
	var out []models.PageRef
	for _, ref := range refs {
		if strings.Contains(strings.ToLower(ref.Title), filter) {
			out = append(out, ref)
		}
	}
	return out
}

func printPages(w io.Writer, refs []models.PageRef) {
	if len(refs) == 0 {
		fmt.Fprintln(w, "No pages found.")
		return
	}

	width := len("ID")
	for _, ref := range refs {
		width = max(width, len(ref.ID))
	}
	fmt.Fprintf(w, "%-*s  %s\n", width, "ID", "TITLE")
	for _, ref := range refs {
		title := ref.Title
		if title == "" {
			title = defaultTheme.hintStyle().Render("(untitled)")
		}
		fmt.Fprintf(w, "%-*s  %s\n", width, ref.ID, title)
	}
	fmt.Fprintf(w, "\n%d pages\n", len(refs))
}
