package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/raphaelgruber/threadsync/internal/service"
)

// previewLines is how many summary lines a run report shows.
const previewLines = 3

// summaryPreview returns the first n lines and a trailer for the rest.
func summaryPreview(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	preview := append([]string{}, lines[:n]...)
	return append(preview, fmt.Sprintf("...and %d more", len(lines)-n))
}

// renderRun writes a sync run report.
func renderRun(w io.Writer, res service.RunResult, t Theme) {
	var b strings.Builder

	switch res.Status {
	case service.StatusSuccess:
		b.WriteString(t.completedStyle().Render("✓ Sync complete"))
	case service.StatusNoNewEvents:
		b.WriteString(t.statusStyle().Render("• No new messages"))
	case service.StatusNoSource:
		b.WriteString(t.errorStyle().Render("✗ Source channel not found"))
	default:
		b.WriteString(t.errorStyle().Render("✗ Sync failed"))
	}
	if res.Message != "" {
		b.WriteString(": " + res.Message)
	}
	b.WriteString("\n")

	if res.Status == service.StatusSuccess {
		fmt.Fprintf(&b, "\n  Messages synced:   %d\n", res.Processed)
		if res.Failed > 0 {
			fmt.Fprintf(&b, "  Messages failed:   %d\n", res.Failed)
		}
		if res.Deferred > 0 {
			fmt.Fprintf(&b, "  Messages deferred: %d\n", res.Deferred)
		}
		fmt.Fprintf(&b, "  Duration:          %s\n", res.Duration().Round(time.Millisecond))
	}

	if len(res.Summary) > 0 {
		b.WriteString("\n")
		for _, line := range summaryPreview(res.Summary, previewLines) {
			fmt.Fprintf(&b, "  • %s\n", line)
		}
	}

	if len(res.RelayFailures) > 0 {
		b.WriteString(t.warningStyle().Render(fmt.Sprintf("\nSkipped attachments (%d):", len(res.RelayFailures))) + "\n")
		for _, f := range res.RelayFailures {
			fmt.Fprintf(&b, "  • %s: %v\n", f.Filename, f.Err)
		}
	}

	b.WriteString(t.hintStyle().Render("run "+res.RunID) + "\n")
	fmt.Fprint(w, b.String())
}

// renderAttach writes the outcome of a summary attachment.
func renderAttach(w io.Writer, pageID string, res service.AttachResult, t Theme) {
	if res.Status != service.AttachOK {
		fmt.Fprintln(w, t.errorStyle().Render("✗ Summary failed")+": "+res.Message)
		return
	}
	fmt.Fprintln(w, t.completedStyle().Render("✓ Summary attached to "+pageID))
	if res.Summary != "" {
		fmt.Fprintf(w, "\n%s\n", res.Summary)
	}
}
