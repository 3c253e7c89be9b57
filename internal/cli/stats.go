package cli

import (
	"fmt"
	"io"

	"github.com/raphaelgruber/threadsync/internal/metrics"
)

var opLabels = map[string]string{
	metrics.OpSourceRead: "Source reads",
	metrics.OpStoreWrite: "Store writes",
	metrics.OpRelay:      "Attachment relays",
	metrics.OpCompletion: "Completions",
}

// printStats displays the runtime statistics collected during a command.
func printStats(w io.Writer, snap metrics.Snapshot) {
	fmt.Fprintf(w, "\nStatistics\n")
	fmt.Fprintf(w, "═══════════════════════════════════════\n")
	fmt.Fprintf(w, "Elapsed: %.1f seconds\n", snap.Elapsed.Seconds())

	for _, name := range metrics.Ops {
		op, ok := snap.Op(name)
		if !ok {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n", opLabels[name])
		fmt.Fprintf(w, "  Calls: %d, Total: %dms\n", op.Count, op.TimeMs.Total)
		fmt.Fprintf(w, "  Time: avg %.1fms, min %dms, max %dms\n",
			op.TimeMs.Avg, op.TimeMs.Min, op.TimeMs.Max)
		printTokens(w, "In: ", op.InTokens)
		printTokens(w, "Out:", op.OutTokens)
	}
}

func printTokens(w io.Writer, label string, r *metrics.Range) {
	if r == nil {
		return
	}
	fmt.Fprintf(w, "  Tokens %s %d total, avg %.0f\n", label, r.Total, r.Avg)
}
