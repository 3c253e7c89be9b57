package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/raphaelgruber/threadsync/internal/service"
	"github.com/spf13/cobra"
)

var (
	syncSince string
	syncStats bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy new Discord messages into the knowledge base",
	Long: `Read every message posted in the target channel since the start of the
day and write the ones not yet synced onto their pages.

Running sync again is safe: messages already recorded in the ledger are
skipped. Messages that failed are retried on the next run.

Examples:
  threadsync sync
  threadsync sync --since 2h
  threadsync sync --since 3d
  threadsync sync --since 2026-10-01
  threadsync sync --since 2026-10-01T09:00:00+09:00 --stats`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncSince, "since", "", "oldest message to read (duration like 2h or 3d, date, or RFC3339); default start of today")
	syncCmd.Flags().BoolVar(&syncStats, "stats", false, "print timing statistics")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if err := cfg.ValidateSync(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	loc := cfg.Location()
	since, err := parseSince(syncSince, time.Now(), loc)
	if err != nil {
		return err
	}

	b, err := openBackends(ctx, true)
	if err != nil {
		return err
	}
	relocator, err := newRelocator(ctx)
	if err != nil {
		return err
	}
	completer, err := newCompleter(ctx)
	if err != nil {
		return err
	}
	locker, err := newLocker()
	if err != nil {
		return err
	}

	svc := service.NewSyncService(service.SyncConfig{
		Source:    newEventSource(ctx),
		Store:     b.store,
		Ledger:    b.ledger,
		Resolver:  service.NewResolver(b.store, completer, logger),
		Relay:     service.NewRelay(relocator, b.store, logger),
		Locker:    locker,
		Container: cfg.TargetChannelID,
		Location:  loc,
		Logger:    logger,
	})

	res := svc.RunSync(ctx, since)
	out := cmd.OutOrStdout()
	renderRun(out, res, defaultTheme)
	if syncStats {
		printStats(out, collector.Snapshot())
	}

	switch res.Status {
	case service.StatusError, service.StatusNoSource:
		return errRunFailed
	}
	return nil
}

// parseSince reads the --since flag. Empty means the zero time, which the
// sync service turns into the start of the current day.
func parseSince(s string, now time.Time, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}

	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err == nil && n >= 0 {
			return now.AddDate(0, 0, -n), nil
		}
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return time.Time{}, fmt.Errorf("invalid --since %q: duration must be positive", s)
		}
		return now.Add(-d), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid --since %q: use a duration (2h, 3d), a date (2006-01-02) or RFC3339", s)
}
