// File: cmd/history.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/autonote/internal/llmutil"
	"github.com/xkilldash9x/autonote/internal/observability"
	"github.com/xkilldash9x/autonote/internal/service"
	"github.com/xkilldash9x/autonote/internal/store"
)

// errNoDatabase is returned by commands that need the run history store.
var errNoDatabase = errors.New("run history requires database.url (or DATABASE_URL) to be set")

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent task runs from the history store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), a, limit, asJSON, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", store.DefaultHistoryLimit, "number of runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func runHistory(ctx context.Context, a *app, limit int, asJSON bool, out io.Writer) error {
	if a.cfg.Database.URL == "" {
		return errNoDatabase
	}
	pool, runStore, err := service.InitializeStore(ctx, a.cfg.Database, observability.GetLogger())
	if err != nil {
		return err
	}
	defer pool.Close()

	runs, err := runStore.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(out, runs)
	}

	loc := a.cfg.App.Location()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tTASK\tSTATUS\tDURATION\tTITLE\tURL / ERROR")
	for _, r := range runs {
		detail := r.URL
		if r.Error != "" {
			detail = llmutil.Truncate(r.Error, 60)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			llmutil.FormatDate(r.StartedAt.In(loc), "YYYY-MM-DD HH:mm"),
			r.Task, r.Status,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Second),
			llmutil.Truncate(r.Title, 30),
			detail)
	}
	return tw.Flush()
}
