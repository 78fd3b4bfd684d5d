package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"git.home.luguber.info/inful/stylesync/internal/config"
	"git.home.luguber.info/inful/stylesync/internal/eventstore"
	"git.home.luguber.info/inful/stylesync/internal/foundation/errors"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int `short:"n" help:"Number of runs to show" default:"10"`
}

func (h *HistoryCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	if cfg.History.Database == "" {
		return errors.ConfigError("history is not enabled").
			WithContext("hint", "set history.database in the configuration").Build()
	}

	store, err := eventstore.NewSQLiteStore(cfg.History.Database)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := eventstore.RecentRuns(context.Background(), store, h.Limit)
	if err != nil {
		return err
	}
	return printRuns(os.Stdout, runs)
}

func printRuns(w io.Writer, runs []*eventstore.RunSummary) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RUN\tSTATUS\tSTARTED\tFETCHED\tGENERATED\tSIZE\tDETAIL")
	for _, r := range runs {
		fetched, generated, size, detail := "-", "-", "-", ""
		if r.Sync != nil {
			fetched = fmt.Sprint(r.Sync.Fetched)
		}
		if r.Build != nil {
			generated = fmt.Sprint(r.Build.Generated)
			size = humanize.Bytes(uint64(r.Build.Bytes))
			detail = r.Build.Mode
		}
		if r.Failure != nil {
			detail = r.Failure.Stage + ": " + r.Failure.Error
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.RunID), r.Status, humanize.Time(r.StartedAt), fetched, generated, size, detail)
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
