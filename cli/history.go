package cli

import (
	"context"
	"log/slog"
	"os"

	urfave "github.com/urfave/cli/v3"

	"github.com/sbl8/histonet/history"
)

func newHistoryCmd() *urfave.Command {
	return &urfave.Command{
		Name:  "history",
		Usage: "Lists recorded evelyze runs, most recent first",
		Flags: []urfave.Flag{
			&urfave.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs to list",
				Value: history.DefaultLimit,
			},
			&urfave.StringFlag{
				Name:  "db",
				Usage: "History database path (optional, defaults to <dir>/" + history.DataFileName + ")",
			},
		},
		Action: runHistory,
	}
}

func runHistory(_ context.Context, cmd *urfave.Command) error {
	path, err := historyPath(cmd)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		slog.Debug("no history database", "path", path)
		return encode(cmd, []history.Run{})
	}

	db, err := history.GetDB(path)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := history.ListRuns(db, cmd.Int("limit"))
	if err != nil {
		return err
	}
	return encode(cmd, runs)
}
