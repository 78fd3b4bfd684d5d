package commands

import (
	"git.home.luguber.info/inful/stylesync/internal/build"
	"git.home.luguber.info/inful/stylesync/internal/config"
	"git.home.luguber.info/inful/stylesync/internal/logfields"
	"git.home.luguber.info/inful/stylesync/internal/sizereport"
)

// SyncCmd implements the 'sync' command.
type SyncCmd struct{}

func (s *SyncCmd) Run(g *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	logger := g.logger()
	svc, deps := newService(cfg, logger, nil)
	defer deps.Close()

	ctx, cancel := signalContext()
	defer cancel()

	res, err := svc.Run(ctx, build.Request{Config: cfg, SyncOnly: true})
	if err != nil {
		return err
	}
	if res.Sync == nil {
		return nil
	}
	logger.Info("Sync completed",
		logfields.RunID(res.RunID),
		logfields.Count(len(res.Sync.Fetched)),
		logfields.Path(cfg.DownloadDir()),
		logfields.Size(sizereport.FormatSize(res.Sync.Bytes)),
		logfields.DurationMS(float64(res.Sync.Duration.Milliseconds())))
	return nil
}
