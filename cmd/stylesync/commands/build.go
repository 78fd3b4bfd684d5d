package commands

import (
	"log/slog"

	"git.home.luguber.info/inful/stylesync/internal/build"
	"git.home.luguber.info/inful/stylesync/internal/config"
	"git.home.luguber.info/inful/stylesync/internal/logfields"
	"git.home.luguber.info/inful/stylesync/internal/sizereport"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Output string `short:"o" help:"Output directory (overrides output_dir)"`
	ModeFlags `embed:""`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	logger := g.logger()
	svc, deps := newService(cfg, logger, nil)
	defer deps.Close()

	ctx, cancel := signalContext()
	defer cancel()

	res, err := svc.Run(ctx, build.Request{
		Config:    cfg,
		OutputDir: b.Output,
		DevMode:   b.Override(),
	})
	if err != nil {
		return err
	}
	logBuildResult(logger, res)
	return nil
}

func logBuildResult(logger *slog.Logger, res *build.Result) {
	attrs := []any{
		logfields.RunID(res.RunID),
		logfields.Output(res.OutputPath),
		logfields.Mode(res.Mode),
		logfields.DurationMS(float64(res.Duration.Milliseconds())),
	}
	if res.Sync != nil {
		attrs = append(attrs, slog.Int("fetched", len(res.Sync.Fetched)))
	}
	if res.Build != nil {
		attrs = append(attrs,
			slog.Int("generated", res.Build.Generated),
			slog.String("total_size", sizereport.FormatSize(res.Build.Bytes)))
	}
	logger.Info("Build completed", attrs...)
}

func (g *Global) logger() *slog.Logger {
	if g == nil || g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}
