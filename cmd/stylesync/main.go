package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/stylesync/cmd/stylesync/commands"
	"git.home.luguber.info/inful/stylesync/internal/foundation/errors"
	"git.home.luguber.info/inful/stylesync/internal/version"
)

func main() {
	var cli commands.CLI
	global := &commands.Global{}

	ctx := kong.Parse(&cli,
		kong.Name("stylesync"),
		kong.Description("Download remote style sources and compile Sass/SCSS stylesheets."),
		kong.UsageOnError(),
		kong.Bind(global),
		kong.Vars{"version": version.Version},
	)

	err := ctx.Run()
	code := errors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	_ = global.Close()
	os.Exit(code)
}
