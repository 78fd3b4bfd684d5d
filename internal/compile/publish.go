package compile

import (
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/stylesync/internal/foundation/errors"
	"git.home.luguber.info/inful/stylesync/internal/logfields"
	"git.home.luguber.info/inful/stylesync/internal/workspace"
)

// publish moves the staging tree into the output directory: top-level files
// first, then top-level directories, each replacing what was there.
func (b *build) publish() error {
	out := b.opts.OutputRoot
	if b.opts.WipeOutput {
		if _, err := os.Stat(out); err == nil {
			b.logger.Info("Wiping output directory before publish", logfields.Path(out))
			if err := workspace.EmptyDir(out); err != nil {
				return errors.FileSystemError("cannot wipe output directory").
					WithCause(err).WithContext("output_dir", out).Build()
			}
		}
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return errors.FileSystemError("cannot create output directory").
			WithCause(err).WithContext("output_dir", out).Build()
	}

	entries, err := os.ReadDir(b.stage)
	if err != nil {
		return errors.FileSystemError("cannot read staging directory").WithCause(err).Build()
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
			continue
		}
		if err := workspace.Move(filepath.Join(b.stage, e.Name()), filepath.Join(out, e.Name())); err != nil {
			return errors.FileSystemError("cannot publish file").
				WithCause(err).WithContext("file", e.Name()).Build()
		}
	}
	for _, name := range dirs {
		if err := workspace.ReplaceDir(filepath.Join(b.stage, name), filepath.Join(out, name)); err != nil {
			return errors.FileSystemError("cannot publish directory").
				WithCause(err).WithContext("dir", name).Build()
		}
	}
	b.logger.Debug("Published staging directory", logfields.Path(out), logfields.Count(len(entries)))
	return nil
}
