package compile

import (
	"log/slog"
	"path/filepath"

	"git.home.luguber.info/inful/stylesync/internal/config"
	"git.home.luguber.info/inful/stylesync/internal/hashing"
	"git.home.luguber.info/inful/stylesync/internal/logfields"
)

// ApplyTransforms runs every rule whose path pattern matches relPath, in
// configuration order, applying each rule's pairs in order.
func ApplyTransforms(relPath, css string, rules config.ReplaceRules, logger *slog.Logger) string {
	if logger == nil {
		logger = slog.Default()
	}
	relPath = filepath.ToSlash(relPath)
	for _, rule := range rules {
		if !rule.PathPattern.MatchString(relPath) {
			continue
		}
		logger.Debug("Replace rule matches", logfields.File(relPath), logfields.Pattern(rule.Raw))
		for _, pair := range rule.Pairs {
			before := hashing.Cheap(css)
			css = pair.Search.ReplaceAllString(css, pair.Replacement)
			logger.Debug("Replace applied",
				logfields.Pattern(pair.Raw),
				slog.String("replacement", pair.Replacement),
				slog.Bool("modified", hashing.Cheap(css) != before))
		}
	}
	return css
}
