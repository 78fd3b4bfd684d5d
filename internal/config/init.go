package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Init writes an example configuration to configPath. A directory path
// receives DefaultFileName.
func Init(configPath string, force bool) error {
	if info, err := os.Stat(configPath); err == nil && info.IsDir() {
		configPath = filepath.Join(configPath, DefaultFileName)
	}
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	exampleConfig, err := exampleConfig()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(exampleConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func exampleConfig() (*Config, error) {
	bootstrap, err := NewExtractRule(`bootstrap-[^/]+/scss/(.+)$`, "bootstrap/", false)
	if err != nil {
		return nil, err
	}
	docs, err := NewExtractRule(`bootstrap-[^/]+/scss/tests/`, "", true)
	if err != nil {
		return nil, err
	}
	fontPath, err := NewReplacePair(`url\((['"]?)\.\./fonts/`, `url(\1/static/fonts/`)
	if err != nil {
		return nil, err
	}
	fonts, err := NewReplaceRule(`\.css$`, fontPath)
	if err != nil {
		return nil, err
	}
	dev := true
	return &Config{
		Version: "1.0",
		Download: &DownloadConfig{
			Dir:         "styles/libs/",
			Concurrency: DefaultConcurrency,
			Sources: []Source{
				{URL: "https://github.com/twbs/bootstrap/archive/v4.6.2.zip", Extract: ExtractRules{docs, bootstrap}},
				{URL: "https://cdnjs.cloudflare.com/ajax/libs/font-awesome/4.7.0/css/font-awesome.css", To: "font-awesome/"},
			},
		},
		BuildDir:     "styles/",
		OutputDir:    "static/css/",
		LockFile:     DefaultLockFile,
		IncludeFiles: DefaultIncludeFiles,
		Replace:      ReplaceRules{fonts},
		FileHashes:   true,
		DevMode:      &dev,
	}, nil
}
