package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/stylesync/internal/foundation/errors"
)

// SupportedVersions is the constraint the `version` field must satisfy.
const SupportedVersions = ">= 1.0, < 2.0"

// ResolvePath maps a file or directory argument to the configuration file.
// A directory selects DefaultFileName inside it.
func ResolvePath(path string) (string, error) {
	if path == "" {
		path = "."
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("configuration file not found: %s", abs)
		}
		return "", err
	}
	if info.IsDir() {
		abs = filepath.Join(abs, DefaultFileName)
		if _, err := os.Stat(abs); err != nil {
			return "", fmt.Errorf("configuration file not found: %s", abs)
		}
	}
	return abs, nil
}

// Load reads, expands, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	file, err := ResolvePath(path)
	if err != nil {
		return nil, errors.ConfigError("cannot locate configuration").
			WithCause(err).WithContext("path", path).Build()
	}
	loadEnvFiles(filepath.Dir(file))

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.ConfigError("failed to read config file").
			WithCause(err).WithContext("path", file).Build()
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("invalid configuration %s", file)).
			WithCause(err).WithContext("path", file).Build()
	}
	cfg.ConfigFile = file

	if err := NewDefaultApplier().ApplyDefaults(cfg); err != nil {
		return nil, errors.ConfigError("failed to apply defaults").WithCause(err).Build()
	}
	cfg.resolvePaths(filepath.Dir(file))

	if err := ValidateConfig(cfg); err != nil {
		return nil, errors.ValidationError(fmt.Sprintf("invalid configuration %s: %v", file, err)).
			WithCause(err).WithContext("path", file).Build()
	}
	return cfg, nil
}

// Parse decodes YAML after environment expansion and checks the version.
// Defaults, path resolution and validation are left to Load.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := checkVersion(cfg.Version); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func checkVersion(raw string) error {
	if raw == "" {
		return nil
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return fmt.Errorf("invalid configuration version %q: %w", raw, err)
	}
	c, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return err
	}
	if !c.Check(v) {
		return fmt.Errorf("unsupported configuration version: %s (expected %s)", raw, SupportedVersions)
	}
	return nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnv substitutes $VAR and ${VAR} for variables that are set. Unset
// names and numeric references such as $1 are left alone so regex
// replacements survive.
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		name := m[1]
		if name == "" {
			name = m[2]
		}
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return ref
	})
}

// loadEnvFiles loads .env then .env.local from dir. Existing process
// variables win.
func loadEnvFiles(dir string) {
	for _, name := range []string{".env", ".env.local"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_ = godotenv.Load(p)
	}
}

func (c *Config) resolvePaths(base string) {
	abs := func(p string) string {
		if p == "" {
			return ""
		}
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Join(base, p)
	}
	c.BuildDir = abs(c.BuildDir)
	c.OutputDir = abs(c.OutputDir)
	c.LockFile = abs(c.LockFile)
	c.CacheDir = abs(c.CacheDir)
	if c.Download != nil {
		c.Download.Dir = abs(c.Download.Dir)
	}
	if c.History.Database != "" && c.History.Database != ":memory:" {
		c.History.Database = abs(c.History.Database)
	}
}
