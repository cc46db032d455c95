// Package config loads the pagefold configuration file, creating a
// commented default on first use.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const defaultConfigTmpl = `# Pagefold configuration file.

# Model extraction endpoint (used by -extractor model).
endpoint = ""

# Reader service base URL (used by -extractor reader).
reader_endpoint = ""

# Directory where article data is stored.
data_dir = %q

# Column width for wrapped markdown output.
wrap_width = 100

# User-Agent header sent when fetching pages. Empty uses the built-in
# browser default.
user_agent = ""
`

type Config struct {
	Endpoint       string `toml:"endpoint"`
	ReaderEndpoint string `toml:"reader_endpoint"`
	DataDir        string `toml:"data_dir"`
	WrapWidth      int    `toml:"wrap_width"`
	UserAgent      string `toml:"user_agent"`
}

// Dir returns the pagefold configuration directory (~/.pagefold).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".pagefold"), nil
}

// Path returns the path to the pagefold config file.
func Path() string {
	dir, _ := Dir()
	return filepath.Join(dir, "pagefold.toml")
}

// Load reads the config from ~/.pagefold/pagefold.toml, creating a default
// config file if one doesn't exist.
func Load() (Config, error) {
	dir, err := Dir()
	if err != nil {
		return Config{}, err
	}

	path := filepath.Join(dir, "pagefold.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Config{}, fmt.Errorf("could not create config directory: %w", err)
		}
		defaultDataDir := filepath.Join(dir, "data")
		contents := fmt.Sprintf(defaultConfigTmpl, defaultDataDir)
		if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
			return Config{}, fmt.Errorf("could not write default config: %w", err)
		}
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("could not parse %s: %w", path, err)
	}

	if len(cfg.DataDir) >= 2 && cfg.DataDir[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("could not determine home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, cfg.DataDir[2:])
	}
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(dir, "data")
	}
	if cfg.WrapWidth <= 0 {
		cfg.WrapWidth = 100
	}

	return cfg, nil
}
