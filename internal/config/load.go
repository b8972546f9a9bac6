package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Options for loading config.
type Options struct {
	ConfigPath   string
	SkipValidate bool

	// Overrides apply last (flags > env > file > defaults). Nil means no
	// CLI overrides; only non-nil fields are applied.
	Overrides *Overrides
}

// Overrides holds CLI flag values that take precedence over env, file, and
// defaults.
type Overrides struct {
	StorePath      *string
	RuntimeBaseURL *string
}

// Load builds config with precedence: defaults, then the TOML file, then
// environment variables, then CLI overrides.
func Load(opts Options) (*Config, error) {
	cfg := Default()

	// optional local dotenv files for developer ergonomics; explicit env
	// still wins because godotenv never overwrites existing variables.
	for _, path := range []string{".env.local", ".env"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("config: failed loading %s: %w", path, err)
		}
	}

	if opts.ConfigPath != "" {
		if _, err := toml.DecodeFile(opts.ConfigPath, &cfg); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: malformed TOML in %s: %w", opts.ConfigPath, err)
			}
		}
	}

	applyEnv(&cfg)

	if opts.Overrides != nil {
		applyOverrides(&cfg, opts.Overrides)
	}

	if !opts.SkipValidate {
		if err := Validate(&cfg); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MSGMCP_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("MSGMCP_RUNTIME_URL"); v != "" {
		cfg.Runtime.BaseURL = v
	}
	if v := os.Getenv("MSGMCP_EMBED_VERSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Runtime.EmbedVersion = n
		}
	}
}

func applyOverrides(cfg *Config, o *Overrides) {
	if o.StorePath != nil {
		cfg.Store.Path = *o.StorePath
	}
	if o.RuntimeBaseURL != nil {
		cfg.Runtime.BaseURL = *o.RuntimeBaseURL
	}
}
