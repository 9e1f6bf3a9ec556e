package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is merged from three layers, later ones winning: built-in
// defaults, ~/.config/lambdactl/default.json, then the environment. The
// API key only ever comes from the environment; it is never written to or
// read from the config file.
type Config struct {
	BaseURL          string `json:"base_url"`
	SSHKeyName       string `json:"ssh_key_name"`
	PollIntervalSec  int    `json:"poll_interval_sec"`
	ResumeOnLostRace bool   `json:"resume_on_lost_race"`

	APIKey string `json:"-"`
}

func Load() (Config, error) {
	cfg := Config{
		PollIntervalSec: 30,
	}

	home, err := os.UserHomeDir()
	if err != nil {
		cfg.applyEnv()
		return cfg, nil
	}

	path := filepath.Join(home, ".config", "lambdactl", "default.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.APIKey = os.Getenv("LAMBDA_API_KEY")
	if url := os.Getenv("LAMBDA_API_URL"); url != "" {
		c.BaseURL = url
	}
}
