package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models tasktally.yml.
type Config struct {
	API struct {
		BaseURL   string `yaml:"base_url"`
		TokenEnv  string `yaml:"token_env"`
		PageLimit int    `yaml:"page_limit"`
	} `yaml:"api"`
	Sync struct {
		Interval string `yaml:"interval"`
	} `yaml:"sync"`
	Projects []Project `yaml:"projects"`
}

// Project binds one upstream project to a destination sheet row.
type Project struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
	Sheet string `yaml:"sheet"`
	Row   int    `yaml:"row"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with 'tt config init'", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("config.api.base_url is required")
	}
	if c.API.TokenEnv == "" {
		return fmt.Errorf("config.api.token_env is required")
	}
	if c.API.PageLimit < 0 {
		return fmt.Errorf("config.api.page_limit must not be negative")
	}
	if c.Sync.Interval != "" {
		d, err := time.ParseDuration(c.Sync.Interval)
		if err != nil {
			return fmt.Errorf("config.sync.interval: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("config.sync.interval must be positive")
		}
	}
	if len(c.Projects) == 0 {
		return fmt.Errorf("config.projects must list at least one project")
	}
	seen := map[string]bool{}
	for i, p := range c.Projects {
		if p.ID == "" {
			return fmt.Errorf("projects[%d].id is required", i)
		}
		if p.Sheet == "" {
			return fmt.Errorf("project %s: sheet is required", p.ID)
		}
		if p.Row < 1 {
			return fmt.Errorf("project %s: row must be >= 1", p.ID)
		}
		key := fmt.Sprintf("%s:%d", p.Sheet, p.Row)
		if seen[key] {
			return fmt.Errorf("project %s: destination %s row %d already used", p.ID, p.Sheet, p.Row)
		}
		seen[key] = true
	}
	return nil
}

// Token resolves the bearer credential from the configured environment
// variable. Read once at startup and treated as immutable afterwards.
func (c *Config) Token() (string, error) {
	token := os.Getenv(c.API.TokenEnv)
	if token == "" {
		return "", fmt.Errorf("environment variable %s is empty; export the API token", c.API.TokenEnv)
	}
	return token, nil
}

// PageLimit returns the configured page size or the policy default of 100.
func (c *Config) PageLimit() int {
	if c.API.PageLimit > 0 {
		return c.API.PageLimit
	}
	return 100
}

// Interval returns the sync interval or the default of one hour.
func (c *Config) Interval() time.Duration {
	if c.Sync.Interval == "" {
		return time.Hour
	}
	d, err := time.ParseDuration(c.Sync.Interval)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "tasktally.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectID string) string {
	return fmt.Sprintf(defaultTemplate, projectID)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `api:
  base_url: https://app.asana.com/api/1.0
  token_env: TASKTALLY_API_TOKEN
  page_limit: 100

sync:
  interval: 1h

projects:
  - id: %s
    label: Example project
    sheet: Dashboard
    row: 2
`
