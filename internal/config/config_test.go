package config_test

import (
	"strings"
	"testing"
	"time"

	"tasktally/internal/config"
)

const validYAML = `api:
  base_url: https://app.asana.com/api/1.0
  token_env: TASKTALLY_API_TOKEN
  page_limit: 50

sync:
  interval: 30m

projects:
  - id: "1001"
    label: Alpha
    sheet: Dashboard
    row: 2
  - id: "1002"
    sheet: Dashboard
    row: 3
`

func TestFromYAMLValid(t *testing.T) {
	cfg, err := config.FromYAML([]byte(validYAML))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Projects) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(cfg.Projects))
	}
	if cfg.PageLimit() != 50 {
		t.Fatalf("page limit = %d", cfg.PageLimit())
	}
	if cfg.Interval() != 30*time.Minute {
		t.Fatalf("interval = %s", cfg.Interval())
	}
}

func TestDefaults(t *testing.T) {
	yaml := `api:
  base_url: https://example.test
  token_env: TOKEN
projects:
  - id: "1"
    sheet: S
    row: 1
`
	cfg, err := config.FromYAML([]byte(yaml))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PageLimit() != 100 {
		t.Fatalf("default page limit = %d", cfg.PageLimit())
	}
	if cfg.Interval() != time.Hour {
		t.Fatalf("default interval = %s", cfg.Interval())
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(s string) string
		wantMsg string
	}{
		{"missing base url", func(s string) string { return strings.Replace(s, "base_url: https://app.asana.com/api/1.0", "base_url: \"\"", 1) }, "base_url"},
		{"missing token env", func(s string) string { return strings.Replace(s, "token_env: TASKTALLY_API_TOKEN", "token_env: \"\"", 1) }, "token_env"},
		{"bad interval", func(s string) string { return strings.Replace(s, "interval: 30m", "interval: soon", 1) }, "interval"},
		{"duplicate destination", func(s string) string { return strings.Replace(s, "row: 3", "row: 2", 1) }, "already used"},
		{"bad row", func(s string) string { return strings.Replace(s, "row: 3", "row: 0", 1) }, "row"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.FromYAML([]byte(tc.mutate(validYAML)))
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("error %q does not mention %q", err, tc.wantMsg)
			}
		})
	}
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	cfg, err := config.FromYAML([]byte(config.GenerateDefault("1234567890")))
	if err != nil {
		t.Fatalf("default template invalid: %v", err)
	}
	if cfg.Projects[0].ID != "1234567890" {
		t.Fatalf("project id not seeded: %+v", cfg.Projects)
	}
}
