package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// Parse decodes YAML into a Config over the defaults. Unknown fields are
// rejected so typos don't silently disable features.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		// An empty file is just the defaults.
		return nil, fmt.Errorf("config decode: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ParseFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

func validate(cfg *Config) error {
	if _, err := ParseDurationField("scheduler.late_threshold", cfg.Scheduler.LateThreshold); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.idle_sleep", cfg.Scheduler.IdleSleep); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.status_interval", cfg.Scheduler.StatusInterval); err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(cfg.History.Driver)) {
	case "", "none", "file", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("history.driver: unknown driver %q", cfg.History.Driver)
	}
	if _, err := ParseDurationField("history.busy_timeout", cfg.History.BusyTimeout); err != nil {
		return err
	}

	seen := map[string]bool{}
	for i, j := range cfg.Jobs {
		path := fmt.Sprintf("jobs[%d]", i)
		name := strings.TrimSpace(j.Name)
		if name == "" {
			return fmt.Errorf("%s: name required", path)
		}
		if seen[name] {
			return fmt.Errorf("%s: duplicate job name %q", path, name)
		}
		seen[name] = true

		triggers := 0
		for _, t := range []string{j.Every, j.Cron, j.At, j.After} {
			if strings.TrimSpace(t) != "" {
				triggers++
			}
		}
		if triggers != 1 {
			return fmt.Errorf("%s (%s): exactly one of every/cron/at/after required", path, name)
		}
		if len(j.Command) == 0 || strings.TrimSpace(j.Command[0]) == "" {
			return fmt.Errorf("%s (%s): command required", path, name)
		}

		if _, err := ParseDurationField(path+".every", j.Every); err != nil {
			return err
		}
		if _, err := ParseDurationField(path+".after", j.After); err != nil {
			return err
		}
		if _, err := ParseDurationField(path+".timeout", j.Timeout); err != nil {
			return err
		}
		if _, err := ParseTimeField(path+".at", j.At); err != nil {
			return err
		}
	}
	return nil
}
