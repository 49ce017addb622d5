package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"loginwatch/internal/model"
	"loginwatch/internal/normalize"
)

type targetsFile struct {
	Defaults struct {
		Interval time.Duration   `yaml:"interval"`
		Fetch    model.FetchMode `yaml:"fetch"`
	} `yaml:"defaults"`
	Targets []model.Target `yaml:"targets"`
}

// LoadTargets reads the monitored targets from a YAML file. Targets without
// an interval get the file default, then defaultInterval.
func LoadTargets(path string, defaultInterval time.Duration) ([]model.Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open targets file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseTargets(f, defaultInterval)
}

// ParseTargets decodes and validates a targets document.
func ParseTargets(r io.Reader, defaultInterval time.Duration) ([]model.Target, error) {
	var doc targetsFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode targets: %w", err)
	}
	if len(doc.Targets) == 0 {
		return nil, errors.New("no targets defined")
	}

	interval := defaultInterval
	if doc.Defaults.Interval > 0 {
		interval = doc.Defaults.Interval
	}
	mode := model.FetchHTTP
	if doc.Defaults.Fetch != "" {
		mode = doc.Defaults.Fetch
	}

	seen := make(map[string]bool, len(doc.Targets))
	targets := make([]model.Target, 0, len(doc.Targets))
	for i, t := range doc.Targets {
		if t.URL == "" {
			return nil, fmt.Errorf("target %d: url is required", i+1)
		}
		if t.ID == "" {
			t.ID = t.URL
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("target %q: duplicate id", t.ID)
		}
		seen[t.ID] = true

		if t.Interval <= 0 {
			t.Interval = interval
		}
		if t.Fetch == "" {
			t.Fetch = mode
		}
		if t.Fetch != model.FetchHTTP && t.Fetch != model.FetchBrowser {
			return nil, fmt.Errorf("target %q: unknown fetch mode %q", t.ID, t.Fetch)
		}
		if _, err := normalize.Resolve(normalize.DefaultRules(), t.Rules); err != nil {
			return nil, fmt.Errorf("target %q: %w", t.ID, err)
		}
		targets = append(targets, t)
	}
	return targets, nil
}
