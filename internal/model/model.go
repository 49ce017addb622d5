// Package model defines the domain types used across the application.
package model

import (
	"fmt"
	"time"
)

// Classification is the outcome of comparing a capture with its predecessor.
type Classification string

// Supported classifications.
const (
	FirstCapture   Classification = "first-capture"
	Unchanged      Classification = "unchanged"
	ContentChanged Classification = "content-changed"
	FetchFailure   Classification = "fetch-failure"
)

// Describe returns the human-readable label shown in reports.
func (c Classification) Describe() string {
	switch c {
	case FirstCapture:
		return "first capture (baseline)"
	case Unchanged:
		return "unchanged (dynamic-only or none)"
	case ContentChanged:
		return "content changed"
	case FetchFailure:
		return "fetch failed"
	default:
		return string(c)
	}
}

// Changed reports whether the classification counts as new information.
func (c Classification) Changed() bool {
	return c != Unchanged
}

// Capture is one immutable observation of a target's rendered HTML.
type Capture struct {
	ID               int64
	TargetID         string
	CapturedAt       time.Time
	RawHTML          string
	RawDigest        string
	NormalizedDigest string
	RulesetDigest    string
	ByteSize         int
	ChangeDetected   bool
	ChangeDetails    Classification
}

// Label names the capture in diff headers and operator messages.
func (c Capture) Label() string {
	return fmt.Sprintf("capture %d (%s)", c.ID, c.CapturedAt.Local().Format(time.DateTime))
}

// MaskingRule describes one category of volatile content and the placeholder
// that replaces it before comparison.
type MaskingRule struct {
	Name        string `yaml:"name"`
	Category    string `yaml:"category"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
	// Within restricts the rule to spans matched by this pattern.
	Within  string `yaml:"within,omitempty"`
	Enabled bool   `yaml:"enabled"`
}

// FetchMode selects how a target's HTML is retrieved.
type FetchMode string

// Supported fetch modes.
const (
	FetchHTTP    FetchMode = "http"
	FetchBrowser FetchMode = "browser"
)

// RuleOverrides adjusts the default masking table for a single target.
type RuleOverrides struct {
	Enable  []string      `yaml:"enable"`
	Disable []string      `yaml:"disable"`
	Extra   []MaskingRule `yaml:"extra"`
}

// Target is a monitored endpoint.
type Target struct {
	ID       string        `yaml:"id"`
	URL      string        `yaml:"url"`
	Name     string        `yaml:"name"`
	Group    string        `yaml:"group"`
	Interval time.Duration `yaml:"interval"`
	Fetch    FetchMode     `yaml:"fetch"`
	Rules    RuleOverrides `yaml:"rules"`
}

// Label returns a display name for the target.
func (t Target) Label() string {
	switch {
	case t.Group != "" && t.Name != "":
		return t.Group + " / " + t.Name
	case t.Name != "":
		return t.Name
	default:
		return t.ID
	}
}
