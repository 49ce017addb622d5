// Package detector classifies a new capture against the latest stored capture
// of the same target.
package detector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"loginwatch/internal/model"
	"loginwatch/internal/normalize"
	"loginwatch/internal/storage"
)

// Digest returns the hex-encoded SHA-256 of s.
func Digest(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// LatestReader is the part of the snapshot repository the detector needs.
type LatestReader interface {
	Latest(ctx context.Context, targetID string) (*model.Capture, error)
}

// Result is the outcome of classifying one capture.
type Result struct {
	TargetID         string
	RawHTML          string
	RawDigest        string
	NormalizedDigest string
	RulesetDigest    string
	Classification   model.Classification
	Changed          bool
	// Previous is the capture the new one was compared against, nil for a
	// first capture.
	Previous *model.Capture
}

// Capture builds the record to append to the repository.
func (r Result) Capture() *model.Capture {
	return &model.Capture{
		TargetID:         r.TargetID,
		RawHTML:          r.RawHTML,
		RawDigest:        r.RawDigest,
		NormalizedDigest: r.NormalizedDigest,
		RulesetDigest:    r.RulesetDigest,
		ByteSize:         len(r.RawHTML),
		ChangeDetected:   r.Changed,
		ChangeDetails:    r.Classification,
	}
}

// Detector classifies captures using a masking ruleset.
type Detector struct {
	repo  LatestReader
	rules *normalize.Ruleset
	log   *slog.Logger
}

// New creates a Detector reading prior captures from repo.
func New(repo LatestReader, rules *normalize.Ruleset, log *slog.Logger) *Detector {
	return &Detector{repo: repo, rules: rules, log: log}
}

// Rules returns the ruleset the detector normalizes with.
func (d *Detector) Rules() *normalize.Ruleset {
	return d.rules
}

// Classify digests rawHTML and compares its normalized digest with the one of
// the latest capture for targetID. The raw digest never decides the verdict.
// Errors come only from the repository.
func (d *Detector) Classify(ctx context.Context, targetID, rawHTML string) (Result, error) {
	res := Result{
		TargetID:         targetID,
		RawHTML:          rawHTML,
		RawDigest:        Digest(rawHTML),
		NormalizedDigest: Digest(d.rules.Normalize(rawHTML)),
		RulesetDigest:    d.rules.Digest(),
	}

	prev, err := d.repo.Latest(ctx, targetID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		res.Classification = model.FirstCapture
		res.Changed = true
		return res, nil
	case err != nil:
		return Result{}, fmt.Errorf("load latest capture: %w", err)
	}
	res.Previous = prev

	prevDigest := prev.NormalizedDigest
	if prev.RulesetDigest != res.RulesetDigest {
		prevDigest = Digest(d.rules.Normalize(prev.RawHTML))
		d.log.Debug("renormalized previous capture",
			"target", targetID,
			"capture_id", prev.ID,
			"stored_ruleset", prev.RulesetDigest,
		)
	}

	if prevDigest == res.NormalizedDigest {
		res.Classification = model.Unchanged
		res.Changed = false
	} else {
		res.Classification = model.ContentChanged
		res.Changed = true
	}
	return res, nil
}

// Changed reports whether two documents differ once masked with rules.
func Changed(a, b string, rules *normalize.Ruleset) bool {
	return Digest(rules.Normalize(a)) != Digest(rules.Normalize(b))
}

// RawChanged reports whether two documents differ byte for byte. It is the
// audit view and is not used for classification.
func RawChanged(a, b string) bool {
	return Digest(a) != Digest(b)
}
