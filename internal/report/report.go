// Package report delivers the outcome of monitoring cycles to operators.
package report

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"loginwatch/internal/diff"
	"loginwatch/internal/model"
)

// Event is the outcome of one monitoring cycle for one target.
type Event struct {
	Target         model.Target
	At             time.Time
	Classification model.Classification
	// Capture is the appended capture; nil when the fetch failed.
	Capture *model.Capture
	// Diff is set when the page changed and a predecessor exists.
	Diff *diff.Report
	// Err is the fetch error for fetch failures.
	Err error
	// Streak counts consecutive fetch failures, this one included.
	Streak int
}

// Changed reports whether the event carries new information.
func (e Event) Changed() bool {
	return e.Classification.Changed()
}

// Reporter consumes monitoring events.
type Reporter interface {
	Report(ctx context.Context, ev Event) error
	// ReportFailure surfaces an operator alert: a storage failure or a fetch
	// failure streak that reached the alert threshold.
	ReportFailure(ctx context.Context, targetID string, err error) error
}

// Multi fans events out to several reporters. Every reporter is called even
// when an earlier one fails.
type Multi []Reporter

// Report implements Reporter.
func (m Multi) Report(ctx context.Context, ev Event) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReportFailure implements Reporter.
func (m Multi) ReportFailure(ctx context.Context, targetID string, err error) error {
	var errs []error
	for _, r := range m {
		if rerr := r.ReportFailure(ctx, targetID, err); rerr != nil {
			errs = append(errs, rerr)
		}
	}
	return errors.Join(errs...)
}

// Log writes events to a structured logger.
type Log struct {
	log *slog.Logger
}

// NewLog creates a Log reporter.
func NewLog(log *slog.Logger) *Log {
	return &Log{log: log}
}

// Report implements Reporter.
func (l *Log) Report(ctx context.Context, ev Event) error {
	attrs := []any{
		"target", ev.Target.ID,
		"details", ev.Classification.Describe(),
	}
	if ev.Capture != nil {
		attrs = append(attrs,
			"capture_id", ev.Capture.ID,
			"size", ev.Capture.ByteSize,
			"digest", ev.Capture.NormalizedDigest,
		)
	}

	switch ev.Classification {
	case model.FetchFailure:
		l.log.WarnContext(ctx, "fetch failed", append(attrs, "streak", ev.Streak, "error", ev.Err)...)
	case model.ContentChanged:
		if ev.Diff != nil {
			attrs = append(attrs, "diff_lines", len(ev.Diff.Lines)+ev.Diff.Omitted)
		}
		l.log.WarnContext(ctx, "content changed", attrs...)
	case model.FirstCapture:
		l.log.InfoContext(ctx, "baseline captured", attrs...)
	default:
		l.log.InfoContext(ctx, "no change", attrs...)
	}
	return nil
}

// ReportFailure implements Reporter.
func (l *Log) ReportFailure(ctx context.Context, targetID string, err error) error {
	l.log.ErrorContext(ctx, "monitoring failure", "target", targetID, "error", err)
	return nil
}
