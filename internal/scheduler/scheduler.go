// Package scheduler runs monitoring cycles for every target on its interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"loginwatch/internal/detector"
	"loginwatch/internal/diff"
	"loginwatch/internal/fetcher"
	"loginwatch/internal/metrics"
	"loginwatch/internal/model"
	"loginwatch/internal/normalize"
	"loginwatch/internal/report"
	"loginwatch/internal/storage"
)

// ErrUnknownTarget is returned for target IDs that were never added.
var ErrUnknownTarget = errors.New("unknown target")

type monitor struct {
	// mu serializes cycles of one target so each capture is classified
	// against the one appended before it.
	mu       sync.Mutex
	target   model.Target
	detector *detector.Detector
}

// Scheduler periodically captures every target and reports the outcome.
type Scheduler struct {
	store    storage.Storage
	fetchers fetcher.ByMode
	reporter report.Reporter
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time

	tick      time.Duration
	timeout   time.Duration
	limit     int
	threshold int

	mu       sync.Mutex
	order    []string
	monitors map[string]*monitor
	due      map[string]time.Time
	streaks  map[string]int
}

// New creates a Scheduler with a 30 second tick, a 60 second fetch timeout,
// four parallel cycles and an alert after three consecutive fetch failures.
func New(store storage.Storage, fetchers fetcher.ByMode, reporter report.Reporter, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:     store,
		fetchers:  fetchers,
		reporter:  reporter,
		log:       log,
		now:       time.Now,
		tick:      30 * time.Second,
		timeout:   60 * time.Second,
		limit:     4,
		threshold: 3,
		monitors:  make(map[string]*monitor),
		due:       make(map[string]time.Time),
		streaks:   make(map[string]int),
	}
}

// SetTickInterval overrides how often due targets are looked for.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// SetFetchTimeout bounds every single fetch.
func (s *Scheduler) SetFetchTimeout(d time.Duration) {
	s.timeout = d
}

// SetConcurrency limits how many targets are cycled at once.
func (s *Scheduler) SetConcurrency(n int) {
	s.limit = max(n, 1)
}

// SetFailureThreshold sets how many consecutive fetch failures raise an alert.
func (s *Scheduler) SetFailureThreshold(n int) {
	s.threshold = max(n, 1)
}

// SetMetrics enables metric collection.
func (s *Scheduler) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// AddTarget compiles the target's masking rules and schedules it to run on
// the next tick.
func (s *Scheduler) AddTarget(t model.Target) error {
	rules, err := normalize.Resolve(normalize.DefaultRules(), t.Rules)
	if err != nil {
		return fmt.Errorf("target %q: %w", t.ID, err)
	}
	rs := normalize.Compile(rules, s.log.With("target", t.ID))
	s.metrics.SetSkippedRules(t.ID, len(rs.Skipped()))

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.monitors[t.ID]; ok {
		return fmt.Errorf("target %q: already added", t.ID)
	}
	s.monitors[t.ID] = &monitor{target: t, detector: detector.New(s.store, rs, s.log)}
	s.order = append(s.order, t.ID)
	s.due[t.ID] = time.Time{}
	return nil
}

// Targets returns the scheduled targets in the order they were added.
func (s *Scheduler) Targets() []model.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	targets := make([]model.Target, 0, len(s.order))
	for _, id := range s.order {
		targets = append(targets, s.monitors[id].target)
	}
	return targets
}

// Ruleset returns the compiled masking rules of a target.
func (s *Scheduler) Ruleset(targetID string) (*normalize.Ruleset, bool) {
	m, ok := s.lookup(targetID)
	if !ok {
		return nil, false
	}
	return m.detector.Rules(), true
}

func (s *Scheduler) lookup(targetID string) (*monitor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.monitors[targetID]
	return m, ok
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.checkDue(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkDue(ctx)
		}
	}
}

// RunOnce cycles every target immediately, regardless of its interval.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.mu.Lock()
	list := make([]*monitor, 0, len(s.order))
	for _, id := range s.order {
		list = append(list, s.monitors[id])
	}
	s.mu.Unlock()

	s.runAll(ctx, list)
}

// CheckTarget runs one cycle for a target right away and returns its event.
func (s *Scheduler) CheckTarget(ctx context.Context, targetID string) (report.Event, error) {
	m, ok := s.lookup(targetID)
	if !ok {
		return report.Event{}, fmt.Errorf("%w: %s", ErrUnknownTarget, targetID)
	}
	return s.cycle(ctx, m)
}

func (s *Scheduler) checkDue(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var list []*monitor
	for _, id := range s.order {
		if now.Before(s.due[id]) {
			continue
		}
		m := s.monitors[id]
		s.due[id] = now.Add(m.target.Interval)
		list = append(list, m)
	}
	s.mu.Unlock()

	s.runAll(ctx, list)
}

func (s *Scheduler) runAll(ctx context.Context, list []*monitor) {
	var g errgroup.Group
	g.SetLimit(s.limit)
	for _, m := range list {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// Failures are reported per target and never stop other cycles.
			_, _ = s.cycle(ctx, m)
			return nil
		})
	}
	_ = g.Wait()
}

// cycle runs fetch, classify, append, diff and report for one target.
func (s *Scheduler) cycle(ctx context.Context, m *monitor) (report.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.target
	s.log.Debug("checking target", "target", t.ID, "url", t.URL)

	html, err := s.fetch(ctx, t)
	if err != nil {
		if ctx.Err() != nil {
			return report.Event{}, ctx.Err()
		}
		return s.fetchFailed(ctx, t, err), nil
	}
	s.resetStreak(t.ID)

	res, err := m.detector.Classify(ctx, t.ID, html)
	if err != nil {
		return report.Event{}, s.storageFailed(ctx, t.ID, err)
	}
	c := res.Capture()
	if err := s.store.Append(ctx, c); err != nil {
		return report.Event{}, s.storageFailed(ctx, t.ID, fmt.Errorf("append capture: %w", err))
	}

	ev := report.Event{
		Target:         t,
		At:             c.CapturedAt,
		Classification: res.Classification,
		Capture:        c,
	}
	if res.Changed && res.Previous != nil {
		d := diff.Render(res.Previous.RawHTML, c.RawHTML, res.Previous.Label(), c.Label())
		ev.Diff = &d
	}

	s.metrics.ObserveCycle(t.ID, res.Classification)
	s.metrics.SetLastCapture(t.ID, c.CapturedAt)
	s.deliver(ctx, ev)
	return ev, nil
}

func (s *Scheduler) fetch(ctx context.Context, t model.Target) (string, error) {
	f, err := s.fetchers.For(t)
	if err != nil {
		return "", err
	}

	fctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	html, err := f.Fetch(fctx, t.URL)
	s.metrics.ObserveFetch(t.Fetch, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", t.URL, err)
	}
	return html, nil
}

// fetchFailed reports a fetch failure without writing a capture. An alert is
// raised each time the streak reaches a multiple of the threshold.
func (s *Scheduler) fetchFailed(ctx context.Context, t model.Target, err error) report.Event {
	s.mu.Lock()
	s.streaks[t.ID]++
	streak := s.streaks[t.ID]
	s.mu.Unlock()

	s.metrics.ObserveCycle(t.ID, model.FetchFailure)
	s.metrics.SetFailureStreak(t.ID, streak)

	ev := report.Event{
		Target:         t,
		At:             s.now(),
		Classification: model.FetchFailure,
		Err:            err,
		Streak:         streak,
	}
	s.deliver(ctx, ev)

	if streak%s.threshold == 0 {
		alert := fmt.Errorf("%d consecutive fetch failures: %w", streak, err)
		if rerr := s.reporter.ReportFailure(ctx, t.ID, alert); rerr != nil {
			s.log.Error("report failure", "target", t.ID, "error", rerr)
		}
	}
	return ev
}

func (s *Scheduler) resetStreak(targetID string) {
	s.mu.Lock()
	had := s.streaks[targetID] > 0
	delete(s.streaks, targetID)
	s.mu.Unlock()
	if had {
		s.metrics.SetFailureStreak(targetID, 0)
	}
}

func (s *Scheduler) storageFailed(ctx context.Context, targetID string, err error) error {
	s.log.Error("storage failure", "target", targetID, "error", err)
	s.metrics.StorageFailure(targetID)
	if rerr := s.reporter.ReportFailure(ctx, targetID, err); rerr != nil {
		s.log.Error("report failure", "target", targetID, "error", rerr)
	}
	return err
}

func (s *Scheduler) deliver(ctx context.Context, ev report.Event) {
	if err := s.reporter.Report(ctx, ev); err != nil {
		s.log.Error("report event", "target", ev.Target.ID, "error", err)
	}
}
