package recompute

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"pedigreecore/internal/pedigree"
)

// Defaults applied when Options leaves a field at its zero value.
const (
	DefaultItemTimeout   = 30 * time.Second
	DefaultProgressEvery = 100
)

// Subject is one individual to recompute together with its cached value.
type Subject struct {
	pedigree.Record
	Current *float64
}

// Computer computes an individual's coefficient.
type Computer interface {
	Individual(ctx context.Context, id string, depth int) (float64, error)
}

// Writer persists a coefficient to the primary record and its mirror. The
// bool reports whether a mirror record existed and was updated.
type Writer interface {
	WriteCoefficient(ctx context.Context, id string, value float64) (bool, error)
}

// Options controls a run.
type Options struct {
	DryRun        bool
	LogSink       io.Writer
	Depth         int
	ItemTimeout   time.Duration
	ProgressEvery int
}

// Delta is a changed coefficient.
type Delta struct {
	ID       string   `json:"id"`
	Old      *float64 `json:"old"`
	New      float64  `json:"new"`
	Written  bool     `json:"written"`
	Mirrored bool     `json:"mirrored"`
}

// Failure records an individual that could not be recomputed.
type Failure struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// Summary is the outcome of a run. Processed counts every individual taken
// from the order, Updated the changed values, Errors the failures.
type Summary struct {
	RunID      string    `json:"run_id"`
	DryRun     bool      `json:"dry_run"`
	Processed  int       `json:"processed"`
	Updated    int       `json:"updated"`
	Errors     int       `json:"errors"`
	Fallback   []string  `json:"fallback,omitempty"`
	Failures   []Failure `json:"failures,omitempty"`
	Deltas     []Delta   `json:"deltas,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// ItemError wraps a per-individual failure.
type ItemError struct {
	ID  string
	Err error
}

func (e *ItemError) Error() string { return fmt.Sprintf("recompute %s: %v", e.ID, e.Err) }

func (e *ItemError) Unwrap() error { return e.Err }

// Timeout reports whether the item exceeded its time bound.
func (e *ItemError) Timeout() bool { return errors.Is(e.Err, context.DeadlineExceeded) }

// Kind classifies the failure for reports and metrics.
func (e *ItemError) Kind() string {
	if e.Timeout() {
		return OutcomeTimeout
	}
	return OutcomeFailed
}

// Scheduler runs batch recomputes.
type Scheduler struct {
	calc    Computer
	writer  Writer
	opts    Options
	log     logrus.FieldLogger
	metrics *Metrics
	now     func() time.Time
	newID   func() string
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger; the default discards output.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics records per-item and per-run metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRunID overrides run id generation.
func WithRunID(fn func() string) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewScheduler builds a scheduler. writer may be nil for dry runs.
func NewScheduler(calc Computer, writer Writer, opts Options, options ...Option) *Scheduler {
	if opts.Depth <= 0 {
		opts.Depth = pedigree.DefaultIndividualDepth
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = DefaultItemTimeout
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = DefaultProgressEvery
	}
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	s := &Scheduler{
		calc:   calc,
		writer: writer,
		opts:   opts,
		log:    discard,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Options returns the effective options after defaults.
func (s *Scheduler) Options() Options { return s.opts }

// Run recomputes every subject in parent-before-child order. Per-item
// failures are recorded in the summary; the returned error is non-nil only
// when ctx is cancelled or the scheduler is misconfigured.
func (s *Scheduler) Run(ctx context.Context, population []Subject) (Summary, error) {
	summary := Summary{RunID: s.newID(), DryRun: s.opts.DryRun, StartedAt: s.now()}
	if !s.opts.DryRun && s.writer == nil {
		return summary, errors.New("recompute: writer required outside dry run")
	}
	log := s.log.WithFields(logrus.Fields{"run_id": summary.RunID, "dry_run": s.opts.DryRun})

	records := make([]pedigree.Record, 0, len(population))
	byID := make(map[string]Subject, len(population))
	for _, subj := range population {
		if _, dup := byID[subj.ID]; dup || subj.ID == "" {
			continue
		}
		byID[subj.ID] = subj
		records = append(records, subj.Record)
	}
	graph := BuildGraph(records)
	ordering := graph.Order()
	summary.Fallback = ordering.Fallback
	log.WithFields(logrus.Fields{"individuals": graph.Len(), "edges": graph.EdgeCount()}).Info("recompute started")
	if ordering.Flagged() {
		log.WithFields(logrus.Fields{
			"fallback": len(ordering.Fallback),
			"ids":      ordering.Fallback,
		}).Warn("parent cycle detected; remaining individuals appended in population order")
	}

	total := len(ordering.Order)
	for i, id := range ordering.Order {
		if err := ctx.Err(); err != nil {
			summary.FinishedAt = s.now()
			log.WithError(err).WithField("processed", summary.Processed).Warn("recompute interrupted")
			return summary, err
		}
		s.process(ctx, log, byID[id], &summary)
		if (i+1)%s.opts.ProgressEvery == 0 && i+1 < total {
			log.WithFields(logrus.Fields{
				"processed": summary.Processed,
				"total":     total,
				"updated":   summary.Updated,
				"errors":    summary.Errors,
			}).Info("recompute progress")
		}
	}

	summary.FinishedAt = s.now()
	s.metrics.observeRun(len(summary.Fallback), summary.FinishedAt)
	log.WithFields(logrus.Fields{
		"processed": summary.Processed,
		"updated":   summary.Updated,
		"errors":    summary.Errors,
		"fallback":  len(summary.Fallback),
		"elapsed":   summary.FinishedAt.Sub(summary.StartedAt).String(),
	}).Info("recompute finished")
	return summary, nil
}

func (s *Scheduler) process(ctx context.Context, log logrus.FieldLogger, subj Subject, summary *Summary) {
	summary.Processed++
	started := time.Now()
	value, err := s.compute(ctx, subj.ID)
	if err != nil && ctx.Err() != nil {
		// The run itself was cancelled; Run reports it.
		summary.Processed--
		return
	}
	if err != nil {
		s.fail(log, summary, &ItemError{ID: subj.ID, Err: err}, time.Since(started))
		return
	}
	if subj.Current != nil && *subj.Current == value {
		s.metrics.observeItem(OutcomeUnchanged, time.Since(started))
		return
	}

	delta := Delta{ID: subj.ID, Old: subj.Current, New: value}
	if !s.opts.DryRun {
		mirrored, err := s.writer.WriteCoefficient(ctx, subj.ID, value)
		if err != nil {
			s.fail(log, summary, &ItemError{ID: subj.ID, Err: fmt.Errorf("write: %w", err)}, time.Since(started))
			return
		}
		delta.Written = true
		delta.Mirrored = mirrored
	}
	summary.Updated++
	summary.Deltas = append(summary.Deltas, delta)
	s.metrics.observeItem(OutcomeUpdated, time.Since(started))
	s.writeDelta(delta)
	log.WithFields(logrus.Fields{
		"organism_id": subj.ID,
		"old":         formatValue(subj.Current),
		"new":         value,
	}).Debug("coefficient changed")
}

type outcome struct {
	value float64
	err   error
}

// compute bounds one calculation by the item timeout. When the deadline
// passes, compute cancels the calculation and waits for it to return before
// reporting the timeout, so no two calculations ever overlap. The engine
// checks its context between lookups and while summing paths.
func (s *Scheduler) compute(ctx context.Context, id string) (float64, error) {
	itemCtx, cancel := context.WithTimeout(ctx, s.opts.ItemTimeout)
	defer cancel()
	done := make(chan outcome, 1)
	go func() {
		v, err := s.calc.Individual(itemCtx, id, s.opts.Depth)
		done <- outcome{value: v, err: err}
	}()
	select {
	case out := <-done:
		return out.value, out.err
	case <-itemCtx.Done():
		<-done
		return 0, itemCtx.Err()
	}
}

func (s *Scheduler) fail(log logrus.FieldLogger, summary *Summary, err *ItemError, elapsed time.Duration) {
	summary.Errors++
	summary.Failures = append(summary.Failures, Failure{ID: err.ID, Kind: err.Kind(), Error: err.Err.Error()})
	s.metrics.observeItem(err.Kind(), elapsed)
	log.WithFields(logrus.Fields{"organism_id": err.ID, "kind": err.Kind()}).WithError(err.Err).Warn("recompute item failed")
}

func (s *Scheduler) writeDelta(d Delta) {
	if s.opts.LogSink == nil {
		return
	}
	mode := "written"
	if s.opts.DryRun {
		mode = "dry-run"
	}
	_, _ = fmt.Fprintf(s.opts.LogSink, "%s\t%s\t%s\t%.2f\t%s\n",
		s.now().Format(time.RFC3339), d.ID, formatValue(d.Old), d.New, mode)
}

func formatValue(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
