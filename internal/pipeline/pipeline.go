package pipeline

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/wastewater-ingest/internal/domain"
	"github.com/couchcryptid/wastewater-ingest/internal/observability"
	"github.com/couchcryptid/wastewater-ingest/internal/store"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Fetcher opens the source CSV for one run.
type Fetcher interface {
	Fetch(ctx context.Context) (io.ReadCloser, error)
}

// SampleStore persists batches and answers trend queries.
type SampleStore interface {
	InsertBatch(ctx context.Context, results iter.Seq[domain.SampleResult]) (store.BatchReport, error)
	Pairs(ctx context.Context, pathogens ...string) ([]domain.Pair, error)
	Trends(ctx context.Context, pairs []domain.Pair) ([]domain.Trend, error)
}

// Notifier delivers trend reports after a run that stored new samples.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, note domain.TrendNotification) error
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the real clock, for tests.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithInterval sets the time between polls.
func WithInterval(d time.Duration) Option {
	return func(s *Service) { s.interval = d }
}

// WithNotifiers adds trend notification sinks.
func WithNotifiers(n ...Notifier) Option {
	return func(s *Service) { s.notifiers = append(s.notifiers, n...) }
}

// WithTrendPathogens restricts notifications to the given pathogen targets.
func WithTrendPathogens(pathogens ...string) Option {
	return func(s *Service) { s.pathogens = pathogens }
}

// WithHaltOnParseError makes the first row parse error abort the run.
// By default parse errors are tallied and skipped.
func WithHaltOnParseError() Option {
	return func(s *Service) { s.haltOnParseError = true }
}

const defaultInterval = 6 * time.Hour

// Service runs fetch-parse-insert cycles against the DOH CSV.
type Service struct {
	fetcher   Fetcher
	store     SampleStore
	converter *Converter
	notifiers []Notifier
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock

	interval         time.Duration
	pathogens        []string
	haltOnParseError bool

	ready atomic.Bool
}

// New creates a Service with the given stages and observability.
func New(f Fetcher, st SampleStore, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Service {
	s := &Service{
		fetcher:  f,
		store:    st,
		logger:   logger,
		metrics:  metrics,
		clock:    clockwork.NewRealClock(),
		interval: defaultInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.converter = NewConverter(domain.NewNormalizer(s.clock), s.haltOnParseError)
	return s
}

// CheckReadiness returns nil once a run has completed successfully.
func (s *Service) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("no ingestion run has completed yet")
	}
	return nil
}

// Run executes RunOnce immediately and then on every interval tick until the
// context is cancelled. A failed run is logged and counted; the loop keeps
// going and the next attempt happens on the next tick.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("pipeline started", "interval", s.interval)
	s.metrics.PipelineRunning.Set(1)
	defer s.metrics.PipelineRunning.Set(0)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		_, _ = s.RunOnce(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}
	}
}

// RunOnce fetches the CSV and inserts every row in one batch. On error
// nothing from this run is stored.
func (s *Service) RunOnce(ctx context.Context) (store.BatchReport, error) {
	runID := uuid.NewString()
	logger := s.logger.With("run_id", runID)
	start := s.clock.Now()

	report, err := s.ingest(ctx, logger)
	s.metrics.RunDuration.Observe(s.clock.Since(start).Seconds())
	if err != nil {
		s.metrics.RunsTotal.WithLabelValues(observability.OutcomeError).Inc()
		if ctx.Err() != nil {
			logger.Info("run interrupted", "error", err)
		} else {
			logger.Error("run failed", "error", err)
		}
		return store.BatchReport{}, err
	}

	s.metrics.RunsTotal.WithLabelValues(observability.OutcomeSuccess).Inc()
	s.metrics.LastSuccess.Set(float64(s.clock.Now().Unix()))
	s.metrics.RowsInserted.Add(float64(report.Inserted))
	s.metrics.RowsDuplicate.Add(float64(report.SkippedDuplicate))
	s.metrics.RowsFailed.Add(float64(report.FailedConversion))
	s.metrics.RowsTotal.Add(float64(report.Total))
	s.ready.Store(true)

	logger.Info("run complete", "report", report, "duration", s.clock.Since(start))

	if report.Inserted > 0 {
		s.notify(ctx, logger, runID, report)
	}
	return report, nil
}

func (s *Service) ingest(ctx context.Context, logger *slog.Logger) (store.BatchReport, error) {
	body, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return store.BatchReport{}, err
	}
	defer func() {
		if err := body.Close(); err != nil {
			logger.Warn("close source body", "error", err)
		}
	}()

	return s.store.InsertBatch(ctx, s.converter.Samples(body))
}

// notify computes trends for every stored pair and hands them to each
// notifier. Failures are logged and counted, never returned.
func (s *Service) notify(ctx context.Context, logger *slog.Logger, runID string, report store.BatchReport) {
	if len(s.notifiers) == 0 {
		return
	}

	pairs, err := s.store.Pairs(ctx, s.pathogens...)
	if err != nil {
		logger.Error("list trend pairs failed", "error", err)
		return
	}
	trends, err := s.store.Trends(ctx, pairs)
	if err != nil {
		logger.Error("compute trends failed", "error", err)
		return
	}

	note := domain.TrendNotification{
		RunID:       runID,
		GeneratedAt: s.clock.Now().UTC(),
		Inserted:    report.Inserted,
		Trends:      make([]domain.TrendReport, len(trends)),
	}
	for i, t := range trends {
		note.Trends[i] = t.Report()
	}

	for _, n := range s.notifiers {
		if err := n.Notify(ctx, note); err != nil {
			s.metrics.NotificationsTotal.WithLabelValues(n.Name(), observability.OutcomeError).Inc()
			logger.Warn("trend notification failed", "sink", n.Name(), "error", err)
			continue
		}
		s.metrics.NotificationsTotal.WithLabelValues(n.Name(), observability.OutcomeSuccess).Inc()
		logger.Info("trend notification sent", "sink", n.Name(), "trends", len(note.Trends))
	}
}
