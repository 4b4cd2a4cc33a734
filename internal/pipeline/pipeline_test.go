package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/couchcryptid/wastewater-ingest/internal/adapter/source"
	"github.com/couchcryptid/wastewater-ingest/internal/domain"
	"github.com/couchcryptid/wastewater-ingest/internal/observability"
	"github.com/couchcryptid/wastewater-ingest/internal/pipeline"
	"github.com/couchcryptid/wastewater-ingest/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var pollTime = time.Date(2024, time.June, 10, 16, 0, 0, 0, time.UTC)

func TestService_RunOnce_HappyPath(t *testing.T) {
	st := openStore(t)
	f := &stubFetcher{body: csvOf(validRows + "2024-06-04,Renton,King,SARS-CoV-2,N1,abc,2024-06-10 08:15:00.000000\n")}
	metrics := newTestMetrics()
	svc := pipeline.New(f, st, discardLogger(), metrics, pipeline.WithClock(clockwork.NewFakeClockAt(pollTime)))

	require.Error(t, svc.CheckReadiness(context.Background()))

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.BatchReport{Inserted: 4, FailedConversion: 1, Total: 5}, report)
	assert.NoError(t, svc.CheckReadiness(context.Background()))

	assert.InDelta(t, 4, testutil.ToFloat64(metrics.RowsInserted), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RowsFailed), 0)
	assert.InDelta(t, 5, testutil.ToFloat64(metrics.RowsTotal), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues(observability.OutcomeSuccess)), 0)
	assert.InDelta(t, float64(pollTime.Unix()), testutil.ToFloat64(metrics.LastSuccess), 0)

	trend, err := st.Trend(context.Background(), "Renton", "SARS-CoV-2")
	require.NoError(t, err)
	require.Equal(t, domain.TrendOK, trend.Status)
	assert.InDelta(t, 39.75, *trend.Difference, 1e-9)
	assert.True(t, pollTime.Equal(trend.Latest.PollTimestamp))
}

func TestService_RunOnce_SecondRunStoresNothingNew(t *testing.T) {
	st := openStore(t)
	f := &stubFetcher{body: csvOf(validRows)}
	n := &recordingNotifier{name: "recorder"}
	clock := clockwork.NewFakeClockAt(pollTime)
	svc := pipeline.New(f, st, discardLogger(), newTestMetrics(),
		pipeline.WithClock(clock), pipeline.WithNotifiers(n))

	_, err := svc.RunOnce(context.Background())
	require.NoError(t, err)

	clock.Advance(6 * time.Hour)
	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.BatchReport{SkippedDuplicate: 4, Total: 4}, report)

	assert.Len(t, n.received(), 1, "a run with no new rows sends no notification")
}

func TestService_RunOnce_Notifies(t *testing.T) {
	st := openStore(t)
	f := &stubFetcher{body: csvOf(validRows)}
	n := &recordingNotifier{name: "recorder"}
	svc := pipeline.New(f, st, discardLogger(), newTestMetrics(),
		pipeline.WithClock(clockwork.NewFakeClockAt(pollTime)),
		pipeline.WithNotifiers(n),
		pipeline.WithTrendPathogens("SARS-CoV-2"),
	)

	_, err := svc.RunOnce(context.Background())
	require.NoError(t, err)

	notes := n.received()
	require.Len(t, notes, 1)
	note := notes[0]
	assert.NotEmpty(t, note.RunID)
	assert.Equal(t, 4, note.Inserted)
	assert.True(t, pollTime.Equal(note.GeneratedAt))
	require.Len(t, note.Trends, 2)

	kent, renton := note.Trends[0], note.Trends[1]
	assert.Equal(t, "Kent", kent.Location)
	assert.Nil(t, kent.Difference, "single sample has no prior data")
	assert.Equal(t, "2024-06-01", kent.LatestDate)
	assert.Equal(t, "Renton", renton.Location)
	assert.Equal(t, "2024-06-03", renton.LatestDate)
	assert.Equal(t, "2024-06-01", renton.PreviousDate)
	require.NotNil(t, renton.Difference)
	assert.InDelta(t, 39.75, *renton.Difference, 1e-9)
}

func TestService_RunOnce_NotifierFailureIsNotFatal(t *testing.T) {
	st := openStore(t)
	f := &stubFetcher{body: csvOf(validRows)}
	broken := &recordingNotifier{name: "broken", err: errors.New("connection refused")}
	healthy := &recordingNotifier{name: "healthy"}
	metrics := newTestMetrics()
	svc := pipeline.New(f, st, discardLogger(), metrics,
		pipeline.WithClock(clockwork.NewFakeClockAt(pollTime)),
		pipeline.WithNotifiers(broken, healthy),
	)

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.Inserted)

	assert.Len(t, healthy.received(), 1)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.NotificationsTotal.WithLabelValues("broken", observability.OutcomeError)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.NotificationsTotal.WithLabelValues("healthy", observability.OutcomeSuccess)), 0)
}

func TestService_RunOnce_FetchFailure(t *testing.T) {
	st := openStore(t)
	f := &stubFetcher{err: source.ErrFetch}
	metrics := newTestMetrics()
	svc := pipeline.New(f, st, discardLogger(), metrics)

	_, err := svc.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, source.ErrFetch)
	assert.Error(t, svc.CheckReadiness(context.Background()))
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues(observability.OutcomeError)), 0)
}

func TestService_RunOnce_MissingHeaderStoresNothing(t *testing.T) {
	st := openStore(t)
	f := &stubFetcher{body: "Site Name,County\nRenton,King\n"}
	svc := pipeline.New(f, st, discardLogger(), newTestMetrics())

	_, err := svc.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing columns")

	n, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestService_RunOnce_HaltOnParseError(t *testing.T) {
	st := openStore(t)
	f := &stubFetcher{body: csvOf(validRows + "not-a-date,Renton,King,SARS-CoV-2,N1,1,2024-06-10 08:15:00.000000\n")}
	svc := pipeline.New(f, st, discardLogger(), newTestMetrics(),
		pipeline.WithClock(clockwork.NewFakeClockAt(pollTime)),
		pipeline.WithHaltOnParseError(),
	)

	_, err := svc.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrParseHalt)

	n, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "a halted run stores nothing")
}

func TestService_RunOnce_ClockBeforeEpoch(t *testing.T) {
	st := openStore(t)
	f := &stubFetcher{body: csvOf(validRows)}
	svc := pipeline.New(f, st, discardLogger(), newTestMetrics(),
		pipeline.WithClock(clockwork.NewFakeClockAt(time.Date(1969, time.December, 31, 0, 0, 0, 0, time.UTC))),
	)

	_, err := svc.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrClock)

	n, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestService_RunOnce_DSTGapRowIsSkipped(t *testing.T) {
	st := openStore(t)
	f := &stubFetcher{body: csvOf(
		"2024-03-09,Renton,King,SARS-CoV-2,N1,10,2024-03-10 02:30:00.000000\n" +
			"2024-11-02,Renton,King,SARS-CoV-2,N1,20,2024-11-03 01:30:00.000000\n",
	)}
	svc := pipeline.New(f, st, discardLogger(), newTestMetrics(), pipeline.WithClock(clockwork.NewFakeClockAt(pollTime)))

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.BatchReport{Inserted: 1, FailedConversion: 1, Total: 2}, report)

	trend, err := st.Trend(context.Background(), "Renton", "SARS-CoV-2")
	require.NoError(t, err)
	require.NotNil(t, trend.Latest)
	assert.Equal(t, time.Date(2024, time.November, 3, 9, 30, 0, 0, time.UTC), trend.Latest.DateUpdated.UTC())
}

func TestService_RunOnce_BlankCountyIsStored(t *testing.T) {
	st := openStore(t)
	f := &stubFetcher{body: csvOf("2024-06-01,Tribal Site,,SARS-CoV-2,N1,100.5,2024-06-10 08:15:00.000000\n")}
	svc := pipeline.New(f, st, discardLogger(), newTestMetrics(), pipeline.WithClock(clockwork.NewFakeClockAt(pollTime)))

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.BatchReport{Inserted: 1, Total: 1}, report)

	trend, err := st.Trend(context.Background(), "Tribal Site", "SARS-CoV-2")
	require.NoError(t, err)
	require.NotNil(t, trend.Latest)
	assert.Empty(t, trend.Latest.County)
}

func TestService_Run_PollsOnInterval(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := clockwork.NewFakeClockAt(pollTime)
	f := &stubFetcher{body: csvOf(validRows)}
	st := &countingStore{}
	metrics := newTestMetrics()
	svc := pipeline.New(f, st, discardLogger(), metrics,
		pipeline.WithClock(clock), pipeline.WithInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return st.batches.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.PipelineRunning), 0)

	// A failed run does not stop the loop.
	f.set("", errors.New("dns failure"))
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Hour)
	require.Eventually(t, func() bool { return f.calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)

	f.set(csvOf(validRows), nil)
	clock.Advance(time.Hour)
	require.Eventually(t, func() bool { return st.batches.Load() == 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineRunning), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues(observability.OutcomeError)), 0)
}

func TestService_Run_CanceledBeforeStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &stubFetcher{err: context.Canceled}
	svc := pipeline.New(f, &countingStore{}, discardLogger(), newTestMetrics(),
		pipeline.WithClock(clockwork.NewFakeClock()))
	require.NoError(t, svc.Run(ctx))
	assert.Equal(t, int64(1), f.calls.Load())
}
