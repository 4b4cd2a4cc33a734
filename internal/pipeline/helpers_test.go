package pipeline_test

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/couchcryptid/wastewater-ingest/internal/domain"
	"github.com/couchcryptid/wastewater-ingest/internal/observability"
	"github.com/couchcryptid/wastewater-ingest/internal/store"
	"github.com/stretchr/testify/require"
)

var csvHeader = strings.Join([]string{
	domain.ColSampleCollectionDate,
	domain.ColSiteName,
	domain.ColCounty,
	domain.ColPathogenTarget,
	domain.ColGeneTarget,
	`"` + domain.ColNormalizedConcentration + `"`,
	domain.ColDateUpdated,
}, ",")

// validRows holds four good rows for two sites.
const validRows = `2024-06-01,Renton,King,SARS-CoV-2,N1,100.5,2024-06-10 08:15:00.000000
2024-06-03,Renton,King,SARS-CoV-2,N1,140.25,2024-06-10 08:15:00.000000
2024-06-01,Kent,King,SARS-CoV-2,N1,80,2024-06-10 08:15:00.000000
2024-06-02,Kent,King,Influenza A,M,12,2024-06-10 08:15:00.000000
`

func csvOf(rows string) string { return csvHeader + "\n" + rows }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Options{
		SQLitePath:        filepath.Join(t.TempDir(), "samples.sqlite"),
		KnownKeyCacheSize: 100,
		Logger:            discardLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// --- mocks ---

type stubFetcher struct {
	mu    sync.Mutex
	body  string
	err   error
	calls atomic.Int64
}

func (f *stubFetcher) Fetch(_ context.Context) (io.ReadCloser, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.body)), nil
}

func (f *stubFetcher) set(body string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.body, f.err = body, err
}

type recordingNotifier struct {
	name  string
	err   error
	mu    sync.Mutex
	notes []domain.TrendNotification
}

func (n *recordingNotifier) Name() string { return n.name }

func (n *recordingNotifier) Notify(_ context.Context, note domain.TrendNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
	return n.err
}

func (n *recordingNotifier) received() []domain.TrendNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.TrendNotification(nil), n.notes...)
}

// countingStore drains each batch and reports every element as inserted.
type countingStore struct {
	batches atomic.Int64
}

func (s *countingStore) InsertBatch(_ context.Context, results iter.Seq[domain.SampleResult]) (store.BatchReport, error) {
	s.batches.Add(1)
	var r store.BatchReport
	for res := range results {
		r.Total++
		if res.Err != nil {
			if !domain.IsDataQuality(res.Err) {
				return store.BatchReport{}, res.Err
			}
			r.FailedConversion++
			continue
		}
		r.Inserted++
	}
	return r, nil
}

func (s *countingStore) Pairs(context.Context, ...string) ([]domain.Pair, error) {
	return nil, nil
}

func (s *countingStore) Trends(context.Context, []domain.Pair) ([]domain.Trend, error) {
	return nil, errors.New("not used")
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}
