package bench

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ropforge/ropforge/internal/synthesis"
)

func TestRunClassifiesOutcomes(t *testing.T) {
	calls := 0
	attempt := func(ctx context.Context) (synthesis.DecisionResult, error) {
		calls++
		switch calls {
		case 1:
			return synthesis.DecisionResult{Kind: synthesis.DecisionFound}, nil
		case 2:
			return synthesis.DecisionResult{Kind: synthesis.DecisionUnsat}, nil
		default:
			return synthesis.DecisionResult{}, errors.New("boom")
		}
	}

	report, err := Run(context.Background(), 3, attempt)
	require.NoError(t, err)
	require.Len(t, report.Samples, 3)

	want := []Outcome{OutcomeSuccess, OutcomeUnsat, OutcomeError}
	for i, s := range report.Samples {
		require.Equal(t, want[i], s.Outcome, "sample %d", i)
	}
	require.Error(t, report.Samples[2].Err, "the error sample must carry its error")
}

func TestRunDefaultsNonPositiveRunsToOne(t *testing.T) {
	calls := 0
	attempt := func(ctx context.Context) (synthesis.DecisionResult, error) {
		calls++
		return synthesis.DecisionResult{Kind: synthesis.DecisionFound}, nil
	}
	report, err := Run(context.Background(), 0, attempt)
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Len(t, report.Samples, 1)
}

func TestReportMedian(t *testing.T) {
	r := &Report{Samples: []Sample{
		{Duration: 30 * time.Millisecond},
		{Duration: 10 * time.Millisecond},
		{Duration: 20 * time.Millisecond},
	}}
	require.Equal(t, 20*time.Millisecond, r.Median())

	empty := &Report{}
	require.Equal(t, time.Duration(0), empty.Median())
}

func TestReportWriteCSV(t *testing.T) {
	r := &Report{Samples: []Sample{
		{Run: 0, Outcome: OutcomeSuccess, Duration: 1500 * time.Microsecond},
		{Run: 1, Outcome: OutcomeError, Duration: 2 * time.Millisecond, Err: errors.New("timed out")},
	}}
	var buf strings.Builder
	require.NoError(t, r.WriteCSV(&buf))

	out := buf.String()
	require.Contains(t, out, "run,outcome,duration_ms,error")
	require.Contains(t, out, "success")
	require.Contains(t, out, "timed out")
}
