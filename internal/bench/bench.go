// Package bench times repeated synthesis runs against one resolved
// config, the Go analogue of the bench subcommand: where the original
// ran one timed attempt and logged synth_success/synth_fail, this
// repeats the attempt and reports per-run timing statistics, since a
// single sample rarely says much about a CEGAR loop's variance.
package bench

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ropforge/ropforge/internal/synthesis"
)

// Run executes attempt runs times, recording each run's outcome and
// wall-clock duration into a Report.
func Run(ctx context.Context, runs int, attempt func(ctx context.Context) (synthesis.DecisionResult, error)) (*Report, error) {
	if runs <= 0 {
		runs = 1
	}
	report := &Report{Samples: make([]Sample, 0, runs)}
	for i := 0; i < runs; i++ {
		start := time.Now()
		result, err := attempt(ctx)
		elapsed := time.Since(start)

		sample := Sample{Run: i, Duration: elapsed}
		switch {
		case err != nil:
			sample.Outcome = OutcomeError
			sample.Err = err
			logrus.WithError(err).WithField("run", i).Warn("synth_error")
		case result.Kind == synthesis.DecisionFound:
			sample.Outcome = OutcomeSuccess
			logrus.WithField("run", i).Info("synth_success")
		default:
			sample.Outcome = OutcomeUnsat
			logrus.WithField("run", i).Info("synth_fail")
		}
		report.Samples = append(report.Samples, sample)
	}
	return report, nil
}

// Outcome classifies one bench run's result.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeUnsat
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeUnsat:
		return "unsat"
	default:
		return "error"
	}
}

// Sample is one timed run's outcome.
type Sample struct {
	Run      int
	Duration time.Duration
	Outcome  Outcome
	Err      error
}

// Report collects every sample from a Run call and derives summary
// statistics over all samples' durations, successful or not.
type Report struct {
	Samples []Sample
}

// Durations returns every sample's duration in run order.
func (r *Report) Durations() []time.Duration {
	out := make([]time.Duration, len(r.Samples))
	for i, s := range r.Samples {
		out[i] = s.Duration
	}
	return out
}

// Median returns the median duration across all samples, or zero if
// there are none.
func (r *Report) Median() time.Duration {
	d := r.Durations()
	if len(d) == 0 {
		return 0
	}
	sort.Slice(d, func(i, j int) bool { return d[i] < d[j] })
	return d[len(d)/2]
}

// WriteCSV writes one row per sample (run index, outcome, duration in
// milliseconds, error text if any) to w.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()
	if err := cw.Write([]string{"run", "outcome", "duration_ms", "error"}); err != nil {
		return err
	}
	for _, s := range r.Samples {
		errText := ""
		if s.Err != nil {
			errText = s.Err.Error()
		}
		row := []string{
			fmt.Sprintf("%d", s.Run),
			s.Outcome.String(),
			fmt.Sprintf("%.3f", float64(s.Duration.Microseconds())/1000.0),
			errText,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return cw.Error()
}
