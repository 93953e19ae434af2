// Package pool runs theory checks across a fixed number of long-lived
// worker goroutines, each owning its own SMT solver context for its
// whole lifetime — component I, grounded on theory_worker.rs's
// channel-based dispatch protocol, ported onto golang.org/x/sync/errgroup
// instead of std::sync::mpsc, with google/uuid correlation IDs per job.
package pool

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ropforge/ropforge/internal/rerr"
	"github.com/ropforge/ropforge/internal/synthesis"
	"github.com/ropforge/ropforge/internal/synthesis/theory"
)

// Job is one assignment to check, tagged with a correlation ID for log
// correlation across the pool's workers.
type Job struct {
	ID         uuid.UUID
	Assignment synthesis.SlotAssignments
}

// Response is a Job's outcome: Sat set (the theory accepted the
// assignment; no model is attached), a conflict clause
// (Unsat), or an error (including rerr.ErrTheoryTimeout, which the
// controller treats as "blame the whole assignment" rather than as a
// run-aborting failure).
type Response struct {
	ID         uuid.UUID
	Assignment synthesis.SlotAssignments
	Conflict   *synthesis.ConflictClause
	Sat        bool
	Err        error
}

// Pool dispatches jobs to a fixed set of worker goroutines, each
// holding one Theory (and therefore one solver context) for the pool's
// whole lifetime, mirroring "each thread owns an independent solver
// context" (spec §4.10).
type Pool struct {
	concurrency int
	build       func() (*theory.Theory, error)
	log         *logrus.Logger
}

// New builds a Pool with the given worker count; build constructs one
// independent Theory per worker the first time that worker starts.
func New(concurrency int, build func() (*theory.Theory, error), log *logrus.Logger) *Pool {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{concurrency: concurrency, build: build, log: log}
}

// Run evaluates every job in jobs across the pool's workers and streams
// responses back on the returned channel as they complete, closing it
// once every job has been answered or the run is aborted. The run is
// cancelled as soon as any worker reports Sat (first model wins) or any
// worker returns a non-timeout error (abort-the-whole-run semantics);
// Run itself returns only a setup error, never a per-job one — those
// arrive on the channel.
func (p *Pool) Run(ctx context.Context, jobs []Job) (<-chan Response, error) {
	runCtx, cancel := context.WithCancel(ctx)

	jobCh := make(chan Job)
	out := make(chan Response, len(jobs))

	g, gctx := errgroup.WithContext(runCtx)

	for w := 0; w < p.concurrency; w++ {
		worker := w
		g.Go(func() error {
			th, err := p.build()
			if err != nil {
				return err
			}
			log := p.log.WithField("worker", worker)
			for {
				select {
				case job, ok := <-jobCh:
					if !ok {
						return nil
					}
					log.WithField("job", job.ID).Debug("checking assignment")
					conflict, err := th.CheckAssignment(gctx, job.Assignment)
					if err != nil {
						out <- Response{ID: job.ID, Assignment: job.Assignment, Err: err}
						if !errors.Is(err, rerr.ErrTheoryTimeout) {
							return err
						}
						continue
					}
					if conflict == nil {
						out <- Response{ID: job.ID, Assignment: job.Assignment, Sat: true}
						cancel()
						return nil
					}
					out <- Response{ID: job.ID, Assignment: job.Assignment, Conflict: conflict}
				case <-gctx.Done():
					return nil
				}
			}
		})
	}

	go func() {
		defer close(jobCh)
		for _, job := range jobs {
			select {
			case jobCh <- job:
			case <-gctx.Done():
				return
			}
		}
	}()

	go func() {
		defer cancel()
		defer close(out)
		if err := g.Wait(); err != nil {
			p.log.WithError(err).Error("worker pool aborted")
		}
	}()

	return out, nil
}
