package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrJobNotFound = errors.New("job not found")

type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// Progress is the observable state of one processing job.
type Progress struct {
	ManualID   string     `json:"manualId"`
	State      JobState   `json:"state"`
	Step       string     `json:"step,omitempty"`
	Chunks     int        `json:"chunks"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

func (p Progress) Done() bool {
	return p.State == JobSucceeded || p.State == JobFailed
}

// DefaultRetention is how long a finished job stays queryable.
const DefaultRetention = time.Hour

// Runner processes manuals in background goroutines inside the API process.
// Jobs outlive the request that launched them. Finished jobs are dropped
// after the retention period; callers fall back to the manual status.
type Runner struct {
	proc      *Processor
	log       *slog.Logger
	retention time.Duration
	now       func() time.Time

	mu   sync.RWMutex
	jobs map[string]*Progress
	wg   sync.WaitGroup
}

type RunnerOption func(*Runner)

func WithRetention(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.retention = d
		}
	}
}

func NewRunner(proc *Processor, log *slog.Logger, opts ...RunnerOption) *Runner {
	if log == nil {
		log = slog.Default()
	}
	r := &Runner{
		proc:      proc,
		log:       log.With("component", "runner"),
		retention: DefaultRetention,
		now:       func() time.Time { return time.Now().UTC() },
		jobs:      map[string]*Progress{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Launch starts processing manualID and returns immediately.
func (r *Runner) Launch(ctx context.Context, manualID string) error {
	jobCtx := context.WithoutCancel(ctx)
	r.mu.Lock()
	r.pruneLocked()
	r.jobs[manualID] = &Progress{ManualID: manualID, State: JobQueued, StartedAt: r.now()}
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error("processing job panicked", "manual_id", manualID, "panic", rec)
				err := errors.New("processing job panicked")
				if markErr := r.proc.MarkFailed(jobCtx, manualID, err); markErr != nil {
					r.log.Error("mark manual failed", "manual_id", manualID, "error", markErr)
				}
				r.finish(manualID, Result{}, err)
			}
		}()
		r.update(manualID, func(p *Progress) { p.State = JobRunning })
		res, err := r.proc.Run(jobCtx, manualID, func(step string) {
			r.update(manualID, func(p *Progress) { p.Step = step })
		})
		r.finish(manualID, res, err)
	}()
	return nil
}

func (r *Runner) Progress(_ context.Context, manualID string) (Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()
	p, ok := r.jobs[manualID]
	if !ok {
		return Progress{}, ErrJobNotFound
	}
	return *p, nil
}

// Forget drops the job of a deleted manual.
func (r *Runner) Forget(manualID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.jobs[manualID]; ok && p.Done() {
		delete(r.jobs, manualID)
	}
}

func (r *Runner) pruneLocked() {
	cutoff := r.now().Add(-r.retention)
	for id, p := range r.jobs {
		if p.Done() && p.FinishedAt != nil && p.FinishedAt.Before(cutoff) {
			delete(r.jobs, id)
		}
	}
}

// Wait blocks until every launched job finished or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) update(manualID string, fn func(p *Progress)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.jobs[manualID]; ok {
		fn(p)
	}
}

func (r *Runner) finish(manualID string, res Result, err error) {
	now := r.now()
	r.update(manualID, func(p *Progress) {
		p.FinishedAt = &now
		p.Chunks = res.Chunks
		if err != nil {
			p.State = JobFailed
			p.Error = FailReason(err)
			return
		}
		p.State = JobSucceeded
		p.Step = ""
	})
}
