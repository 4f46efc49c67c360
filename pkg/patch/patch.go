// Package patch drives a whole roster patch end to end: copy the
// source image, write records, write archives, finalize checksums,
// flush to the output path. Each job owns its image buffer outright,
// so independent jobs run in parallel without shared state.
package patch

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/hiitsgabe/rompatch/pkg/integrity"
)

// State tracks a job through its pipeline. A job moves strictly
// forward; Failed is reachable from any non-terminal state.
type State int

const (
	Idle State = iota
	Copying
	WritingRecords
	WritingArchives
	Finalizing
	Done
	Failed
)

var stateNames = [...]string{"idle", "copying", "writing records", "writing archives", "finalizing", "done", "failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Step is one unit of work against the image, typically a single team
// or table. Steps run in declaration order.
type Step struct {
	Label string
	Apply func(image []byte) error
}

// Target supplies the platform-specific work of a job: record writes
// first, then archive writes, then the finalizers that must see the
// fully-mutated image.
type Target interface {
	Name() string
	RecordSteps() []Step
	ArchiveSteps() []Step
	Finalizers() []integrity.Finalizer
}

// Progress observes job advancement. It is called after each completed
// step with the running count, the step total and the label of the
// step that just finished. A nil Progress is fine.
type Progress func(completed, total int, label string)

// Option configures a Job.
type Option func(*Job)

// WithProgress attaches a progress observer.
func WithProgress(p Progress) Option {
	return func(j *Job) { j.progress = p }
}

// WithKeepInvalid leaves a failed job's output file in place with an
// ".invalid" marker alongside, instead of removing it.
func WithKeepInvalid() Option {
	return func(j *Job) { j.keepInvalid = true }
}

// Job patches one source image into one output file.
type Job struct {
	source      string
	output      string
	target      Target
	progress    Progress
	keepInvalid bool
	state       State
}

// NewJob validates the path pair. The source is only ever read; it
// must not be the output file.
func NewJob(source, output string, target Target, opts ...Option) (*Job, error) {
	if source == output {
		return nil, errors.New("source and output are the same file")
	}
	if output == "" {
		return nil, errors.New("no output path")
	}
	j := &Job{source: source, output: output, target: target, state: Idle}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// State reports the job's current pipeline stage.
func (j *Job) State() State { return j.state }

// Run executes the pipeline and returns the output path on success.
// Cancellation is honored between steps, never mid-step, so no record
// is ever left half-written; a cancelled or failed job leaves no
// output claiming success.
func (j *Job) Run(ctx context.Context) (string, error) {
	j.state = Copying
	image, err := ReadSource(j.source)
	if err != nil {
		return "", j.fail(err)
	}
	// The full copy lands on disk before any mutation, so an abort at
	// any later point can only ever leave a flagged partial output.
	if err := os.WriteFile(j.output, image, 0o644); err != nil {
		return "", j.fail(fmt.Errorf("copy to output: %w", err))
	}

	records := j.target.RecordSteps()
	archives := j.target.ArchiveSteps()
	finalizers := j.target.Finalizers()
	total := len(records) + len(archives) + len(finalizers)
	completed := 0

	advance := func(label string) {
		completed++
		if j.progress != nil {
			j.progress(completed, total, label)
		}
	}

	j.state = WritingRecords
	for _, step := range records {
		if err := ctx.Err(); err != nil {
			return "", j.fail(err)
		}
		if err := step.Apply(image); err != nil {
			return "", j.fail(fmt.Errorf("%s: %w", step.Label, err))
		}
		advance(step.Label)
	}

	j.state = WritingArchives
	for _, step := range archives {
		if err := ctx.Err(); err != nil {
			return "", j.fail(err)
		}
		if err := step.Apply(image); err != nil {
			return "", j.fail(fmt.Errorf("%s: %w", step.Label, err))
		}
		advance(step.Label)
	}

	j.state = Finalizing
	for _, fin := range finalizers {
		if err := ctx.Err(); err != nil {
			return "", j.fail(err)
		}
		if err := fin.Finalize(image); err != nil {
			return "", j.fail(fmt.Errorf("%s: %w", fin.Name(), err))
		}
		advance(fin.Name())
	}

	if err := os.WriteFile(j.output, image, 0o644); err != nil {
		return "", j.fail(fmt.Errorf("write output: %w", err))
	}
	j.state = Done
	return j.output, nil
}

func (j *Job) fail(err error) error {
	j.state = Failed
	if j.keepInvalid {
		if merr := os.WriteFile(j.output+".invalid", []byte(err.Error()+"\n"), 0o644); merr != nil {
			return errors.Join(err, merr)
		}
		return err
	}
	if rerr := os.Remove(j.output); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
		return errors.Join(err, rerr)
	}
	return err
}

// RunAll executes independent jobs in parallel, at most limit at a
// time (limit <= 0 means unbounded). The first error cancels the
// remaining jobs; jobs already past their last step still complete.
func RunAll(ctx context.Context, jobs []*Job, limit int) error {
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			if _, err := job.Run(ctx); err != nil {
				return fmt.Errorf("%s: %w", job.target.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
