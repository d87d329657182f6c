package nbembed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Job is one notebook conversion.
type Job struct {
	Name   string
	Source string
	Run    func(ctx context.Context) (ConvertResult, error)
}

// Result is the outcome of one Job. Err is set on failure, including
// panics inside Run.
type Result struct {
	Job      Job
	Index    int // position in the submitted slice
	Value    ConvertResult
	Err      error
	Duration time.Duration
}

// OK reports whether the job succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Dispatch runs jobs on at most workers goroutines and streams results.
// With one worker, results arrive in submission order; otherwise in
// completion order. A failing job never stops the others. The channel is
// closed after the last result.
func Dispatch(ctx context.Context, jobs []Job, workers int) <-chan Result {
	if workers < MinWorkers {
		workers = MinWorkers
	}
	if workers > len(jobs) && len(jobs) > 0 {
		workers = len(jobs)
	}

	results := make(chan Result, len(jobs))

	if workers == 1 {
		go func() {
			defer close(results)
			for i, job := range jobs {
				results <- runJob(ctx, i, job)
			}
		}()
		return results
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				results <- runJob(ctx, i, jobs[i])
			}
		}()
	}

	go func() {
		for i := range jobs {
			indexes <- i
		}
		close(indexes)
		wg.Wait()
		close(results)
	}()
	return results
}

// runJob runs one job, turning a panic into a failed result.
func runJob(ctx context.Context, i int, job Job) (res Result) {
	start := time.Now()
	res = Result{Job: job, Index: i}
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("%w: %s: %v", ErrConversionPanic, job.Name, r)
		}
		res.Duration = time.Since(start)
	}()

	res.Value, res.Err = job.Run(ctx)
	return res
}

// Progress reports throughput while results come in.
type Progress struct {
	total     int
	done      int
	converted int
	failed    int
	start     time.Time
	logger    *slog.Logger
	elapsed   func() time.Duration
}

// NewProgress starts tracking total jobs.
func NewProgress(total int, logger *slog.Logger) *Progress {
	p := &Progress{total: total, start: time.Now(), logger: logger}
	p.elapsed = func() time.Duration { return time.Since(p.start) }
	return p
}

// Observe records one result and logs it.
func (p *Progress) Observe(r Result) {
	p.done++
	if !r.OK() {
		p.failed++
		attrs := []any{"notebook", r.Job.Name, "source", r.Job.Source, "error", r.Err}
		var toolErr *ToolError
		if errors.As(r.Err, &toolErr) {
			attrs = append(attrs, "tool", toolErr)
		}
		p.logger.Warn("conversion failed", attrs...)
		return
	}
	p.converted++
	p.logger.Info(fmt.Sprintf("converted %d/%d %s", p.converted, p.total, r.Job.Name),
		"avg", p.Average().Round(10*time.Millisecond),
		"eta", p.ETA().Round(time.Second),
		"cached", r.Value.Cached,
	)
}

// Done returns the number of completed jobs, failed ones included.
func (p *Progress) Done() int { return p.done }

// Converted returns the number of successful jobs.
func (p *Progress) Converted() int { return p.converted }

// Failed returns the number of failed jobs.
func (p *Progress) Failed() int { return p.failed }

// Average returns the wall-clock time per completed job.
func (p *Progress) Average() time.Duration {
	if p.done == 0 {
		return 0
	}
	return p.elapsed() / time.Duration(p.done)
}

// ETA estimates the time left for the remaining jobs.
func (p *Progress) ETA() time.Duration {
	remaining := p.total - p.done
	if remaining <= 0 {
		return 0
	}
	return p.Average() * time.Duration(remaining)
}

// Collect dispatches jobs and gathers every result in arrival order,
// logging progress as they come.
// Jobs whose Name repeats an earlier job's are not run: both would write
// the same artifact. They come back as ErrDuplicateName failures.
func Collect(ctx context.Context, jobs []Job, workers int, logger *slog.Logger) []Result {
	progress := NewProgress(len(jobs), logger)
	results := make([]Result, 0, len(jobs))

	unique, pos, dups := splitDuplicates(jobs)
	for _, r := range dups {
		progress.Observe(r)
		results = append(results, r)
	}
	for r := range Dispatch(ctx, unique, workers) {
		r.Index = pos[r.Index]
		progress.Observe(r)
		results = append(results, r)
	}
	return results
}

// splitDuplicates keeps the first job of each name and turns the rest
// into failed results. pos maps an index in unique back to jobs.
func splitDuplicates(jobs []Job) (unique []Job, pos []int, dups []Result) {
	first := make(map[string]string, len(jobs))
	unique = make([]Job, 0, len(jobs))
	pos = make([]int, 0, len(jobs))
	for i, job := range jobs {
		if src, ok := first[job.Name]; ok {
			dups = append(dups, Result{
				Job:   job,
				Index: i,
				Err:   fmt.Errorf("%w: %q is already produced by %s", ErrDuplicateName, job.Name, src),
			})
			continue
		}
		first[job.Name] = job.Source
		unique = append(unique, job)
		pos = append(pos, i)
	}
	return unique, pos, dups
}
