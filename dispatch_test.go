package nbembed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alnah/go-nbembed/internal/logging"
)

// sleepJobs returns jobs that finish in reverse submission order.
func sleepJobs(n int) []Job {
	jobs := make([]Job, n)
	for i := range n {
		delay := time.Duration(n-i) * 10 * time.Millisecond
		name := fmt.Sprintf("nb%d", i)
		jobs[i] = Job{
			Name: name,
			Run: func(ctx context.Context) (ConvertResult, error) {
				time.Sleep(delay)
				return ConvertResult{Source: name}, nil
			},
		}
	}
	return jobs
}

// ---------------------------------------------------------------------------
// TestDispatch - Ordering, bounds and isolation
// ---------------------------------------------------------------------------

func TestDispatch_SequentialKeepsSubmissionOrder(t *testing.T) {
	t.Parallel()

	var got []int
	for r := range Dispatch(context.Background(), sleepJobs(5), 1) {
		got = append(got, r.Index)
	}
	for i, idx := range got {
		if idx != i {
			t.Fatalf("order = %v, want submission order", got)
		}
	}
	if len(got) != 5 {
		t.Errorf("got %d results, want 5", len(got))
	}
}

func TestDispatch_ParallelYieldsAll(t *testing.T) {
	t.Parallel()

	seen := map[int]bool{}
	for r := range Dispatch(context.Background(), sleepJobs(6), 3) {
		if !r.OK() {
			t.Errorf("job %d failed: %v", r.Index, r.Err)
		}
		if r.Duration <= 0 {
			t.Errorf("job %d has no duration", r.Index)
		}
		seen[r.Index] = true
	}
	if len(seen) != 6 {
		t.Errorf("got %d distinct results, want 6", len(seen))
	}
}

func TestDispatch_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	var running, peak atomic.Int32
	jobs := make([]Job, 8)
	for i := range jobs {
		jobs[i] = Job{Name: fmt.Sprint(i), Run: func(ctx context.Context) (ConvertResult, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			running.Add(-1)
			return ConvertResult{}, nil
		}}
	}

	for range Dispatch(context.Background(), jobs, 2) {
	}
	if p := peak.Load(); p > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", p)
	}
}

func TestDispatch_FailuresAreIsolated(t *testing.T) {
	t.Parallel()

	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			t.Parallel()

			jobs := []Job{
				{Name: "ok1", Run: func(ctx context.Context) (ConvertResult, error) { return ConvertResult{}, nil }},
				{Name: "fails", Run: func(ctx context.Context) (ConvertResult, error) { return ConvertResult{}, ErrToolFailed }},
				{Name: "panics", Run: func(ctx context.Context) (ConvertResult, error) { panic("boom") }},
				{Name: "ok2", Run: func(ctx context.Context) (ConvertResult, error) { return ConvertResult{}, nil }},
			}

			status := map[string]error{}
			for r := range Dispatch(context.Background(), jobs, workers) {
				status[r.Job.Name] = r.Err
			}
			if len(status) != 4 {
				t.Fatalf("got %d results, want 4", len(status))
			}
			if status["ok1"] != nil || status["ok2"] != nil {
				t.Errorf("siblings of failing jobs failed: %v", status)
			}
			if !errors.Is(status["fails"], ErrToolFailed) {
				t.Errorf("fails error = %v", status["fails"])
			}
			if !errors.Is(status["panics"], ErrConversionPanic) {
				t.Errorf("panics error = %v, want %v", status["panics"], ErrConversionPanic)
			}
		})
	}
}

func TestDispatch_Empty(t *testing.T) {
	t.Parallel()

	for range Dispatch(context.Background(), nil, 4) {
		t.Error("result from empty job list")
	}
}

// ---------------------------------------------------------------------------
// TestProgress - Throughput reporting
// ---------------------------------------------------------------------------

func TestProgress(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	p := NewProgress(4, logger)
	p.elapsed = func() time.Duration { return 4 * time.Second }

	p.Observe(Result{Job: Job{Name: "plot_a"}})
	if got := p.Average(); got != 4*time.Second {
		t.Errorf("Average() = %v, want 4s", got)
	}
	if got := p.ETA(); got != 12*time.Second {
		t.Errorf("ETA() = %v, want 12s", got)
	}

	p.Observe(Result{Job: Job{Name: "plot_b"}, Err: ErrToolFailed})
	if p.Done() != 2 || p.Failed() != 1 {
		t.Errorf("Done() = %d, Failed() = %d, want 2, 1", p.Done(), p.Failed())
	}
	if got := p.ETA(); got != 4*time.Second {
		t.Errorf("ETA() = %v, want 4s", got)
	}

	p.Observe(Result{Job: Job{Name: "plot_c"}})
	if p.Converted() != 2 || p.Done() != 3 {
		t.Errorf("Converted() = %d, Done() = %d, want 2, 3", p.Converted(), p.Done())
	}

	out := buf.String()
	if !strings.Contains(out, `msg="converted 2/4 plot_c"`) {
		t.Errorf("failed job counted as converted: %q", out)
	}
	if !strings.Contains(out, `msg="converted 1/4 plot_a"`) || !strings.Contains(out, "avg=4s") || !strings.Contains(out, "eta=12s") {
		t.Errorf("progress line = %q", out)
	}
	if !strings.Contains(out, "conversion failed") || !strings.Contains(out, "notebook=plot_b") {
		t.Errorf("failure line missing: %q", out)
	}
}

// ---------------------------------------------------------------------------
// TestCollect - Duplicate names
// ---------------------------------------------------------------------------

func TestCollect_SkipsDuplicateNames(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	job := func(name, source string) Job {
		return Job{Name: name, Source: source, Run: func(context.Context) (ConvertResult, error) {
			runs.Add(1)
			return ConvertResult{Source: source}, nil
		}}
	}
	jobs := []Job{
		job("plot_a", "gallery1/plot_a.ipynb"),
		job("plot_b", "gallery1/plot_b.ipynb"),
		job("plot_a", "gallery2/plot_a.ipynb"),
	}

	results := Collect(context.Background(), jobs, 2, logging.Discard())
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if got := runs.Load(); got != 2 {
		t.Errorf("ran %d jobs, want 2", got)
	}

	for _, r := range results {
		if r.Job.Source != jobs[r.Index].Source {
			t.Errorf("Index %d points at %s, want %s", r.Index, jobs[r.Index].Source, r.Job.Source)
		}
		dup := r.Job.Source == "gallery2/plot_a.ipynb"
		if dup != errors.Is(r.Err, ErrDuplicateName) {
			t.Errorf("%s: error = %v", r.Job.Source, r.Err)
		}
		if dup && !strings.Contains(r.Err.Error(), "gallery1/plot_a.ipynb") {
			t.Errorf("duplicate error %q does not name the first source", r.Err)
		}
	}
}
