package nbembed

import (
	"runtime"
	"testing"
)

func TestResolveWorkers(t *testing.T) {
	t.Parallel()

	cpus := runtime.GOMAXPROCS(0)
	atLeastOne := func(n int) int {
		if n < 1 {
			return 1
		}
		return n
	}

	tests := []struct {
		name     string
		parallel bool
		nJobs    int
		want     int
	}{
		{"sequential ignores n_jobs", false, 8, 1},
		{"explicit", true, 3, 3},
		{"all cpus", true, -1, cpus},
		{"all but one", true, -2, atLeastOne(cpus - 1)},
		{"far negative clamps", true, -1000, 1},
		{"zero falls back to all cpus", true, 0, cpus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := ResolveWorkers(tt.parallel, tt.nJobs); got != tt.want {
				t.Errorf("ResolveWorkers(%v, %d) = %d, want %d", tt.parallel, tt.nJobs, got, tt.want)
			}
		})
	}
}
