package nbembed

import "runtime"

// MinWorkers ensures at least one worker is available.
const MinWorkers = 1

// ResolveWorkers determines the worker count from the parallel_build and
// n_jobs options. n_jobs follows the joblib convention: positive values are
// explicit, -1 means all CPUs, -2 all but one, and so on. GOMAXPROCS is
// used as the CPU count (adjusted by automaxprocs for containers).
func ResolveWorkers(parallel bool, nJobs int) int {
	if !parallel {
		return MinWorkers
	}
	if nJobs > 0 {
		return nJobs
	}

	n := runtime.GOMAXPROCS(0)
	if nJobs < 0 {
		n = n + 1 + nJobs
	}
	if n < MinWorkers {
		return MinWorkers
	}
	return n
}
