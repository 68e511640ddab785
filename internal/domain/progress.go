package domain

// CycleResult summarizes what happened during one sync cycle.
type CycleResult struct {
	Skipped   bool     // offline or another cycle was running
	Processed int      // operations attempted
	Succeeded int      // operations replayed and removed
	Dropped   int      // operations removed after exhausting retries or permanent failure
	Collected int      // operations removed by garbage collection
	Errors    []string // per-operation and per-module failures
	Err       error    // cycle-level failure (storage unavailable)
}

// OK reports a cycle that ran and recorded no failures.
func (r CycleResult) OK() bool {
	return !r.Skipped && r.Err == nil && len(r.Errors) == 0
}
