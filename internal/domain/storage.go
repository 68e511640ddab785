package domain

// Step names carried by SyncProgress.
const (
	StepStarting = "Starting Sync"
	StepLoading  = "Loading Operations"
	StepSyncing  = "Syncing"
	StepCleanup  = "Cleanup"
	StepComplete = "Complete"
	StepError    = "Error"
)

// ProgressTotal is the denominator of every SyncProgress.
const ProgressTotal = 100

// SyncProgress reports advancement of one sync cycle. Never persisted.
type SyncProgress struct {
	Step     string
	Progress int
	Total    int
	Message  string
	Errors   []string // accumulated for the in-flight cycle
}

// Done reports whether this is the final event of a cycle.
func (p SyncProgress) Done() bool {
	return p.Step == StepComplete || p.Step == StepError
}

// SyncObserver receives progress updates during sync cycles.
type SyncObserver interface {
	OnProgress(progress SyncProgress)
}

// ObserverFunc adapts a plain function to SyncObserver.
type ObserverFunc func(SyncProgress)

func (f ObserverFunc) OnProgress(p SyncProgress) { f(p) }

// NoOpObserver discards progress updates (for testing/batch operations).
type NoOpObserver struct{}

func (NoOpObserver) OnProgress(SyncProgress) {}
