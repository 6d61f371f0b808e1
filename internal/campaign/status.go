package campaign

// Status is the runner's lifecycle state.
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	// StatusPausedQuota means a send ceiling was hit; progress is saved
	// and the run can resume once the window rolls over.
	StatusPausedQuota
	// StatusPaused means the operator interrupted the run between jobs.
	StatusPaused
	StatusCompleted
	// StatusAborted means a fatal condition such as session loss ended
	// the run early.
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusPausedQuota:
		return "paused_quota"
	case StatusPaused:
		return "paused"
	case StatusCompleted:
		return "completed"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether the run is over for this process. Paused
// states are terminal here; a later invocation resumes them.
func (s Status) Terminal() bool {
	return s != StatusIdle && s != StatusRunning
}
