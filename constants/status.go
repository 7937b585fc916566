package constants

// JobStatus is the canonical lifecycle state for rows in extraction_jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusPending    JobStatus = "PENDING"    // accepted, waiting for a worker
	JobStatusProcessing JobStatus = "PROCESSING" // owned by a worker
	JobStatusCompleted  JobStatus = "COMPLETED"  // terminal, result available
	JobStatusFailed     JobStatus = "FAILED"     // terminal, attempts exhausted
)

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Progress milestones reported by the pipeline.
const (
	ProgressStarted    = 10
	ProgressAcquired   = 60
	ProgressStructured = 70
	ProgressAnalyzed   = 80
	ProgressRefined    = 90
	ProgressPersisted  = 100
)
