package models

import "time"

// JobStatus is the closed set of states an indexing job can occupy.
type JobStatus string

const (
	JobStarted   JobStatus = "started"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobTimeout   JobStatus = "timeout"
	JobCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether status is one no further update may follow.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobTimeout, JobCancelled:
		return true
	default:
		return false
	}
}

// IdentityScope selects which identifier field on a job or grant is populated.
type IdentityScope string

const (
	ScopeUser IdentityScope = "user"
	ScopeTeam IdentityScope = "team"
)

// Identity is the opaque caller identity the core never manufactures.
type Identity struct {
	UserID string
	TeamID string
	Scope  IdentityScope
}

// JobCounters are the monotonic progress counters of an indexing job.
type JobCounters struct {
	PagesDiscovered int
	PagesProcessed  int
	PagesIndexed    int
	TotalChunks     int
}

// JobErrorDetails is the structured error payload attached on failure.
type JobErrorDetails struct {
	Stage   string `json:"stage"`
	Cause   string `json:"cause"`
	Retryable bool `json:"retryable"`
}

// IndexingJob is the durable record describing one ingest run.
type IndexingJob struct {
	JobID      string
	IndexName  string
	SourceURL  string
	Status     JobStatus
	Identity   Identity
	Metadata   map[string]string

	Counters JobCounters

	StartedAt       time.Time
	CompletedAt     time.Time
	DurationSeconds float64

	ErrorMessage string
	ErrorDetails *JobErrorDetails
}
