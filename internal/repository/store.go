package repository

import (
	"context"
	"time"

	"github.com/joseph-ayodele/timetable-extractor/constants"
	"github.com/joseph-ayodele/timetable-extractor/internal/entity"
)

// JobStore persists extraction jobs. Implementations return copies; callers never share
// state with the store. Missing ids yield common.ErrNotFound.
type JobStore interface {
	Create(ctx context.Context, job *entity.ExtractionJob) error
	Update(ctx context.Context, job *entity.ExtractionJob) error
	Get(ctx context.Context, id string) (*entity.ExtractionJob, error)
	List(ctx context.Context, filter JobFilter) ([]*entity.ExtractionJob, error)
	// DeleteTerminalBefore removes COMPLETED and FAILED jobs last updated before t,
	// together with their results, and returns how many jobs were removed.
	DeleteTerminalBefore(ctx context.Context, t time.Time) (int, error)
}

// ResultStore holds finalized documents keyed by job id.
type ResultStore interface {
	SaveResult(ctx context.Context, jobID string, doc *entity.TimetableDocument) error
	GetResult(ctx context.Context, jobID string) (*entity.TimetableDocument, error)
}

// Store is what the daemon wires: jobs plus their results.
type Store interface {
	JobStore
	ResultStore
	Close() error
}

// JobFilter narrows List. Empty States matches every state; Limit <= 0 means no limit.
// Jobs come back newest first.
type JobFilter struct {
	States []constants.JobStatus
	Limit  int
}

func (f JobFilter) matches(j *entity.ExtractionJob) bool {
	if len(f.States) == 0 {
		return true
	}
	for _, s := range f.States {
		if j.Status == s {
			return true
		}
	}
	return false
}

var terminalStates = []constants.JobStatus{constants.JobStatusCompleted, constants.JobStatusFailed}
