package entity

import (
	"time"

	"github.com/joseph-ayodele/timetable-extractor/constants"
)

// ExtractionJob is one submitted document moving through the pipeline.
type ExtractionJob struct {
	ID               string              `json:"id"`
	FilePath         string              `json:"file_path"`
	OriginalFilename string              `json:"original_filename,omitempty"`
	MediaType        constants.MediaType `json:"media_type"`
	Size             int64               `json:"size,omitempty"`
	Status           constants.JobStatus `json:"status"`
	Progress         int                 `json:"progress"`
	Attempts         int                 `json:"attempts"`
	Error            string              `json:"error,omitempty"`
	Method           string              `json:"method,omitempty"`
	Result           *TimetableDocument  `json:"result,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
	StartedAt        *time.Time          `json:"started_at,omitempty"`
	FinishedAt       *time.Time          `json:"finished_at,omitempty"`
}

// Clone returns a copy that shares no mutable state with j.
func (j *ExtractionJob) Clone() *ExtractionJob {
	if j == nil {
		return nil
	}
	cp := *j
	if j.Result != nil {
		cp.Result = j.Result.Clone()
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}

// JobStatusView is what callers polling a job see. Result is set only when COMPLETED.
type JobStatusView struct {
	ID           string              `json:"id"`
	State        constants.JobStatus `json:"state"`
	Progress     int                 `json:"progress"`
	AttemptsMade int                 `json:"attempts_made"`
	Error        string              `json:"error,omitempty"`
	Result       *TimetableDocument  `json:"result,omitempty"`
}

// View projects a job onto its status view.
func (j *ExtractionJob) View() JobStatusView {
	v := JobStatusView{
		ID:           j.ID,
		State:        j.Status,
		Progress:     j.Progress,
		AttemptsMade: j.Attempts,
		Error:        j.Error,
	}
	if j.Status == constants.JobStatusCompleted && j.Result != nil {
		v.Result = j.Result.Clone()
	}
	return v
}
