// Package server exposes the extraction queue over gRPC.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/timetable-extractor/constants"
	"github.com/joseph-ayodele/timetable-extractor/internal/async"
	"github.com/joseph-ayodele/timetable-extractor/internal/common"
	"github.com/joseph-ayodele/timetable-extractor/internal/entity"
	"github.com/joseph-ayodele/timetable-extractor/internal/metrics"
	"github.com/joseph-ayodele/timetable-extractor/internal/repository"
)

// JobQueue is the part of the queue the service needs.
type JobQueue interface {
	Submit(ctx context.Context, req async.SubmitRequest) (string, error)
	Status(ctx context.Context, id string) (entity.JobStatusView, error)
	List(ctx context.Context, filter repository.JobFilter) ([]entity.JobStatusView, error)
	Depth() int
}

// ExtractionService implements timetable.v1.ExtractionService with Struct payloads.
type ExtractionService struct {
	queue   JobQueue
	metrics *metrics.Collector
	logger  *slog.Logger
}

func NewExtractionService(queue JobQueue, collector *metrics.Collector, logger *slog.Logger) *ExtractionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractionService{queue: queue, metrics: collector, logger: logger}
}

// Submit expects file_path and optionally media_type, original_filename and size.
func (s *ExtractionService) Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	path := strings.TrimSpace(f["file_path"].GetStringValue())
	if path == "" {
		s.logger.Error("submit request missing file_path")
		return nil, common.InvalidArgumentError("file_path is required")
	}
	id, err := s.queue.Submit(ctx, async.SubmitRequest{
		FilePath:         path,
		MediaType:        f["media_type"].GetStringValue(),
		OriginalFilename: f["original_filename"].GetStringValue(),
		Size:             int64(f["size"].GetNumberValue()),
	})
	if err != nil {
		s.logger.Warn("submit failed", "file_path", path, "error", err)
		return nil, common.ToStatus(err)
	}
	return structpb.NewStruct(map[string]any{"job_id": id})
}

// GetStatus expects job_id and returns the job status view.
func (s *ExtractionService) GetStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := strings.TrimSpace(req.GetFields()["job_id"].GetStringValue())
	if id == "" {
		return nil, common.InvalidArgumentError("job_id is required")
	}
	if v := common.UUID("job_id", id); v != nil {
		return nil, common.InvalidArgumentError(v.Error())
	}
	view, err := s.queue.Status(ctx, id)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return toStruct(view)
}

// ListJobs accepts an optional state and limit.
func (s *ExtractionService) ListJobs(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	var filter repository.JobFilter
	if state := strings.ToUpper(strings.TrimSpace(f["state"].GetStringValue())); state != "" {
		st := constants.JobStatus(state)
		switch st {
		case constants.JobStatusPending, constants.JobStatusProcessing, constants.JobStatusCompleted, constants.JobStatusFailed:
			filter.States = []constants.JobStatus{st}
		default:
			return nil, common.InvalidArgumentErrorf("unknown state %q", state)
		}
	}
	filter.Limit = int(f["limit"].GetNumberValue())

	views, err := s.queue.List(ctx, filter)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	// results stay behind GetStatus
	for i := range views {
		views[i].Result = nil
	}
	return toStruct(map[string]any{"jobs": views})
}

// GetStats returns operation metrics and the queue depth.
func (s *ExtractionService) GetStats(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return toStruct(map[string]any{
		"queue_depth": s.queue.Depth(),
		"metrics":     s.metrics.Snapshot(),
	})
}

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, common.InternalErrorf("encode response: %v", err)
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(b); err != nil {
		return nil, common.InternalErrorf("encode response: %v", err)
	}
	return out, nil
}

func fromStruct(s *structpb.Struct, v any) error {
	b, err := s.MarshalJSON()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
