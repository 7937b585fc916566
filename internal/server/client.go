package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/timetable-extractor/internal/async"
	"github.com/joseph-ayodele/timetable-extractor/internal/entity"
	"github.com/joseph-ayodele/timetable-extractor/internal/metrics"
)

// Client calls ExtractionService over an existing connection.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) invoke(ctx context.Context, method string, in map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Submit(ctx context.Context, req async.SubmitRequest) (string, error) {
	out, err := c.invoke(ctx, "Submit", map[string]any{
		"file_path":         req.FilePath,
		"media_type":        req.MediaType,
		"original_filename": req.OriginalFilename,
		"size":              float64(req.Size),
	})
	if err != nil {
		return "", err
	}
	return out.GetFields()["job_id"].GetStringValue(), nil
}

func (c *Client) Status(ctx context.Context, id string) (entity.JobStatusView, error) {
	var view entity.JobStatusView
	out, err := c.invoke(ctx, "GetStatus", map[string]any{"job_id": id})
	if err != nil {
		return view, err
	}
	err = fromStruct(out, &view)
	return view, err
}

// List returns jobs newest first. An empty state lists every job.
func (c *Client) List(ctx context.Context, state string, limit int) ([]entity.JobStatusView, error) {
	out, err := c.invoke(ctx, "ListJobs", map[string]any{"state": state, "limit": float64(limit)})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Jobs []entity.JobStatusView `json:"jobs"`
	}
	err = fromStruct(out, &resp)
	return resp.Jobs, err
}

// Stats is the GetStats response.
type Stats struct {
	QueueDepth int              `json:"queue_depth"`
	Metrics    metrics.Snapshot `json:"metrics"`
}

func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	out, err := c.invoke(ctx, "GetStats", map[string]any{})
	if err != nil {
		return st, err
	}
	err = fromStruct(out, &st)
	return st, err
}
