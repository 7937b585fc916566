package repository

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/timetable-extractor/constants"
	"github.com/joseph-ayodele/timetable-extractor/internal/common"
	"github.com/joseph-ayodele/timetable-extractor/internal/entity"
)

const (
	tableJobs       = "extraction_jobs"
	tableTimetables = "timetables"
)

var jobColumns = []string{
	"id", "file_path", "original_filename", "media_type", "size", "status", "progress",
	"attempts", "last_error", "method", "created_at", "updated_at", "started_at", "finished_at",
}

// SQLStore persists jobs and results through ent's SQL builder.
type SQLStore struct {
	db  *DB
	b   *sql.DialectBuilder
	log *slog.Logger
}

// NewSQLStore migrates the schema and returns a store over db.
func NewSQLStore(ctx context.Context, db *DB, log *slog.Logger) (*SQLStore, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := db.Migrate(ctx); err != nil {
		return nil, err
	}
	return &SQLStore{db: db, b: sql.Dialect(db.Dialect), log: log}, nil
}

func (s *SQLStore) Create(ctx context.Context, job *entity.ExtractionJob) error {
	query, args := s.b.Insert(tableJobs).
		Columns(jobColumns...).
		Values(jobValues(job)...).
		Query()
	if _, err := s.db.SQL.ExecContext(ctx, query, args...); err != nil {
		s.log.Error("extraction_job create failed", "job_id", job.ID, "err", err)
		return fmt.Errorf("%w: create job: %w", common.ErrDatabase, err)
	}
	return nil
}

func (s *SQLStore) Update(ctx context.Context, job *entity.ExtractionJob) error {
	query, args := s.b.Update(tableJobs).
		Set("status", string(job.Status)).
		Set("progress", job.Progress).
		Set("attempts", job.Attempts).
		Set("last_error", job.Error).
		Set("method", job.Method).
		Set("updated_at", toMillis(job.UpdatedAt)).
		Set("started_at", nullMillis(job.StartedAt)).
		Set("finished_at", nullMillis(job.FinishedAt)).
		Where(sql.EQ("id", job.ID)).
		Query()
	res, err := s.db.SQL.ExecContext(ctx, query, args...)
	if err != nil {
		s.log.Error("extraction_job update failed", "job_id", job.ID, "err", err)
		return fmt.Errorf("%w: update job: %w", common.ErrDatabase, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: job %s", common.ErrNotFound, job.ID)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*entity.ExtractionJob, error) {
	query, args := s.b.Select(jobColumns...).
		From(s.b.Table(tableJobs)).
		Where(sql.EQ("id", id)).
		Query()
	rows, err := s.db.SQL.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: get job: %w", common.ErrDatabase, err)
	}
	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: job %s", common.ErrNotFound, id)
	}
	job := jobs[0]
	if job.Status == constants.JobStatusCompleted {
		doc, err := s.GetResult(ctx, id)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		job.Result = doc
	}
	return job, nil
}

func (s *SQLStore) List(ctx context.Context, filter JobFilter) ([]*entity.ExtractionJob, error) {
	sel := s.b.Select(jobColumns...).
		From(s.b.Table(tableJobs)).
		OrderBy(sql.Desc("created_at"), sql.Asc("id"))
	if len(filter.States) > 0 {
		sel.Where(sql.In("status", statusArgs(filter.States)...))
	}
	if filter.Limit > 0 {
		sel.Limit(filter.Limit)
	}
	query, args := sel.Query()
	rows, err := s.db.SQL.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list jobs: %w", common.ErrDatabase, err)
	}
	return scanJobs(rows)
}

func (s *SQLStore) DeleteTerminalBefore(ctx context.Context, t time.Time) (int, error) {
	query, args := s.b.Select("id").
		From(s.b.Table(tableJobs)).
		Where(sql.And(
			sql.In("status", statusArgs(terminalStates)...),
			sql.LT("updated_at", toMillis(t)),
		)).
		Query()
	rows, err := s.db.SQL.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: select expired jobs: %w", common.ErrDatabase, err)
	}
	var ids []any
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("%w: scan expired job: %w", common.ErrDatabase, err)
		}
		ids = append(ids, id)
	}
	if err := errors.Join(rows.Err(), rows.Close()); err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin purge: %w", common.ErrDatabase, err)
	}
	for _, table := range []struct{ name, key string }{{tableTimetables, "job_id"}, {tableJobs, "id"}} {
		query, args := s.b.Delete(table.name).Where(sql.In(table.key, ids...)).Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("%w: purge %s: %w", common.ErrDatabase, table.name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit purge: %w", common.ErrDatabase, err)
	}
	s.log.Info("extraction_jobs purged", "count", len(ids))
	return len(ids), nil
}

// SaveResult upserts the finalized document for jobID.
func (s *SQLStore) SaveResult(ctx context.Context, jobID string, doc *entity.TimetableDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	query, args := s.b.Insert(tableTimetables).
		Columns("job_id", "teacher_name", "confidence", "method", "document", "created_at").
		Values(jobID, doc.TeacherName, doc.Confidence, doc.Method, string(body), toMillis(time.Now())).
		OnConflict(sql.ConflictColumns("job_id"), sql.ResolveWithNewValues()).
		Query()
	if _, err := s.db.SQL.ExecContext(ctx, query, args...); err != nil {
		s.log.Error("timetable save failed", "job_id", jobID, "err", err)
		return fmt.Errorf("%w: save result: %w", common.ErrDatabase, err)
	}
	return nil
}

func (s *SQLStore) GetResult(ctx context.Context, jobID string) (*entity.TimetableDocument, error) {
	query, args := s.b.Select("document").
		From(s.b.Table(tableTimetables)).
		Where(sql.EQ("job_id", jobID)).
		Query()
	var body string
	if err := s.db.SQL.QueryRowContext(ctx, query, args...).Scan(&body); err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, fmt.Errorf("%w: result for job %s", common.ErrNotFound, jobID)
		}
		return nil, fmt.Errorf("%w: get result: %w", common.ErrDatabase, err)
	}
	var doc entity.TimetableDocument
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &doc, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

func jobValues(j *entity.ExtractionJob) []any {
	return []any{
		j.ID, j.FilePath, j.OriginalFilename, string(j.MediaType), j.Size, string(j.Status), j.Progress,
		j.Attempts, j.Error, j.Method, toMillis(j.CreatedAt), toMillis(j.UpdatedAt),
		nullMillis(j.StartedAt), nullMillis(j.FinishedAt),
	}
}

func scanJobs(rows *stdsql.Rows) ([]*entity.ExtractionJob, error) {
	defer rows.Close()
	var out []*entity.ExtractionJob
	for rows.Next() {
		var (
			j                 entity.ExtractionJob
			mediaType, status string
			created, updated  int64
			started, finished stdsql.NullInt64
		)
		if err := rows.Scan(&j.ID, &j.FilePath, &j.OriginalFilename, &mediaType, &j.Size, &status, &j.Progress,
			&j.Attempts, &j.Error, &j.Method, &created, &updated, &started, &finished); err != nil {
			return nil, fmt.Errorf("%w: scan job: %w", common.ErrDatabase, err)
		}
		j.MediaType = constants.MediaType(mediaType)
		j.Status = constants.JobStatus(status)
		j.CreatedAt = fromMillis(created)
		j.UpdatedAt = fromMillis(updated)
		j.StartedAt = fromNullMillis(started)
		j.FinishedAt = fromNullMillis(finished)
		out = append(out, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	return out, nil
}

func statusArgs(states []constants.JobStatus) []any {
	out := make([]any, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func fromNullMillis(v stdsql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
