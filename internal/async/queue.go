// Package async runs extraction jobs on a bounded worker pool with sliding-window
// admission, whole-job retry and retention purging.
package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/timetable-extractor/constants"
	"github.com/joseph-ayodele/timetable-extractor/internal/common"
	"github.com/joseph-ayodele/timetable-extractor/internal/entity"
	"github.com/joseph-ayodele/timetable-extractor/internal/metrics"
	"github.com/joseph-ayodele/timetable-extractor/internal/pipeline"
	"github.com/joseph-ayodele/timetable-extractor/internal/repository"
)

// Runner executes one attempt of a job.
type Runner interface {
	Process(ctx context.Context, job *entity.ExtractionJob, report pipeline.ProgressFunc) (*pipeline.Outcome, error)
}

// SubmitRequest is what the upload collaborator hands over.
type SubmitRequest struct {
	FilePath         string
	MediaType        string
	OriginalFilename string
	Size             int64
}

type Queue struct {
	store   repository.JobStore
	runner  Runner
	logger  *slog.Logger
	metrics *metrics.Collector
	limiter *Window

	workers     int
	queueSize   int
	timeout     time.Duration
	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration
	retention   time.Duration
	purgeEvery  time.Duration
	grace       time.Duration
	now         func() time.Time

	ch      chan string
	wg      sync.WaitGroup
	janitor sync.WaitGroup
	stop    chan struct{}

	// ctx is cancelled when shutdown exceeds its grace period.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.queueSize = n
		}
	}
}

// WithProcessTimeout bounds a single attempt.
func WithProcessTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithRetry sets the attempt budget and the capped exponential delay between attempts.
func WithRetry(maxAttempts int, base, max time.Duration) Option {
	return func(q *Queue) {
		if maxAttempts > 0 {
			q.maxAttempts = maxAttempts
		}
		if base > 0 {
			q.backoffBase = base
		}
		if max > 0 {
			q.backoffMax = max
		}
	}
}

// WithAdmission limits job starts to limit per window. limit <= 0 disables the limit.
func WithAdmission(limit int, window time.Duration) Option {
	return func(q *Queue) {
		q.limiter = NewWindow(limit, window)
	}
}

// WithRetention purges terminal jobs older than retention every interval.
// A zero interval disables the janitor.
func WithRetention(retention, interval time.Duration) Option {
	return func(q *Queue) {
		q.retention = retention
		q.purgeEvery = interval
	}
}

func WithShutdownGrace(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.grace = d
		}
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(q *Queue) { q.metrics = c }
}

// WithConfig applies every queue setting from cfg.
func WithConfig(cfg common.QueueConfig) Option {
	return func(q *Queue) {
		for _, o := range []Option{
			WithWorkers(cfg.Workers),
			WithQueueSize(cfg.QueueSize),
			WithProcessTimeout(cfg.JobTimeout),
			WithRetry(cfg.MaxAttempts, cfg.BackoffBase, cfg.BackoffMax),
			WithAdmission(cfg.WindowJobs, cfg.Window),
			WithRetention(cfg.Retention, cfg.PurgeInterval),
			WithShutdownGrace(cfg.ShutdownGrace),
		} {
			o(q)
		}
	}
}

// NewQueue starts the workers and, when retention is configured, the purge janitor.
func NewQueue(store repository.JobStore, runner Runner, logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		store:       store,
		runner:      runner,
		logger:      logger,
		limiter:     NewWindow(10, time.Minute),
		workers:     3,
		queueSize:   256,
		timeout:     10 * time.Minute,
		maxAttempts: 3,
		backoffBase: 2 * time.Second,
		backoffMax:  30 * time.Second,
		grace:       30 * time.Second,
		now:         time.Now,
		stop:        make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.ch = make(chan string, q.queueSize)
	q.ctx, q.cancel = context.WithCancel(context.Background())
	q.start()
	return q
}

func (q *Queue) start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func(workerID int) {
			defer q.wg.Done()
			q.logger.Info("worker started", "worker_id", workerID)
			for id := range q.ch {
				q.run(workerID, id)
			}
			q.logger.Info("worker stopped", "worker_id", workerID)
		}(i + 1)
	}

	if q.retention > 0 && q.purgeEvery > 0 {
		q.janitor.Add(1)
		go func() {
			defer q.janitor.Done()
			t := time.NewTicker(q.purgeEvery)
			defer t.Stop()
			for {
				select {
				case <-q.stop:
					return
				case <-t.C:
					if _, err := q.Purge(q.ctx); err != nil {
						q.logger.Warn("queue.purge.failed", "error", err)
					}
				}
			}
		}()
	}
}

// Submit validates the request, records a PENDING job and enqueues it. An empty media
// type is inferred from the file extension. Submit blocks while the queue is full.
func (q *Queue) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if req.MediaType == "" {
		req.MediaType = string(constants.MapExtToFormat(filepath.Ext(req.FilePath)))
	}
	v := common.NewValidator().
		Field("file_path", req.FilePath, common.Required, common.FileExists).
		Field("media_type", req.MediaType, common.Required, common.SupportedMediaType).
		Field("original_filename", req.OriginalFilename, common.MaxLength(255))
	if err := v.Error(); err != nil {
		return "", err
	}
	mediaType, _ := constants.ParseMediaType(req.MediaType)

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("cannot submit: queue is shutting down", "file_path", req.FilePath)
		return "", common.ErrQueueClosed
	}

	now := q.now()
	job := &entity.ExtractionJob{
		ID:               uuid.NewString(),
		FilePath:         req.FilePath,
		OriginalFilename: req.OriginalFilename,
		MediaType:        mediaType,
		Size:             req.Size,
		Status:           constants.JobStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := q.store.Create(ctx, job); err != nil {
		return "", err
	}

	if err := q.enqueue(ctx, job.ID); err != nil {
		job.Status = constants.JobStatusFailed
		job.Error = "submission abandoned: " + err.Error()
		job.UpdatedAt = q.now()
		job.FinishedAt = &job.UpdatedAt
		q.save(job)
		return "", err
	}
	q.logger.Info("queue.job.submitted", "job_id", job.ID, "media_type", mediaType, "file", req.OriginalFilename)
	return job.ID, nil
}

// enqueue must be called with q.mu read-locked.
func (q *Queue) enqueue(ctx context.Context, id string) error {
	select {
	case q.ch <- id:
		return nil
	default:
	}
	q.logger.Warn("queue full, applying backpressure", "job_id", id)
	select {
	case q.ch <- id:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the polling view of a job.
func (q *Queue) Status(ctx context.Context, id string) (entity.JobStatusView, error) {
	job, err := q.store.Get(ctx, id)
	if err != nil {
		return entity.JobStatusView{}, err
	}
	return job.View(), nil
}

// List returns jobs matching filter, newest first.
func (q *Queue) List(ctx context.Context, filter repository.JobFilter) ([]entity.JobStatusView, error) {
	jobs, err := q.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]entity.JobStatusView, len(jobs))
	for i, j := range jobs {
		out[i] = j.View()
	}
	return out, nil
}

// Depth is the number of jobs waiting for a worker.
func (q *Queue) Depth() int { return len(q.ch) }

// Recover re-enqueues jobs a previous process left PENDING or PROCESSING.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	jobs, err := q.store.List(ctx, repository.JobFilter{
		States: []constants.JobStatus{constants.JobStatusPending, constants.JobStatusProcessing},
	})
	if err != nil {
		return 0, err
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return 0, common.ErrQueueClosed
	}
	for i := len(jobs) - 1; i >= 0; i-- {
		j := jobs[i]
		if j.Status == constants.JobStatusProcessing {
			j.Status = constants.JobStatusPending
			j.UpdatedAt = q.now()
			q.save(j)
		}
		if err := q.enqueue(ctx, j.ID); err != nil {
			return len(jobs) - 1 - i, err
		}
	}
	if len(jobs) > 0 {
		q.logger.Info("queue.recovered", "count", len(jobs))
	}
	return len(jobs), nil
}

// Purge deletes terminal jobs whose last update is older than the retention window.
func (q *Queue) Purge(ctx context.Context) (int, error) {
	if q.retention <= 0 {
		return 0, nil
	}
	n, err := q.store.DeleteTerminalBefore(ctx, q.now().Add(-q.retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		q.logger.Info("queue.purged", "count", n, "retention", q.retention)
	}
	return n, nil
}

func (q *Queue) run(workerID int, id string) {
	start := time.Now()
	ctx := context.WithoutCancel(q.ctx)
	job, err := q.store.Get(ctx, id)
	if err != nil {
		q.logger.Error("queue.job.load_failed", "worker_id", workerID, "job_id", id, "error", err)
		return
	}
	if job.Status.IsTerminal() {
		return
	}
	log := q.logger.With("worker_id", workerID, "job_id", id)

	if err := q.limiter.Wait(q.ctx); err != nil {
		q.fail(job, fmt.Errorf("%w: %w", common.ErrQueueClosed, err))
		log.Warn("queue.job.abandoned", "error", err)
		return
	}

	started := q.now()
	job.Status = constants.JobStatusProcessing
	job.StartedAt = &started
	job.UpdatedAt = started
	q.save(job)
	log.Info("queue.job.start", "media_type", job.MediaType)

	var outcome *pipeline.Outcome
	op := func() error {
		job.Attempts++
		job.UpdatedAt = q.now()
		q.save(job)

		out, err := q.attempt(job)
		if err == nil {
			outcome = out
			return nil
		}
		// provider failures, fatal or not, stay retryable: another attempt may reach a
		// different provider or land after a rate-limit window
		if errors.Is(err, common.ErrInvalidInput) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("queue.job.retry", "attempt", job.Attempts, "error", err, "wait_ms", wait.Milliseconds())
	}

	err = backoff.RetryNotify(op, q.retryPolicy(), notify)
	q.metrics.Since(metrics.OpJob, start, err)
	if err != nil {
		q.fail(job, err)
		log.Error("queue.job.failed", "attempts", job.Attempts, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return
	}

	finished := q.now()
	job.Status = constants.JobStatusCompleted
	job.Progress = constants.ProgressPersisted
	job.Error = ""
	job.Method = outcome.Document.Method
	job.Result = outcome.Document
	job.UpdatedAt = finished
	job.FinishedAt = &finished
	q.save(job)
	log.Info("queue.job.completed", "attempts", job.Attempts, "method", job.Method,
		"confidence", outcome.Document.Confidence, "elapsed_ms", time.Since(start).Milliseconds())
}

func (q *Queue) retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.backoffBase
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = q.backoffMax
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(q.maxAttempts-1)), q.ctx)
}

// attempt runs the pipeline once under the per-attempt timeout. A panic fails the
// attempt, not the worker.
func (q *Queue) attempt(job *entity.ExtractionJob) (out *pipeline.Outcome, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", common.ErrInternal, r)
			q.logger.Error("queue.job.panic", "job_id", job.ID, "attempt", job.Attempts,
				"panic", r, "stack", string(debug.Stack()))
		}
		q.metrics.Since(metrics.OpJobAttempt, start, err)
	}()

	ctx, cancel := context.WithTimeout(q.ctx, q.timeout)
	defer cancel()
	ctx = common.WithAttempt(common.WithJobID(ctx, job.ID), job.Attempts)

	report := func(p int) {
		if p <= job.Progress {
			return
		}
		job.Progress = min(p, 100)
		job.UpdatedAt = q.now()
		q.save(job)
	}
	return q.runner.Process(ctx, job.Clone(), report)
}

func (q *Queue) fail(job *entity.ExtractionJob, cause error) {
	finished := q.now()
	job.Status = constants.JobStatusFailed
	job.Error = cause.Error()
	job.Result = nil
	job.UpdatedAt = finished
	job.FinishedAt = &finished
	q.save(job)
}

// save writes job state even after a forced shutdown.
func (q *Queue) save(job *entity.ExtractionJob) {
	if err := q.store.Update(context.WithoutCancel(q.ctx), job); err != nil {
		q.logger.Error("queue.job.save_failed", "job_id", job.ID, "status", job.Status, "error", err)
	}
}

// Shutdown stops accepting jobs and waits for queued and running jobs. When ctx ends
// or the grace period passes first, running jobs are cancelled.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.ch)
	close(q.stop)
	q.mu.Unlock()
	q.janitor.Wait()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	grace := time.NewTimer(q.grace)
	defer grace.Stop()
	select {
	case <-done:
		q.cancel()
		q.logger.Info("queue drained, shutdown complete")
		return nil
	case <-ctx.Done():
	case <-grace.C:
	}

	q.logger.Warn("shutdown grace exceeded, cancelling running jobs", "grace", q.grace)
	q.cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return fmt.Errorf("%w: shutdown forced after %s", common.ErrQueueClosed, q.grace)
}
