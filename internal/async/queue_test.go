package async

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/timetable-extractor/constants"
	"github.com/joseph-ayodele/timetable-extractor/internal/common"
	"github.com/joseph-ayodele/timetable-extractor/internal/entity"
	"github.com/joseph-ayodele/timetable-extractor/internal/metrics"
	"github.com/joseph-ayodele/timetable-extractor/internal/pipeline"
	"github.com/joseph-ayodele/timetable-extractor/internal/repository"
)

type runnerFunc func(ctx context.Context, job *entity.ExtractionJob, report pipeline.ProgressFunc) (*pipeline.Outcome, error)

func (f runnerFunc) Process(ctx context.Context, job *entity.ExtractionJob, report pipeline.ProgressFunc) (*pipeline.Outcome, error) {
	return f(ctx, job, report)
}

func okOutcome() *pipeline.Outcome {
	return &pipeline.Outcome{Document: &entity.TimetableDocument{
		TeacherName: "Unknown",
		TimeBlocks:  []entity.TimeBlock{{Day: constants.Monday, StartTime: "08:00", EndTime: "09:00", Subject: "Mathematics"}},
		Method:      "pdf-text",
		Confidence:  80,
	}}
}

// failingTimes fails the first n attempts with a transient error.
func failingTimes(n int32, calls *atomic.Int32) runnerFunc {
	return func(_ context.Context, _ *entity.ExtractionJob, report pipeline.ProgressFunc) (*pipeline.Outcome, error) {
		report(constants.ProgressStarted)
		if calls.Add(1) <= n {
			return nil, errors.New("structure: model timeout")
		}
		report(constants.ProgressAcquired)
		report(constants.ProgressPersisted)
		return okOutcome(), nil
	}
}

// progressStore records every progress value written.
type progressStore struct {
	*repository.MemoryStore
	mu       sync.Mutex
	progress []int
}

func (s *progressStore) Update(ctx context.Context, job *entity.ExtractionJob) error {
	s.mu.Lock()
	s.progress = append(s.progress, job.Progress)
	s.mu.Unlock()
	return s.MemoryStore.Update(ctx, job)
}

func fastOptions() []Option {
	return []Option{
		WithWorkers(2),
		WithRetry(3, time.Millisecond, 5*time.Millisecond),
		WithAdmission(0, 0),
		WithShutdownGrace(2 * time.Second),
	}
}

func tempFile(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4"), 0o600))
	return p
}

func waitTerminal(t *testing.T, q *Queue, id string) entity.JobStatusView {
	t.Helper()
	var view entity.JobStatusView
	require.Eventually(t, func() bool {
		v, err := q.Status(context.Background(), id)
		require.NoError(t, err)
		view = v
		return v.State.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond)
	return view
}

func TestQueueRetryOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		failures  int32
		wantState constants.JobStatus
		wantCalls int32
	}{
		{"succeeds first time", 0, constants.JobStatusCompleted, 1},
		{"two transient failures then success", 2, constants.JobStatusCompleted, 3},
		{"fails every attempt", 3, constants.JobStatusFailed, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			collector := metrics.NewCollector()
			q := NewQueue(repository.NewMemoryStore(), failingTimes(tt.failures, &calls), nil,
				append(fastOptions(), WithMetrics(collector))...)
			defer q.Shutdown(context.Background())

			id, err := q.Submit(context.Background(), SubmitRequest{FilePath: tempFile(t, "tt.pdf"), MediaType: "application/pdf"})
			require.NoError(t, err)

			view := waitTerminal(t, q, id)
			assert.Equal(t, tt.wantState, view.State)
			assert.Equal(t, int(tt.wantCalls), view.AttemptsMade)
			assert.Equal(t, tt.wantCalls, calls.Load())

			if tt.wantState == constants.JobStatusCompleted {
				require.NotNil(t, view.Result)
				assert.Equal(t, 100, view.Progress)
				assert.Empty(t, view.Error)
			} else {
				assert.Nil(t, view.Result)
				assert.Contains(t, view.Error, "model timeout")
			}

			snap := collector.Snapshot()
			attempts, ok := snap.Get(metrics.OpJobAttempt)
			require.True(t, ok)
			assert.Equal(t, int64(tt.wantCalls), attempts.Count)
			assert.Equal(t, int64(min(tt.failures, 3)), attempts.Errors)
		})
	}
}

func TestQueuePermanentErrorsSkipRetry(t *testing.T) {
	var calls atomic.Int32
	runner := runnerFunc(func(context.Context, *entity.ExtractionJob, pipeline.ProgressFunc) (*pipeline.Outcome, error) {
		calls.Add(1)
		return nil, common.ErrInvalidInput
	})
	q := NewQueue(repository.NewMemoryStore(), runner, nil, fastOptions()...)
	defer q.Shutdown(context.Background())

	id, err := q.Submit(context.Background(), SubmitRequest{FilePath: tempFile(t, "a.png")})
	require.NoError(t, err)
	view := waitTerminal(t, q, id)
	assert.Equal(t, constants.JobStatusFailed, view.State)
	assert.Equal(t, 1, view.AttemptsMade)
	assert.Equal(t, int32(1), calls.Load())
}

func TestQueueRetriesProviderFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"rate limited", errors.New("structure: structuring model call: API returned 429: rate limit exceeded")},
		{"quota", errors.New("structure: quota exceeded for this minute")},
		{"status digits in file name", errors.New("acquire: all providers failed: local: prepare image: open /uploads/room401_timetable.png: no such file")},
		{"auth failure", fmt.Errorf("acquire: %w", errors.New("fatal API error: HTTP 401 unauthorized"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			runner := runnerFunc(func(context.Context, *entity.ExtractionJob, pipeline.ProgressFunc) (*pipeline.Outcome, error) {
				if calls.Add(1) <= 2 {
					return nil, tt.err
				}
				return okOutcome(), nil
			})
			q := NewQueue(repository.NewMemoryStore(), runner, nil, fastOptions()...)
			defer q.Shutdown(context.Background())

			id, err := q.Submit(context.Background(), SubmitRequest{FilePath: tempFile(t, "room401_timetable.png")})
			require.NoError(t, err)
			view := waitTerminal(t, q, id)
			assert.Equal(t, constants.JobStatusCompleted, view.State)
			assert.Equal(t, 3, view.AttemptsMade)
			assert.Equal(t, int32(3), calls.Load())
		})
	}
}

func TestQueueRecoversPanics(t *testing.T) {
	var calls atomic.Int32
	runner := runnerFunc(func(context.Context, *entity.ExtractionJob, pipeline.ProgressFunc) (*pipeline.Outcome, error) {
		if calls.Add(1) == 1 {
			panic("nil map write")
		}
		return okOutcome(), nil
	})
	q := NewQueue(repository.NewMemoryStore(), runner, nil, fastOptions()...)
	defer q.Shutdown(context.Background())

	id, err := q.Submit(context.Background(), SubmitRequest{FilePath: tempFile(t, "a.pdf")})
	require.NoError(t, err)
	view := waitTerminal(t, q, id)
	assert.Equal(t, constants.JobStatusCompleted, view.State)
	assert.Equal(t, 2, view.AttemptsMade)
}

func TestQueueProgressIsMonotonic(t *testing.T) {
	store := &progressStore{MemoryStore: repository.NewMemoryStore()}
	runner := runnerFunc(func(_ context.Context, job *entity.ExtractionJob, report pipeline.ProgressFunc) (*pipeline.Outcome, error) {
		report(constants.ProgressStarted)
		report(constants.ProgressAcquired)
		if job.Attempts == 1 {
			return nil, errors.New("structure: bad json")
		}
		report(constants.ProgressStructured)
		report(constants.ProgressPersisted)
		return okOutcome(), nil
	})
	q := NewQueue(store, runner, nil, fastOptions()...)
	defer q.Shutdown(context.Background())

	id, err := q.Submit(context.Background(), SubmitRequest{FilePath: tempFile(t, "a.pdf")})
	require.NoError(t, err)
	waitTerminal(t, q, id)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.NotEmpty(t, store.progress)
	for i := 1; i < len(store.progress); i++ {
		assert.GreaterOrEqual(t, store.progress[i], store.progress[i-1], "progress %v", store.progress)
	}
	assert.Equal(t, 100, store.progress[len(store.progress)-1])
}

func TestQueueIsolatesJobs(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, job *entity.ExtractionJob, _ pipeline.ProgressFunc) (*pipeline.Outcome, error) {
		if filepath.Base(job.FilePath) == "bad.pdf" {
			return nil, common.ErrInvalidInput
		}
		return okOutcome(), nil
	})
	q := NewQueue(repository.NewMemoryStore(), runner, nil, fastOptions()...)
	defer q.Shutdown(context.Background())

	bad, err := q.Submit(context.Background(), SubmitRequest{FilePath: tempFile(t, "bad.pdf")})
	require.NoError(t, err)
	good, err := q.Submit(context.Background(), SubmitRequest{FilePath: tempFile(t, "good.pdf")})
	require.NoError(t, err)

	assert.Equal(t, constants.JobStatusFailed, waitTerminal(t, q, bad).State)
	assert.Equal(t, constants.JobStatusCompleted, waitTerminal(t, q, good).State)
}

func TestQueueSubmitValidation(t *testing.T) {
	q := NewQueue(repository.NewMemoryStore(), failingTimes(0, new(atomic.Int32)), nil, fastOptions()...)
	defer q.Shutdown(context.Background())

	tests := []struct {
		name string
		req  SubmitRequest
	}{
		{"missing path", SubmitRequest{MediaType: "PDF"}},
		{"missing file", SubmitRequest{FilePath: "/does/not/exist.pdf", MediaType: "PDF"}},
		{"unsupported type", SubmitRequest{FilePath: tempFile(t, "notes.txt")}},
		{"bad declared type", SubmitRequest{FilePath: tempFile(t, "tt.pdf"), MediaType: "audio/mpeg"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := q.Submit(context.Background(), tt.req)
			assert.ErrorIs(t, err, common.ErrValidation)
		})
	}

	_, err := q.Status(context.Background(), "unknown")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestQueueShutdownDrains(t *testing.T) {
	var calls atomic.Int32
	runner := runnerFunc(func(context.Context, *entity.ExtractionJob, pipeline.ProgressFunc) (*pipeline.Outcome, error) {
		time.Sleep(10 * time.Millisecond)
		calls.Add(1)
		return okOutcome(), nil
	})
	q := NewQueue(repository.NewMemoryStore(), runner, nil, append(fastOptions(), WithWorkers(1))...)

	var ids []string
	for i := 0; i < 4; i++ {
		id, err := q.Submit(context.Background(), SubmitRequest{FilePath: tempFile(t, "a.pdf")})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, q.Shutdown(context.Background()))
	assert.Equal(t, int32(4), calls.Load())
	for _, id := range ids {
		v, err := q.Status(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, constants.JobStatusCompleted, v.State)
	}

	_, err := q.Submit(context.Background(), SubmitRequest{FilePath: tempFile(t, "late.pdf")})
	assert.ErrorIs(t, err, common.ErrQueueClosed)
	assert.NoError(t, q.Shutdown(context.Background()), "second shutdown is a no-op")
}

func TestQueueShutdownForcesAfterGrace(t *testing.T) {
	started := make(chan struct{})
	runner := runnerFunc(func(ctx context.Context, _ *entity.ExtractionJob, _ pipeline.ProgressFunc) (*pipeline.Outcome, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	q := NewQueue(repository.NewMemoryStore(), runner, nil,
		WithWorkers(1), WithRetry(3, time.Millisecond, time.Millisecond), WithShutdownGrace(20*time.Millisecond))

	id, err := q.Submit(context.Background(), SubmitRequest{FilePath: tempFile(t, "a.pdf")})
	require.NoError(t, err)
	<-started

	err = q.Shutdown(context.Background())
	assert.ErrorIs(t, err, common.ErrQueueClosed)

	v, err := q.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, v.State)
	assert.Equal(t, 1, v.AttemptsMade, "cancellation stops the retry loop")
}

func TestQueueAdmissionLimit(t *testing.T) {
	var calls atomic.Int32
	runner := runnerFunc(func(context.Context, *entity.ExtractionJob, pipeline.ProgressFunc) (*pipeline.Outcome, error) {
		calls.Add(1)
		return okOutcome(), nil
	})
	q := NewQueue(repository.NewMemoryStore(), runner, nil,
		WithWorkers(3), WithAdmission(2, time.Hour), WithShutdownGrace(20*time.Millisecond))

	for i := 0; i < 3; i++ {
		_, err := q.Submit(context.Background(), SubmitRequest{FilePath: tempFile(t, "a.pdf")})
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(2), calls.Load(), "third start waits for the window")

	_ = q.Shutdown(context.Background())
	pending, err := q.List(context.Background(), repository.JobFilter{States: []constants.JobStatus{constants.JobStatusFailed}})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Contains(t, pending[0].Error, common.ErrQueueClosed.Error())
}

func TestQueuePurge(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	store := repository.NewMemoryStore()
	q := NewQueue(store, failingTimes(0, new(atomic.Int32)), nil,
		append(fastOptions(), WithRetention(24*time.Hour, 0), func(q *Queue) { q.now = clock.now })...)
	defer q.Shutdown(context.Background())

	id, err := q.Submit(context.Background(), SubmitRequest{FilePath: tempFile(t, "a.pdf")})
	require.NoError(t, err)
	waitTerminal(t, q, id)

	n, err := q.Purge(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "inside retention")

	clock.t = clock.t.Add(25 * time.Hour)
	n, err = q.Purge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = q.Status(context.Background(), id)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestQueueRecover(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()
	now := time.Now()
	for _, j := range []*entity.ExtractionJob{
		{ID: "pending", FilePath: "/x.pdf", MediaType: constants.PDF, Status: constants.JobStatusPending, CreatedAt: now},
		{ID: "stuck", FilePath: "/y.pdf", MediaType: constants.PDF, Status: constants.JobStatusProcessing, Attempts: 1, CreatedAt: now.Add(time.Second)},
		{ID: "done", FilePath: "/z.pdf", MediaType: constants.PDF, Status: constants.JobStatusCompleted, CreatedAt: now},
	} {
		require.NoError(t, store.Create(ctx, j))
	}
	q := NewQueue(store, failingTimes(0, new(atomic.Int32)), nil, fastOptions()...)
	defer q.Shutdown(ctx)

	n, err := q.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, constants.JobStatusCompleted, waitTerminal(t, q, "pending").State)
	assert.Equal(t, constants.JobStatusCompleted, waitTerminal(t, q, "stuck").State)
}
