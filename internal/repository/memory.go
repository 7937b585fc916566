package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/joseph-ayodele/timetable-extractor/internal/common"
	"github.com/joseph-ayodele/timetable-extractor/internal/entity"
)

// MemoryStore keeps jobs and results in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	jobs    map[string]*entity.ExtractionJob
	results map[string]*entity.TimetableDocument
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    make(map[string]*entity.ExtractionJob),
		results: make(map[string]*entity.TimetableDocument),
	}
}

func (s *MemoryStore) Create(_ context.Context, job *entity.ExtractionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("%w: job %s already exists", common.ErrInvalidInput, job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) Update(_ context.Context, job *entity.ExtractionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return fmt.Errorf("%w: job %s", common.ErrNotFound, job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*entity.ExtractionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", common.ErrNotFound, id)
	}
	out := j.Clone()
	if out.Result == nil {
		out.Result = s.results[id].Clone()
	}
	return out, nil
}

func (s *MemoryStore) List(_ context.Context, filter JobFilter) ([]*entity.ExtractionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entity.ExtractionJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		if filter.matches(j) {
			out = append(out, j.Clone())
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].CreatedAt.After(out[k].CreatedAt)
		}
		return out[i].ID < out[k].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) DeleteTerminalBefore(_ context.Context, t time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, j := range s.jobs {
		if j.Status.IsTerminal() && j.UpdatedAt.Before(t) {
			delete(s.jobs, id)
			delete(s.results, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) SaveResult(_ context.Context, jobID string, doc *entity.TimetableDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[jobID] = doc.Clone()
	return nil
}

func (s *MemoryStore) GetResult(_ context.Context, jobID string) (*entity.TimetableDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.results[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: result for job %s", common.ErrNotFound, jobID)
	}
	return doc.Clone(), nil
}

func (s *MemoryStore) Close() error { return nil }
