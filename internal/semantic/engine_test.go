package semantic

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/timetable-extractor/constants"
	"github.com/joseph-ayodele/timetable-extractor/internal/common"
	"github.com/joseph-ayodele/timetable-extractor/internal/entity"
	"github.com/joseph-ayodele/timetable-extractor/internal/metrics"
)

// hashEmbedder gives identical texts identical vectors and different texts
// pseudo-random ones.
type hashEmbedder struct {
	err error
}

func (h hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := h.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (h hashEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if h.err != nil {
		return nil, h.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		f := fnv.New64a()
		_, _ = f.Write([]byte(t))
		seed := f.Sum64()
		v := make([]float32, 16)
		for k := range v {
			seed = seed*6364136223846793005 + 1442695040888963407
			v[k] = float32(int64(seed>>33)%1000) / 1000
		}
		out[i] = v
	}
	return out, nil
}

func (hashEmbedder) Model() string  { return "hash" }
func (hashEmbedder) Dimension() int { return 16 }

func block(day constants.Day, start, end, subject string) entity.TimeBlock {
	return entity.TimeBlock{Day: day, StartTime: start, EndTime: end, Subject: subject}
}

func angled(cos float64) []float32 {
	return []float32{float32(cos), float32(math.Sqrt(1 - cos*cos))}
}

func TestFindDuplicatesThreshold(t *testing.T) {
	tests := []struct {
		name       string
		similarity float64
		want       int
	}{
		{"above threshold", 0.96, 1},
		{"below threshold", 0.94, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index := NewIndex([][]float32{{1, 0}, angled(tt.similarity)})
			pairs := FindDuplicates(index, 3, 0.95)
			require.Len(t, pairs, tt.want)
			if tt.want == 1 {
				assert.Equal(t, 0, pairs[0].I)
				assert.Equal(t, 1, pairs[0].J)
				assert.InDelta(t, tt.similarity, pairs[0].Similarity, 1e-6)
			}
		})
	}
}

func TestFindDuplicatesOnlyNearestNeighbors(t *testing.T) {
	// Five identical vectors: each entry only sees its top 3, and pairs are only
	// recorded toward higher indexes.
	v := []float32{1, 1}
	index := NewIndex([][]float32{v, v, v, v, v})
	pairs := FindDuplicates(index, 3, 0.95)
	for _, p := range pairs {
		assert.Less(t, p.I, p.J)
	}
	// entry 0 sees 1,2,3; entry 1 sees 0,2,3; entry 2 sees 0,1,3; 3 and 4 see only lower indexes
	assert.Len(t, pairs, 6)
}

func TestFindConflicts(t *testing.T) {
	a := block(constants.Monday, "09:00", "10:00", "Maths")
	b := block(constants.Monday, "09:30", "10:30", "Physics")
	c := block(constants.Monday, "10:00", "11:00", "Art")
	d := block(constants.Tuesday, "09:30", "10:30", "Music")

	conflicts := FindConflicts([]entity.TimeBlock{a, b})
	require.Len(t, conflicts, 1)
	assert.Equal(t, 0, conflicts[0].I)
	assert.Equal(t, 1, conflicts[0].J)
	assert.Contains(t, conflicts[0].Reason, "overlaps")

	assert.Empty(t, FindConflicts([]entity.TimeBlock{a, c}), "touching intervals do not conflict")
	assert.Empty(t, FindConflicts([]entity.TimeBlock{a, d}), "different days do not conflict")
}

func TestFindGaps(t *testing.T) {
	opts := DefaultOptions()
	blocks := []entity.TimeBlock{
		block(constants.Monday, "14:00", "15:00", "Art"),
		block(constants.Monday, "08:00", "09:00", "Maths"),
		block(constants.Tuesday, "08:00", "09:00", "Maths"),
		block(constants.Tuesday, "09:00", "12:00", "Lab"),
		block(constants.Tuesday, "10:00", "11:00", "Lab B"),
		block(constants.Tuesday, "13:30", "14:00", "PE"),
		block(constants.Wednesday, "08:00", "09:00", "Maths"),
		block(constants.Thursday, "08:00", "09:00", "Maths"),
	}
	gaps := FindGaps(blocks, opts)

	var full, partial []entity.Gap
	for _, g := range gaps {
		if g.FullDay {
			full = append(full, g)
		} else {
			partial = append(partial, g)
		}
	}
	require.Len(t, full, 1)
	assert.Equal(t, constants.Friday, full[0].Day)
	assert.Equal(t, 480, full[0].DurationMinutes)

	require.Len(t, partial, 1, "tuesday's 90 minutes stay under the threshold")
	assert.Equal(t, constants.Monday, partial[0].Day)
	assert.Equal(t, 300, partial[0].DurationMinutes)
	assert.Equal(t, "09:00", partial[0].Start)
	assert.Equal(t, "14:00", partial[0].End)
}

func TestComputeStats(t *testing.T) {
	stats := ComputeStats([]entity.TimeBlock{
		block(constants.Monday, "08:00", "09:00", "Maths"),
		block(constants.Monday, "09:00", "09:30", "Break"),
		block(constants.Friday, "10:00", "11:30", "Art"),
	})
	assert.Equal(t, 3, stats.TotalBlocks)
	assert.Equal(t, 2, stats.PerDay[constants.Monday])
	assert.Equal(t, 1, stats.PerDay[constants.Friday])
	assert.Equal(t, 180, stats.TotalDurationMinutes)
	assert.InDelta(t, 60.0, stats.AverageDurationMinutes, 1e-9)
}

func TestAnalyzeExactDuplicate(t *testing.T) {
	maths := entity.TimeBlock{Day: constants.Monday, StartTime: "08:00", EndTime: "09:00", Subject: "Mathematics", Classroom: "Room 101"}
	doc := &entity.TimetableDocument{TeacherName: "Unknown", TimeBlocks: []entity.TimeBlock{maths, maths}}
	collector := metrics.NewCollector()
	engine := NewEngine(hashEmbedder{}, DefaultOptions(), collector, nil)

	insights := engine.Analyze(context.Background(), doc)
	require.False(t, insights.Degraded)
	require.Len(t, insights.Duplicates, 1)
	assert.InDelta(t, 1.0, insights.Duplicates[0].Similarity, 1e-6)
	assert.Len(t, insights.Conflicts, 1)
	assert.True(t, insights.NeedsRefinement())

	_, ok := collector.Snapshot().Get(metrics.OpEmbedding)
	assert.True(t, ok)
}

func TestAnalyzeDegraded(t *testing.T) {
	doc := &entity.TimetableDocument{TimeBlocks: []entity.TimeBlock{
		block(constants.Monday, "09:00", "10:00", "Maths"),
		block(constants.Monday, "09:30", "10:30", "Physics"),
	}}

	for name, engine := range map[string]*Engine{
		"no embedder":      NewEngine(nil, DefaultOptions(), nil, nil),
		"embedder failure": NewEngine(hashEmbedder{err: errors.New("connection refused")}, DefaultOptions(), nil, nil),
	} {
		t.Run(name, func(t *testing.T) {
			insights := engine.Analyze(context.Background(), doc)
			assert.True(t, insights.Degraded)
			assert.NotEmpty(t, insights.DegradedReason)
			assert.Empty(t, insights.Duplicates)
			assert.Empty(t, insights.Conflicts)
			assert.Empty(t, insights.Gaps)
			assert.Equal(t, 2, insights.Stats.TotalBlocks)
			assert.Nil(t, insights.Stats.PerDay)
			assert.False(t, insights.NeedsRefinement())
		})
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(common.SemanticConfig{
		DuplicateThreshold:  0.9,
		SchoolDays:          []string{"mon", "Wednesday", "nope"},
		GapThresholdMinutes: 60,
	})
	assert.Equal(t, []constants.Day{constants.Monday, constants.Wednesday}, opts.SchoolDays)

	engine := NewEngine(nil, opts, nil, nil)
	assert.Equal(t, "08:00", engine.opts.DayStart)
	assert.Equal(t, 3, engine.opts.Neighbors)
	assert.Equal(t, 0.9, engine.opts.DuplicateThreshold)
}

func TestSemanticText(t *testing.T) {
	b := entity.TimeBlock{Day: constants.Monday, StartTime: "08:00", EndTime: "09:00", Subject: "Maths", Classroom: "101", Grade: "7", Section: "B"}
	assert.Equal(t, "Teacher: Ms O. Day: MONDAY. Time: 08:00-09:00. Subject: Maths. Room: 101. Class: 7 B", SemanticText("Ms O", b))
}
