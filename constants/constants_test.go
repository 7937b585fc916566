package constants

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTime(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"14:30", "14:30", true},
		{"9:00", "09:00", true},
		{"2:30 PM", "14:30", true},
		{"2:30 p.m.", "14:30", true},
		{"12:30 AM", "00:30", true},
		{"12 pm", "12:00", true},
		{"8am", "08:00", true},
		{"9.05", "09:05", true},
		{"0930", "09:30", true},
		{"14h15", "14:15", true},
		{"", "", false},
		{"noon", "", false},
		{"25:00", "", false},
		{"13 PM", "", false},
		{"9:75", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizeTime(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
			if ok {
				again, ok2 := NormalizeTime(got)
				assert.True(t, ok2)
				assert.Equal(t, got, again, "normalizing twice must not change the value")
			}
		})
	}
}

func TestMinutes(t *testing.T) {
	m, err := MinutesSinceMidnight("09:05")
	require.NoError(t, err)
	assert.Equal(t, 545, m)
	assert.Equal(t, "09:05", FormatMinutes(m))
	assert.Equal(t, "00:00", FormatMinutes(-5))

	_, err = MinutesSinceMidnight("9:05")
	assert.Error(t, err)
}

func TestExpandDays(t *testing.T) {
	tests := []struct {
		in   string
		want []Day
		ok   bool
	}{
		{"Monday", []Day{Monday}, true},
		{"thurs.", []Day{Thursday}, true},
		{"Mon-Wed", []Day{Monday, Tuesday, Wednesday}, true},
		{"Monday to Friday", SchoolDays, true},
		{"Fri–Mon", []Day{Friday, Saturday, Sunday, Monday}, true},
		{"Mon/Wed/Fri", []Day{Monday, Wednesday, Friday}, true},
		{"Tue & Thu", []Day{Tuesday, Thursday}, true},
		{"Mon, Mon", []Day{Monday}, true},
		{"Funday", nil, false},
		{"Mon-Xyz", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ExpandDays(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDayHelpers(t *testing.T) {
	assert.Equal(t, "Wednesday", Wednesday.Title())
	assert.Equal(t, time.Monday, Monday.Weekday())
	assert.Equal(t, time.Sunday, Sunday.Weekday())
	assert.Equal(t, 6, Sunday.Index())
	assert.False(t, Day("FUNDAY").Valid())
}

func TestCanonicalizeSubject(t *testing.T) {
	tests := map[string]string{
		"maths":           "Mathematics",
		"  Phys  ":        "Physics",
		"P.E.":            "Physical Education",
		"Eng.":            "English",
		"lunch break":     "Lunch",
		"Advanced   Art":  "Advanced Art",
		"Further Physics": "Further Physics",
		"":                "",
	}
	for in, want := range tests {
		assert.Equal(t, want, CanonicalizeSubject(in), in)
	}

	assert.True(t, IsBreakLabel("Lunch"))
	assert.True(t, IsBreakLabel("recess"))
	assert.False(t, IsBreakLabel("Mathematics"))
}

func TestMediaTypes(t *testing.T) {
	assert.Equal(t, IMAGE, MapExtToFormat(".HEIC"))
	assert.Equal(t, DOCUMENT, MapExtToFormat("docx"))
	assert.Equal(t, MediaType(""), MapExtToFormat(".txt"))
	assert.True(t, IsHEICExt(".heif"))
	assert.Equal(t, "image/jpeg", ImageMIME(".JPG"))
	assert.Empty(t, ImageMIME(".heic"))

	mt, ok := ParseMediaType("application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	assert.True(t, ok)
	assert.Equal(t, DOCUMENT, mt)
	_, ok = ParseMediaType("text/plain")
	assert.False(t, ok)
}

func TestJobStatusTerminal(t *testing.T) {
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.False(t, JobStatusPending.IsTerminal())
	assert.False(t, JobStatusProcessing.IsTerminal())
}
