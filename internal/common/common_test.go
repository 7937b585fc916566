package common

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.Server.GRPCAddr)
	assert.Equal(t, 3, cfg.Queue.Workers)
	assert.Equal(t, 0.95, cfg.Semantic.DuplicateThreshold)
	assert.Equal(t, "ollama", cfg.Vision.Providers[len(cfg.Vision.Providers)-1])
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  grpc_addr: ":9090"
queue:
  workers: 8
  backoff_base: 500ms
vision:
  providers: [anthropic, ollama]
semantic:
  gap_threshold_minutes: 90
`), 0o644))
	t.Setenv("TIMETABLE_CONFIG", path)
	t.Setenv("QUEUE_WORKERS", "5")
	t.Setenv("SCHOOL_DAYS", "MONDAY, WEDNESDAY ,")
	t.Setenv("QUEUE_MAX_ATTEMPTS", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.GRPCAddr)
	assert.Equal(t, 5, cfg.Queue.Workers, "env wins over file")
	assert.Equal(t, 500*time.Millisecond, cfg.Queue.BackoffBase)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts, "unparseable env keeps the previous value")
	assert.Equal(t, []string{"anthropic", "ollama"}, cfg.Vision.Providers)
	assert.Equal(t, []string{"MONDAY", "WEDNESDAY"}, cfg.Semantic.SchoolDays)
	assert.Equal(t, 90, cfg.Semantic.GapThresholdMinutes)
	assert.Equal(t, "08:00", cfg.Semantic.DayStart, "unset keys keep defaults")
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("TIMETABLE_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := LoadConfig()
	require.Error(t, err)
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CONFIG_ERROR", appErr.Code)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.GRPCAddr = "" }},
		{"unknown provider", func(c *Config) { c.Vision.Providers = []string{"openai", "gemini"} }},
		{"no workers", func(c *Config) { c.Queue.Workers = 0 }},
		{"no attempts", func(c *Config) { c.Queue.MaxAttempts = 0 }},
		{"no window", func(c *Config) { c.Queue.Window = 0 }},
		{"threshold above one", func(c *Config) { c.Semantic.DuplicateThreshold = 1.2 }},
		{"bad day start", func(c *Config) { c.Semantic.DayStart = "8am" }},
		{"end before start", func(c *Config) { c.Semantic.DayEnd = "07:00" }},
		{"unknown school day", func(c *Config) { c.Semantic.SchoolDays = []string{"Funday"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{fmt.Errorf("job x: %w", ErrNotFound), codes.NotFound},
		{fmt.Errorf("bad: %w", ErrInvalidInput), codes.InvalidArgument},
		{NewValidator().Field("file_path", "", Required).Error(), codes.InvalidArgument},
		{ErrQueueClosed, codes.Unavailable},
		{errors.New("boom"), codes.Internal},
		{status.Error(codes.DeadlineExceeded, "slow"), codes.DeadlineExceeded},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, status.Code(ToStatus(tt.err)), tt.err.Error())
	}
	assert.NoError(t, ToStatus(nil))
}

func TestAppErrorUnwrap(t *testing.T) {
	err := NewAppError("DB", "insert job", ErrDatabase)
	assert.ErrorIs(t, err, ErrDatabase)
	assert.Equal(t, "DB: insert job: database error", err.Error())
	assert.Nil(t, WrapError(nil, "ignored"))
}

func TestValidator(t *testing.T) {
	file := filepath.Join(t.TempDir(), "week.pdf")
	require.NoError(t, os.WriteFile(file, []byte("%PDF"), 0o644))

	tests := []struct {
		name     string
		field    string
		value    any
		rules    []ValidationRule
		wantErrs int
	}{
		{"required ok", "f", "x", []ValidationRule{Required}, 0},
		{"required blank", "f", "  ", []ValidationRule{Required}, 1},
		{"required nil", "f", nil, []ValidationRule{Required}, 1},
		{"max length", "name", "abcdef", []ValidationRule{MaxLength(5)}, 1},
		{"max length runes", "name", "ÅÅÅÅÅ", []ValidationRule{MaxLength(5)}, 0},
		{"uuid", "id", "3f1c2a9e-0b7d-4c1e-9a55-6f0e2d7b8c41", []ValidationRule{UUID}, 0},
		{"not uuid", "id", "42", []ValidationRule{UUID}, 1},
		{"file exists", "path", file, []ValidationRule{FileExists}, 0},
		{"file missing", "path", file + ".gone", []ValidationRule{FileExists}, 1},
		{"directory", "path", filepath.Dir(file), []ValidationRule{FileExists}, 1},
		{"media type", "type", "application/pdf", []ValidationRule{SupportedMediaType}, 0},
		{"bad media type", "type", "text/csv", []ValidationRule{SupportedMediaType}, 1},
		{"academic year", "year", "2026-2027", []ValidationRule{AcademicYear}, 0},
		{"short academic year", "year", "2026/27", []ValidationRule{AcademicYear}, 0},
		{"bad academic year", "year", "26-27", []ValidationRule{AcademicYear}, 1},
		{"two failures", "path", "", []ValidationRule{Required, SupportedMediaType}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator().Field(tt.field, tt.value, tt.rules...)
			assert.Len(t, v.Errors(), tt.wantErrs)
			if tt.wantErrs == 0 {
				assert.NoError(t, v.Error())
				assert.NoError(t, ValidateAndReturnError(v))
				return
			}
			assert.ErrorIs(t, v.Error(), ErrValidation)
			assert.Equal(t, codes.InvalidArgument, status.Code(ValidateAndReturnError(v)))
		})
	}
}

func TestContextValues(t *testing.T) {
	ctx := WithAttempt(WithJobID(WithRequestID(context.Background(), "req-1"), "job-1"), 2)
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "job-1", JobIDFromContext(ctx))
	assert.Equal(t, 2, AttemptFromContext(ctx))
	assert.Empty(t, JobIDFromContext(context.Background()))
}

func TestLoggerFanout(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)
	logger.Debug("hidden")
	logger.Info("job completed", "job_id", "abc")

	assert.Contains(t, stderr.String(), "job completed")
	assert.NotContains(t, stderr.String(), "hidden")
	assert.Contains(t, file.String(), `"job_id":"abc"`)
	assert.Equal(t, slog.LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
