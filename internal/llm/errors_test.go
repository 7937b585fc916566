package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// statusErr mimics the AWS SDK response error shape.
type statusErr int

func (e statusErr) Error() string       { return fmt.Sprintf("https response error StatusCode: %d", int(e)) }
func (e statusErr) HTTPStatusCode() int { return int(e) }

func TestIsFatalAPIError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil", nil, false},
		{"credit balance", errors.New("Your credit balance is too low"), true},
		{"rate limit", errors.New("rate limit exceeded"), false},
		{"http 429", errors.New("API returned 429: rate limit exceeded"), false},
		{"quota", errors.New("quota exceeded for this month"), false},
		{"billing", errors.New("billing hard limit reached"), true},
		{"invalid key", errors.New("Invalid API key provided"), true},
		{"auth", errors.New("authentication failed"), true},
		{"unauthorized", errors.New("Unauthorized"), true},
		{"http 401", errors.New("HTTP 401"), true},
		{"http 403", errors.New("HTTP 403 forbidden"), true},
		{"status code 401", errors.New("request failed, status code: 401"), true},
		{"api returned 403", errors.New("API returned 403"), true},
		{"digits in path", errors.New("prepare image: open /uploads/room401_timetable.png: no such file"), false},
		{"digits in id", errors.New("job 403a1c: timeout"), false},
		{"typed 401", fmt.Errorf("converse: %w", statusErr(401)), true},
		{"typed 403", statusErr(403), true},
		{"typed 429", statusErr(429), false},
		{"typed 500 with 401 in path", fmt.Errorf("open room401.png: %w", statusErr(500)), false},
		{"wrapped", fmt.Errorf("call: %w", errors.New("invalid api key")), true},
		{"sentinel", fmt.Errorf("x: %w", ErrFatalAPI), true},
		{"connection reset", errors.New("connection reset by peer"), false},
		{"http 404", errors.New("HTTP 404 not found"), false},
		{"deadline", errors.New("context deadline exceeded"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fatal, IsFatalAPIError(tt.err))
		})
	}
}

func TestWrapFatalError(t *testing.T) {
	plain := errors.New("connection reset")
	assert.Same(t, plain, WrapFatalError(plain))
	assert.Nil(t, WrapFatalError(nil))

	fatal := errors.New("invalid api key")
	wrapped := WrapFatalError(fatal)
	assert.ErrorIs(t, wrapped, ErrFatalAPI)
	assert.ErrorIs(t, wrapped, fatal)

	// Already tagged errors are not wrapped twice.
	assert.Same(t, wrapped, WrapFatalError(wrapped))
}
