package vision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/timetable-extractor/internal/common"
	"github.com/joseph-ayodele/timetable-extractor/internal/metrics"
)

// MinChars is the shortest transcription accepted from any provider.
const MinChars = 10

// Chain tries providers in order and returns the first usable transcription.
type Chain struct {
	providers []Provider
	timeout   time.Duration
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// NewChain builds a chain. The last provider is treated as the terminal fallback.
func NewChain(providers []Provider, timeout time.Duration, collector *metrics.Collector, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{providers: providers, timeout: timeout, metrics: collector, logger: logger}
}

// Providers returns the provider names in order.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Transcribe walks the chain for one page. Intermediate failures are logged, not
// returned; the Result names the provider that succeeded.
func (c *Chain) Transcribe(ctx context.Context, page Page) (Result, error) {
	var errs []error
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if !p.Available() {
			c.logger.Debug("vision.provider.skipped", "provider", p.Name(), "reason", "not configured")
			continue
		}

		res, err := c.call(ctx, p, page)
		if err == nil && countChars(res.Text) < MinChars {
			err = fmt.Errorf("%w: %d chars", common.ErrInsufficientText, countChars(res.Text))
		}
		if err != nil {
			level := slog.LevelWarn
			if errors.Is(err, common.ErrProviderUnavailable) {
				level = slog.LevelDebug
			}
			c.logger.Log(ctx, level, "vision.provider.failed",
				"provider", p.Name(), "class", page.Class, "page", page.Index, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}

		if res.Provider == "" {
			res.Provider = p.Name()
		}
		c.logger.Debug("vision.provider.ok", "provider", res.Provider, "page", page.Index,
			"chars", countChars(res.Text), "confidence", res.Confidence)
		return res, nil
	}
	return Result{}, fmt.Errorf("%w: %w", common.ErrAllProvidersFailed, errors.Join(errs...))
}

func (c *Chain) call(ctx context.Context, p Provider, page Page) (Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	start := time.Now()
	res, err := p.Transcribe(ctx, page)
	if !errors.Is(err, common.ErrProviderUnavailable) {
		c.metrics.Since(metrics.OpVision+p.Name(), start, err)
	}
	return res, err
}
