package async

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestWindowSlides(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)}
	w := NewWindow(2, time.Minute)
	w.now = clock.now

	assert.Zero(t, w.reserve())
	clock.t = clock.t.Add(10 * time.Second)
	assert.Zero(t, w.reserve())
	assert.Equal(t, 2, w.InFlight())

	assert.Equal(t, 50*time.Second, w.reserve(), "full until the first start ages out")
	clock.t = clock.t.Add(20 * time.Second)
	assert.Equal(t, 30*time.Second, w.reserve())

	clock.t = clock.t.Add(30 * time.Second)
	assert.Zero(t, w.reserve(), "first start left the window")
	assert.Equal(t, 2, w.InFlight())
	assert.Equal(t, 10*time.Second, w.reserve())
}

func TestWindowUnlimited(t *testing.T) {
	for _, w := range []*Window{nil, NewWindow(0, time.Minute), NewWindow(5, 0)} {
		for i := 0; i < 100; i++ {
			assert.Zero(t, w.reserve())
		}
	}
}

func TestWindowWaitHonoursContext(t *testing.T) {
	w := NewWindow(1, time.Hour)
	assert.NoError(t, w.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Wait(ctx), context.DeadlineExceeded)
}

func TestWindowWaitReleases(t *testing.T) {
	w := NewWindow(1, 30*time.Millisecond)
	ctx := context.Background()
	start := time.Now()
	assert.NoError(t, w.Wait(ctx))
	assert.NoError(t, w.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}
