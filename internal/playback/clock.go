package playback

import (
	"context"
	"sync"
	"time"
)

// Clock is a ticker-based stand-in renderer used when no real renderer is
// attached, so transport state can be exercised headless. It advances one
// frame per tick at the project frame rate and pauses itself at the last
// frame.
type Clock struct {
	mu      sync.Mutex
	frame   int
	playing bool

	fpsFn      func() int
	durationFn func() int
	onFrame    func(int)
	onEnded    func(int)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewClock creates a clock over the given rate and duration suppliers.
func NewClock(fpsFn func() int, durationFn func() int) *Clock {
	return &Clock{fpsFn: fpsFn, durationFn: durationFn}
}

// SetOnFrame registers the frame-change callback.
func (c *Clock) SetOnFrame(fn func(int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFrame = fn
}

// SetOnEnded registers the end-of-timeline callback, invoked with the last
// frame after the clock pauses itself there.
func (c *Clock) SetOnEnded(fn func(int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEnded = fn
}

// Play starts the tick loop.
func (c *Clock) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing {
		return
	}
	c.playing = true

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx, c.done)
}

// Pause stops the tick loop.
func (c *Clock) Pause() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.playing = false
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Seek jumps to a frame without changing play state.
func (c *Clock) Seek(frame int) {
	c.mu.Lock()
	if frame < 0 {
		frame = 0
	}
	c.frame = frame
	c.mu.Unlock()
}

// Frame returns the clock's current frame.
func (c *Clock) Frame() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

func (c *Clock) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	fps := c.fpsFn()
	if fps <= 0 {
		fps = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			last := c.durationFn() - 1

			c.mu.Lock()
			if !c.playing {
				c.mu.Unlock()
				return
			}
			if c.frame >= last {
				c.frame = last
				c.playing = false
				c.cancel = nil
				c.done = nil
				fn := c.onFrame
				ended := c.onEnded
				frame := c.frame
				c.mu.Unlock()
				if fn != nil {
					fn(frame)
				}
				if ended != nil {
					ended(frame)
				}
				return
			}
			c.frame++
			fn := c.onFrame
			frame := c.frame
			c.mu.Unlock()

			if fn != nil {
				fn(frame)
			}
		}
	}
}
