package player

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrPlayBlocked mirrors a runtime autoplay policy rejecting play().
	ErrPlayBlocked = errors.New("play blocked by autoplay policy")
	// ErrNoSource is returned by Play when nothing is attached.
	ErrNoSource = errors.New("media element has no source")
)

// Element is a headless media element: it holds the attached source and a
// playback clock, and is owned by exactly one Player.
type Element struct {
	mu              sync.Mutex
	src             string
	position        time.Duration
	seekable        time.Duration // 0 means unbounded
	paused          bool
	autoplayBlocked bool
	loads           int
}

// NewElement returns a paused, detached element. With autoplayBlocked every
// Play call fails with ErrPlayBlocked.
func NewElement(autoplayBlocked bool) *Element {
	return &Element{paused: true, autoplayBlocked: autoplayBlocked}
}

// attach binds a source, keeping the playback clock.
func (e *Element) attach(src string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.src = src
	e.loads++
}

// detach drops the source and resets the clock.
func (e *Element) detach() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.src = ""
	e.position = 0
	e.seekable = 0
	e.paused = true
}

// Source returns the attached source, empty when detached.
func (e *Element) Source() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.src
}

// Loads counts how many times a source was attached.
func (e *Element) Loads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loads
}

func (e *Element) Seek(pos time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.position = e.clamp(pos)
}

func (e *Element) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.src == "" {
		return ErrNoSource
	}
	if e.autoplayBlocked {
		return ErrPlayBlocked
	}
	e.paused = false
	return nil
}

func (e *Element) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = true
}

func (e *Element) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *Element) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

// SetSeekable bounds the clock to what the server has produced so far.
func (e *Element) SetSeekable(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seekable = d
	e.position = e.clamp(e.position)
}

// Advance moves the clock forward by d while playing.
func (e *Element) Advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.paused || e.src == "" {
		return
	}
	e.position = e.clamp(e.position + d)
}

func (e *Element) clamp(pos time.Duration) time.Duration {
	if pos < 0 {
		return 0
	}
	if e.seekable > 0 && pos > e.seekable {
		return e.seekable
	}
	return pos
}
