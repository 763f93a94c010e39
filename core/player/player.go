// Package player owns the adaptive playback engine bound to one media
// element.
package player

import (
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"cinethos/logger"

	"go.uber.org/zap"
)

// ErrNotInitialized is returned for operations that need a loaded manifest.
var ErrNotInitialized = errors.New("player not initialized")

// Options configures a Player.
type Options struct {
	// Native hands the manifest straight to the element instead of running
	// the adaptive engine, for runtimes with built-in HLS support.
	Native           bool
	Client           *http.Client
	InitialBandwidth int // bits per second
	Logger           *zap.Logger
}

// Player wraps the adaptive engine attached to an Element.
type Player struct {
	mu         sync.Mutex
	opts       Options
	element    *Element
	observer   Observer
	abr        *bandwidthEstimator
	engine     Engine
	native     bool
	credential string
	releases   int
}

// New binds a player to element. The element is owned by the player for the
// whole session.
func New(element *Element, observer Observer, opts Options) *Player {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Named("player")
	}
	return &Player{
		opts:     opts,
		element:  element,
		observer: observer,
		abr:      newBandwidthEstimator(opts.InitialBandwidth),
	}
}

// Element returns the media element owned by the player.
func (p *Player) Element() *Element {
	return p.element
}

// Initialize starts loading manifestURL. A previous engine is released first.
func (p *Player) Initialize(manifestURL, credential string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.engine != nil || p.native {
		p.releaseLocked()
	}
	p.credential = credential

	if p.opts.Native {
		p.opts.Logger.Info("adaptive engine disabled, using native playback", zap.String("url", manifestURL))
		p.element.attach(WithToken(manifestURL, credential))
		p.native = true
		return
	}

	p.engine = newHLSEngine(p.opts.Client, credential, p.element, p.observer, p.abr, p.opts.Logger)
	p.engine.Load(manifestURL)
}

// ReloadManifest refetches the manifest against the attached element. The
// caller restores position and playback afterwards.
func (p *Player) ReloadManifest(manifestURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.engine != nil:
		p.engine.Load(manifestURL)
	case p.native:
		p.element.attach(WithToken(manifestURL, p.credential))
	default:
		return ErrNotInitialized
	}
	return nil
}

// SetQualityLevel forces rendition index, or ABR for -1. No-op before
// Initialize or after Teardown.
func (p *Player) SetQualityLevel(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.engine == nil {
		return
	}
	p.engine.SetLevel(index)
}

// Teardown releases the engine and detaches the element. Safe to call
// repeatedly.
func (p *Player) Teardown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.engine == nil && !p.native {
		return
	}
	p.releaseLocked()
}

func (p *Player) releaseLocked() {
	if p.engine != nil {
		p.engine.Destroy()
		p.engine = nil
	}
	p.native = false
	p.credential = ""
	p.element.detach()
	p.releases++
}

// WithToken appends the credential as a query parameter, for consumers that
// cannot send an Authorization header.
func WithToken(rawURL, token string) string {
	if token == "" {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
