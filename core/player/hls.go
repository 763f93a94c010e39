package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"cinethos/model"

	"go.uber.org/zap"
)

const maxPlaylistBytes = 4 << 20

// HTTPError is a non-200 answer from the delivery backend.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Observer receives engine events. Calls may arrive on any goroutine and
// must not block for long.
type Observer interface {
	OnLevelsParsed(m Manifest)
	OnActiveLevelChanged(index int)
	OnAvailabilityChanged(a model.Availability)
	OnFatalError(err error)
}

// Engine adapts a concrete adaptive streaming implementation.
type Engine interface {
	Load(manifestURL string)
	SetLevel(index int)
	Destroy()
}

// hlsEngine fetches and parses HLS playlists with bearer authentication,
// runs ABR selection and reports through an Observer.
type hlsEngine struct {
	client     *http.Client
	credential string
	element    *Element
	observer   Observer
	abr        *bandwidthEstimator
	log        *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	destroyed  bool
	loadCtx    context.Context
	loadCancel context.CancelFunc
	manifest   Manifest
	delivered  bool // OnLevelsParsed has returned for manifest
	requested  int
	active     int
}

func newHLSEngine(client *http.Client, credential string, element *Element, observer Observer, abr *bandwidthEstimator, log *zap.Logger) *hlsEngine {
	ctx, cancel := context.WithCancel(context.Background())
	return &hlsEngine{
		client:     client,
		credential: credential,
		element:    element,
		observer:   observer,
		abr:        abr,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
		requested:  model.AutoQualityIndex,
		active:     -1,
	}
}

// Load fetches manifestURL, superseding any load still in flight.
func (e *hlsEngine) Load(manifestURL string) {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	if e.loadCancel != nil {
		e.loadCancel()
	}
	ctx, cancel := context.WithCancel(e.ctx)
	e.loadCtx, e.loadCancel = ctx, cancel
	e.delivered = false
	e.mu.Unlock()

	go e.load(ctx, manifestURL)
}

func (e *hlsEngine) load(ctx context.Context, manifestURL string) {
	body, err := e.fetch(ctx, manifestURL)
	if err != nil {
		if ctx.Err() == nil {
			e.observer.OnFatalError(fmt.Errorf("manifest load: %w", err))
		}
		return
	}
	m, err := ParseMaster(manifestURL, body)
	if err != nil {
		if ctx.Err() == nil {
			e.observer.OnFatalError(fmt.Errorf("manifest parse: %w", err))
		}
		return
	}

	e.mu.Lock()
	if ctx.Err() != nil {
		e.mu.Unlock()
		return
	}
	e.manifest = m
	e.requested = model.AutoQualityIndex
	e.active = -1
	e.mu.Unlock()

	e.element.attach(manifestURL)
	e.log.Debug("manifest parsed",
		zap.String("url", manifestURL),
		zap.Int("levels", len(m.Levels)),
		zap.Int("subtitles", len(m.Subtitles)))
	e.observer.OnLevelsParsed(m)

	e.mu.Lock()
	if ctx.Err() != nil {
		e.mu.Unlock()
		return
	}
	e.delivered = true
	e.mu.Unlock()
	e.selectLevel(ctx)
}

// SetLevel pins a rendition, or returns control to ABR for -1. Out of range
// indices are ignored.
func (e *hlsEngine) SetLevel(index int) {
	e.mu.Lock()
	if e.destroyed || e.loadCtx == nil {
		e.mu.Unlock()
		return
	}
	if index != model.AutoQualityIndex && (index < 0 || index >= len(e.manifest.Levels)) {
		e.mu.Unlock()
		return
	}
	e.requested = index
	ctx := e.loadCtx
	pending := !e.delivered
	e.mu.Unlock()

	// load applies the request once the levels are out
	if pending {
		return
	}
	go e.selectLevel(ctx)
}

func (e *hlsEngine) selectLevel(ctx context.Context) {
	e.mu.Lock()
	if ctx.Err() != nil || !e.delivered || len(e.manifest.Levels) == 0 {
		e.mu.Unlock()
		return
	}
	idx := e.requested
	if idx == model.AutoQualityIndex {
		idx = pickLevel(e.manifest.Levels, e.abr.bitsPerSecond())
	}
	changed := idx != e.active
	e.active = idx
	uri, _ := e.manifest.VariantURI(idx)
	e.mu.Unlock()

	if changed {
		e.observer.OnActiveLevelChanged(idx)
	}
	e.probe(ctx, uri)
}

// probe reads the active media playlist. A missing playlist is expected
// while the server is still producing segments, so failures only log.
func (e *hlsEngine) probe(ctx context.Context, uri string) {
	if uri == "" {
		return
	}
	body, err := e.fetch(ctx, uri)
	if err != nil {
		switch {
		case ctx.Err() != nil:
		case IsNotFound(err):
			e.log.Debug("media playlist not produced yet", zap.String("url", uri))
		default:
			e.log.Warn("media playlist unavailable", zap.String("url", uri), zap.Error(err))
		}
		return
	}
	a, err := ParseAvailability(body)
	if err != nil {
		e.log.Warn("media playlist unreadable", zap.String("url", uri), zap.Error(err))
		return
	}
	if ctx.Err() != nil {
		return
	}
	e.element.SetSeekable(a.Duration)
	e.observer.OnAvailabilityChanged(a)
}

func (e *hlsEngine) fetch(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	body, err := get(ctx, e.client, url, e.credential)
	if err != nil {
		return nil, err
	}
	e.abr.sample(len(body), time.Since(start))
	return body, nil
}

func get(ctx context.Context, client *http.Client, url, credential string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{URL: url, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPlaylistBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}

// Probe fetches the master playlist once, then the media playlist of its
// lowest level, without attaching anything.
func Probe(ctx context.Context, client *http.Client, manifestURL, credential string) (Manifest, model.Availability, error) {
	if client == nil {
		client = http.DefaultClient
	}
	body, err := get(ctx, client, manifestURL, credential)
	if err != nil {
		return Manifest{}, model.Availability{}, fmt.Errorf("fetch manifest: %w", err)
	}
	m, err := ParseMaster(manifestURL, body)
	if err != nil {
		return Manifest{}, model.Availability{}, err
	}
	uri, ok := m.VariantURI(0)
	if !ok {
		return m, model.Availability{}, nil
	}
	body, err = get(ctx, client, uri, credential)
	if err != nil {
		return m, model.Availability{}, fmt.Errorf("fetch media playlist: %w", err)
	}
	a, err := ParseAvailability(body)
	return m, a, err
}

// Destroy cancels every fetch. It does not wait: in-flight callbacks are
// discarded by the caller's generation check.
func (e *hlsEngine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return
	}
	e.destroyed = true
	e.cancel()
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode == http.StatusNotFound
}
