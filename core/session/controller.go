package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cinethos/core/channel"
	"cinethos/core/player"
	"cinethos/core/subtitle"
	"cinethos/logger"
	"cinethos/metrics"
	"cinethos/model"
	"cinethos/notify"

	"go.uber.org/zap"
)

var (
	ErrNoSession       = errors.New("no open session")
	ErrEmptyContentID  = errors.New("content id is empty")
	ErrInvalidQuality  = errors.New("quality index not in current levels")
	ErrInvalidSubtitle = errors.New("subtitle index not in current tracks")
	ErrStopped         = errors.New("controller stopped")
)

// Player is the part of player.Player the controller drives.
type Player interface {
	Initialize(manifestURL, credential string)
	ReloadManifest(manifestURL string) error
	SetQualityLevel(index int)
	Teardown()
	Element() *player.Element
}

// Channel is an open progress channel.
type Channel interface {
	Close()
}

// Options wires a Controller to its collaborators. BaseURL is required; the
// factories default to the real player and channel listener.
type Options struct {
	BaseURL         string
	StallTimeout    time.Duration // 0 disables the stall watchdog
	AutoplayBlocked bool
	PlayerOptions   player.Options
	ChannelOptions  channel.Options

	Notifier notify.Sink
	Metrics  *metrics.Metrics
	Logger   *zap.Logger

	NewPlayer   func(obs player.Observer) Player
	OpenChannel func(contentID, credential string, h channel.Handler) (Channel, error)
}

// Controller owns at most one Session and serializes every event touching
// it on a single goroutine started by Run.
type Controller struct {
	opts Options
	log  *zap.Logger

	events   chan any
	done     chan struct{}
	stopOnce sync.Once
	exited   chan struct{}

	// loop-owned
	gen         uint64
	current     *Session
	subscribers map[int]chan Snapshot
	nextSubID   int
}

// NewController prepares a controller. Call Run on its own goroutine before
// using it.
func NewController(opts Options) *Controller {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard
	}
	if opts.Logger == nil {
		opts.Logger = logger.Named("session")
	}
	if opts.NewPlayer == nil {
		opts.NewPlayer = func(obs player.Observer) Player {
			return player.New(player.NewElement(opts.AutoplayBlocked), obs, opts.PlayerOptions)
		}
	}
	if opts.OpenChannel == nil {
		opts.OpenChannel = func(contentID, credential string, h channel.Handler) (Channel, error) {
			l, err := channel.Open(opts.BaseURL, contentID, credential, h, opts.ChannelOptions)
			if err != nil {
				return nil, err
			}
			return l, nil
		}
	}
	return &Controller{
		opts:        opts,
		log:         opts.Logger,
		events:      make(chan any, 64),
		done:        make(chan struct{}),
		exited:      make(chan struct{}),
		subscribers: make(map[int]chan Snapshot),
	}
}

// Run processes events until Stop is called.
func (c *Controller) Run() {
	defer close(c.exited)
	for {
		select {
		case ev := <-c.events:
			c.handle(ev)
		case <-c.done:
			c.teardown()
			for id, ch := range c.subscribers {
				close(ch)
				delete(c.subscribers, id)
			}
			return
		}
	}
}

// Stop tears the current session down and ends Run. It waits for the loop
// to exit.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
	<-c.exited
}

// post enqueues ev unless the controller has stopped.
func (c *Controller) post(ev any) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func call[T any](c *Controller, build func(reply chan T) any) (T, error) {
	reply := make(chan T, 1)
	var zero T
	if !c.post(build(reply)) {
		return zero, ErrStopped
	}
	select {
	case v := <-reply:
		return v, nil
	case <-c.exited:
		return zero, ErrStopped
	}
}

type openRequest struct {
	contentID  string
	credential string
	preference subtitle.Preference
	reply      chan error
}

type closeRequest struct{ reply chan error }

type qualityRequest struct {
	index int
	reply chan error
}

type subtitleRequest struct {
	index int
	reply chan error
}

type snapshotRequest struct{ reply chan Snapshot }

type subscription struct {
	id int
	ch chan Snapshot
}

type subscribeRequest struct{ reply chan subscription }

type unsubscribeRequest struct{ id int }

// Open starts a session for contentID, tearing down any previous one.
func (c *Controller) Open(contentID, credential string, pref subtitle.Preference) error {
	err, callErr := call(c, func(reply chan error) any {
		return openRequest{contentID: contentID, credential: credential, preference: pref, reply: reply}
	})
	if callErr != nil {
		return callErr
	}
	return err
}

// Close tears down the current session. Closing with no session is a no-op.
func (c *Controller) Close() error {
	_, err := call(c, func(reply chan error) any { return closeRequest{reply: reply} })
	return err
}

// SelectQuality requests a rendition; -1 returns to automatic selection.
func (c *Controller) SelectQuality(index int) error {
	err, callErr := call(c, func(reply chan error) any { return qualityRequest{index: index, reply: reply} })
	if callErr != nil {
		return callErr
	}
	return err
}

// SelectSubtitle picks a track; -1 turns subtitles off. The choice survives
// later manifest parses.
func (c *Controller) SelectSubtitle(index int) error {
	err, callErr := call(c, func(reply chan error) any { return subtitleRequest{index: index, reply: reply} })
	if callErr != nil {
		return callErr
	}
	return err
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	snap, err := call(c, func(reply chan Snapshot) any { return snapshotRequest{reply: reply} })
	if err != nil {
		return closedSnapshot(0)
	}
	return snap
}

// Subscribe returns a channel receiving the latest snapshot after every
// change. Slow readers only see the newest one. The channel is closed by
// cancel or Stop.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	sub, err := call(c, func(reply chan subscription) any { return subscribeRequest{reply: reply} })
	if err != nil {
		ch := make(chan Snapshot)
		close(ch)
		return ch, func() {}
	}
	var once sync.Once
	return sub.ch, func() {
		once.Do(func() { c.post(unsubscribeRequest{id: sub.id}) })
	}
}

func (c *Controller) handle(ev any) {
	switch e := ev.(type) {
	case openRequest:
		e.reply <- c.open(e)
		c.publish()
	case closeRequest:
		c.teardown()
		e.reply <- nil
		c.publish()
	case qualityRequest:
		e.reply <- c.selectQuality(e.index)
		c.publish()
	case subtitleRequest:
		e.reply <- c.selectSubtitle(e.index)
		c.publish()
	case snapshotRequest:
		e.reply <- c.snapshot()
	case subscribeRequest:
		c.nextSubID++
		ch := make(chan Snapshot, 1)
		ch <- c.snapshot()
		c.subscribers[c.nextSubID] = ch
		e.reply <- subscription{id: c.nextSubID, ch: ch}
	case unsubscribeRequest:
		if ch, ok := c.subscribers[e.id]; ok {
			close(ch)
			delete(c.subscribers, e.id)
		}
	case tagged:
		s := c.current
		if s == nil || e.generation() != s.Generation {
			c.opts.Metrics.StaleEventDropped()
			c.log.Debug("dropping stale event",
				zap.String("event", fmt.Sprintf("%T", ev)),
				zap.Uint64("eventGeneration", e.generation()),
				zap.Uint64("generation", c.gen))
			return
		}
		c.apply(s, e)
		c.publish()
	default:
		c.log.Error("unknown controller event", zap.String("event", fmt.Sprintf("%T", ev)))
	}
}

func (c *Controller) open(req openRequest) error {
	contentID := strings.TrimSpace(req.contentID)
	if contentID == "" {
		return ErrEmptyContentID
	}
	c.teardown()

	s := newSession(c.opts.BaseURL, contentID, req.credential, req.preference, c.gen)
	log := c.log.With(zap.String("session", s.ID), zap.String("contentId", contentID))

	ch, err := c.opts.OpenChannel(contentID, req.credential, channelEvents{c: c, gen: s.Generation})
	if err != nil {
		log.Warn("progress channel not opened", zap.Error(err))
		c.notify(notify.KindChannelConnection, "Progress updates unavailable", err.Error())
	}
	s.channel = ch

	s.player = c.opts.NewPlayer(playerEvents{c: c, gen: s.Generation})
	s.player.Initialize(s.ManifestURL, req.credential)

	c.current = s
	c.armStall(s)
	log.Info("session opened",
		zap.String("manifest", s.ManifestURL),
		zap.Uint64("generation", s.Generation),
		zap.Bool("subtitlePreference", req.preference.Set))
	return nil
}

// teardown closes the channel, releases the player and retires the
// generation, in that order.
func (c *Controller) teardown() {
	s := c.current
	if s == nil {
		return
	}
	if s.stopStall != nil {
		s.stopStall()
	}
	if s.channel != nil {
		s.channel.Close()
	}
	s.player.Teardown()
	c.gen++
	c.current = nil
	c.log.Info("session closed",
		zap.String("session", s.ID),
		zap.String("contentId", s.ContentID),
		zap.Duration("duration", time.Since(s.OpenedAt)))
}

func (c *Controller) selectQuality(index int) error {
	s := c.current
	if s == nil {
		return ErrNoSession
	}
	if index != model.AutoQualityIndex && !s.hasLevel(index) {
		return fmt.Errorf("%w: %d", ErrInvalidQuality, index)
	}
	s.CurrentQualityIndex = index
	s.player.SetQualityLevel(index)
	c.log.Info("quality selected", zap.String("session", s.ID), zap.Int("index", index))
	return nil
}

func (c *Controller) selectSubtitle(index int) error {
	s := c.current
	if s == nil {
		return ErrNoSession
	}
	if !s.hasTrack(index) {
		return fmt.Errorf("%w: %d", ErrInvalidSubtitle, index)
	}
	s.CurrentSubtitleIndex = index
	s.subtitleOverride = true
	c.log.Info("subtitle selected", zap.String("session", s.ID), zap.Int("index", index))
	return nil
}

func (c *Controller) snapshot() Snapshot {
	if c.current == nil {
		return closedSnapshot(c.gen)
	}
	return c.current.snapshot()
}

func (c *Controller) publish() {
	if len(c.subscribers) == 0 {
		return
	}
	snap := c.snapshot()
	for _, ch := range c.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (c *Controller) notify(kind notify.Kind, title, detail string) {
	c.opts.Metrics.Notified(string(kind))
	c.opts.Notifier.Notify(kind, title, detail)
}

func (c *Controller) apply(s *Session, ev tagged) {
	switch e := ev.(type) {
	case channelOpened:
		c.log.Debug("progress channel open", zap.String("session", s.ID))
	case lifecycleReceived:
		c.onLifecycle(s, e.lifecycle)
		c.armStall(s)
	case channelParseFailed:
		c.notify(notify.KindChannelParse, "Unreadable progress update", e.err.Error())
	case channelFailed:
		title := "Progress channel lost, reconnecting"
		if !e.retrying {
			title = "Progress channel unavailable"
		}
		c.notify(notify.KindChannelConnection, title, e.err.Error())
	case levelsParsed:
		c.onManifest(s, e.manifest)
	case activeLevelChanged:
		if !s.hasLevel(e.index) {
			return
		}
		s.ActiveLevelIndex = e.index
		c.opts.Metrics.QualitySwitched(s.CurrentQualityIndex != model.AutoQualityIndex)
		if l, ok := s.level(e.index); ok {
			c.opts.Metrics.ActiveBitrate(l.BitrateBps)
		}
	case availabilityChanged:
		s.Availability = e.availability
	case playbackFailed:
		s.LastError = e.err.Error()
		c.log.Warn("playback error", zap.String("session", s.ID), zap.Error(e.err))
		c.notify(notify.KindPlayback, "Playback error", e.err.Error())
	case stallTick:
		c.onStall(s, e.seq)
	}
}

func (c *Controller) onManifest(s *Session, m player.Manifest) {
	s.applyManifest(m)
	c.opts.Metrics.ManifestParsed()
	if s.CurrentQualityIndex != model.AutoQualityIndex {
		s.player.SetQualityLevel(s.CurrentQualityIndex)
	}
	c.log.Debug("manifest applied",
		zap.String("session", s.ID),
		zap.Int("levels", len(s.QualityLevels)-1),
		zap.Int("subtitles", len(s.SubtitleTracks)-1),
		zap.Int("quality", s.CurrentQualityIndex),
		zap.Int("subtitle", s.CurrentSubtitleIndex))
}

// armStall restarts the stall timer after channel activity.
func (c *Controller) armStall(s *Session) {
	s.lastEvent = time.Now()
	s.stalled = false
	if c.opts.StallTimeout <= 0 {
		return
	}
	if s.stopStall != nil {
		s.stopStall()
	}
	s.stallSeq++
	g, seq := s.Generation, s.stallSeq
	t := time.AfterFunc(c.opts.StallTimeout, func() {
		c.post(stallTick{gen: gen(g), seq: seq})
	})
	s.stopStall = t.Stop
}

func (c *Controller) onStall(s *Session, seq uint64) {
	if seq != s.stallSeq || s.stalled {
		return
	}
	switch s.Lifecycle.Stage {
	case model.StageInitializing, model.StageDownloading:
	default:
		return
	}
	s.stalled = true
	idle := time.Since(s.lastEvent).Round(time.Second)
	c.log.Warn("content preparation stalled",
		zap.String("session", s.ID),
		zap.String("stage", string(s.Lifecycle.Stage)),
		zap.Duration("idle", idle))
	c.notify(notify.KindStalled, "Preparation seems stuck",
		fmt.Sprintf("no progress update for %s while %s", idle, s.Lifecycle.Stage))
}
