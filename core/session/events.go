package session

import (
	"cinethos/core/player"
	"cinethos/model"
)

// tagged events carry the generation they were issued under. The loop drops
// them once that generation is retired.
type tagged interface {
	generation() uint64
}

type gen uint64

func (g gen) generation() uint64 { return uint64(g) }

type channelOpened struct{ gen }

type lifecycleReceived struct {
	gen
	lifecycle model.DownloadLifecycle
}

type channelParseFailed struct {
	gen
	err error
}

type channelFailed struct {
	gen
	err      error
	retrying bool
}

type levelsParsed struct {
	gen
	manifest player.Manifest
}

type activeLevelChanged struct {
	gen
	index int
}

type availabilityChanged struct {
	gen
	availability model.Availability
}

type playbackFailed struct {
	gen
	err error
}

type stallTick struct {
	gen
	seq uint64
}

// playerEvents forwards engine callbacks into the loop.
type playerEvents struct {
	c   *Controller
	gen uint64
}

func (o playerEvents) OnLevelsParsed(m player.Manifest) {
	o.c.post(levelsParsed{gen: gen(o.gen), manifest: m})
}

func (o playerEvents) OnActiveLevelChanged(index int) {
	o.c.post(activeLevelChanged{gen: gen(o.gen), index: index})
}

func (o playerEvents) OnAvailabilityChanged(a model.Availability) {
	o.c.post(availabilityChanged{gen: gen(o.gen), availability: a})
}

func (o playerEvents) OnFatalError(err error) {
	o.c.post(playbackFailed{gen: gen(o.gen), err: err})
}

// channelEvents forwards listener callbacks into the loop.
type channelEvents struct {
	c   *Controller
	gen uint64
}

func (h channelEvents) OnOpen() {
	h.c.post(channelOpened{gen(h.gen)})
}

func (h channelEvents) OnLifecycle(lc model.DownloadLifecycle) {
	h.c.post(lifecycleReceived{gen: gen(h.gen), lifecycle: lc})
}

func (h channelEvents) OnParseError(err error) {
	h.c.post(channelParseFailed{gen: gen(h.gen), err: err})
}

func (h channelEvents) OnConnectionError(err error, retrying bool) {
	h.c.post(channelFailed{gen: gen(h.gen), err: err, retrying: retrying})
}
