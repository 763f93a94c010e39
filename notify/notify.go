// Package notify carries user-visible warnings out of the playback core.
package notify

import (
	"sync"

	"cinethos/logger"

	"go.uber.org/zap"
)

// Kind classifies a notification.
type Kind string

const (
	KindChannelParse      Kind = "channel_parse"
	KindChannelConnection Kind = "channel_connection"
	KindPlayback          Kind = "playback"
	KindResume            Kind = "resume"
	KindServerError       Kind = "server_error"
	KindStalled           Kind = "stalled"
	KindCredential        Kind = "credential"
	KindInfo              Kind = "info"
)

// Sink receives notifications. Implementations must not block.
type Sink interface {
	Notify(kind Kind, title, detail string)
}

// Func adapts a function to Sink.
type Func func(kind Kind, title, detail string)

func (f Func) Notify(kind Kind, title, detail string) { f(kind, title, detail) }

// Discard drops every notification.
var Discard Sink = Func(func(Kind, string, string) {})

// LogSink writes notifications to a zap logger.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = logger.Named("notify")
	}
	return &LogSink{log: log}
}

func (s *LogSink) Notify(kind Kind, title, detail string) {
	fields := []zap.Field{zap.String("kind", string(kind)), zap.String("detail", detail)}
	if kind == KindInfo {
		s.log.Info(title, fields...)
		return
	}
	s.log.Warn(title, fields...)
}

// Fanout forwards to every sink in order.
type Fanout []Sink

func (f Fanout) Notify(kind Kind, title, detail string) {
	for _, s := range f {
		s.Notify(kind, title, detail)
	}
}

// Notification is one recorded entry.
type Notification struct {
	Kind   Kind   `json:"kind"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// Recorder keeps the most recent notifications for display.
type Recorder struct {
	mu    sync.Mutex
	limit int
	items []Notification
}

// NewRecorder keeps at most limit entries, dropping the oldest.
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 20
	}
	return &Recorder{limit: limit}
}

func (r *Recorder) Notify(kind Kind, title, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, Notification{Kind: kind, Title: title, Detail: detail})
	if len(r.items) > r.limit {
		r.items = r.items[len(r.items)-r.limit:]
	}
}

// Items returns a copy of the recorded notifications, oldest first.
func (r *Recorder) Items() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Count returns how many recorded entries have the given kind.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, it := range r.items {
		if it.Kind == kind {
			n++
		}
	}
	return n
}
