// Package session reconciles player events, progress channel events and user
// selections into one playback session.
package session

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"cinethos/core/player"
	"cinethos/core/subtitle"
	"cinethos/model"

	"github.com/google/uuid"
)

// Session is the root aggregate of one watch attempt. It is only touched by
// the controller loop.
type Session struct {
	ID          string
	ContentID   string
	ManifestURL string
	Credential  string
	Generation  uint64
	OpenedAt    time.Time

	Lifecycle model.DownloadLifecycle

	QualityLevels       []model.QualityLevel
	CurrentQualityIndex int
	ActiveLevelIndex    int

	SubtitleTracks       []model.SubtitleTrack
	CurrentSubtitleIndex int

	Availability model.Availability
	Reloads      int
	LastError    string

	preference       subtitle.Preference
	subtitleOverride bool
	parsed           bool

	player  Player
	channel Channel

	lastEvent time.Time
	stallSeq  uint64
	stalled   bool
	stopStall func() bool
}

// ManifestURL derives {base}/stream/{contentID}/master.m3u8.
func ManifestURL(base, contentID string) string {
	return strings.TrimRight(base, "/") + "/stream/" + url.PathEscape(contentID) + "/master.m3u8"
}

func newSession(base, contentID, credential string, pref subtitle.Preference, gen uint64) *Session {
	return &Session{
		ID:                   uuid.NewString(),
		ContentID:            contentID,
		ManifestURL:          ManifestURL(base, contentID),
		Credential:           credential,
		Generation:           gen,
		OpenedAt:             time.Now(),
		Lifecycle:            model.InitialLifecycle(),
		QualityLevels:        []model.QualityLevel{model.AutoQualityLevel()},
		CurrentQualityIndex:  model.AutoQualityIndex,
		ActiveLevelIndex:     -1,
		SubtitleTracks:       []model.SubtitleTrack{model.SubtitleOff()},
		CurrentSubtitleIndex: model.SubtitleOffIndex,
		preference:           pref,
	}
}

// hasLevel reports whether index names a real level of the current manifest.
func (s *Session) hasLevel(index int) bool {
	for _, l := range s.QualityLevels {
		if l.Index == index && index != model.AutoQualityIndex {
			return true
		}
	}
	return false
}

func (s *Session) hasTrack(index int) bool {
	for _, t := range s.SubtitleTracks {
		if t.Index == index {
			return true
		}
	}
	return false
}

func (s *Session) level(index int) (model.QualityLevel, bool) {
	for _, l := range s.QualityLevels {
		if l.Index == index {
			return l, true
		}
	}
	return model.QualityLevel{}, false
}

func (s *Session) track(index int) (model.SubtitleTrack, bool) {
	for _, t := range s.SubtitleTracks {
		if t.Index == index {
			return t, true
		}
	}
	return model.SubtitleTrack{}, false
}

// applyManifest replaces levels and tracks in one step and re-resolves both
// selections against the new lists.
func (s *Session) applyManifest(m player.Manifest) {
	prevLevel, hadLevel := s.level(s.CurrentQualityIndex)
	prevTrack, _ := s.track(s.CurrentSubtitleIndex)

	levels := make([]model.QualityLevel, 0, len(m.Levels)+1)
	levels = append(levels, model.AutoQualityLevel())
	levels = append(levels, m.Levels...)
	tracks := subtitle.BuildTracks(m.Subtitles)

	quality := model.AutoQualityIndex
	if hadLevel && s.CurrentQualityIndex != model.AutoQualityIndex {
		for _, l := range m.Levels {
			if l.SameRendition(prevLevel) {
				quality = l.Index
				break
			}
		}
	}

	var selected int
	switch {
	case !s.parsed:
		s.subtitleOverride = false
		selected = subtitle.Resolve(tracks[1:], s.preference)
	case s.subtitleOverride && prevTrack.Index == model.SubtitleOffIndex:
		selected = model.SubtitleOffIndex
	case s.subtitleOverride:
		selected = subtitle.Remap(prevTrack, tracks[1:])
	default:
		selected = subtitle.Resolve(tracks[1:], s.preference)
	}

	s.QualityLevels = levels
	s.SubtitleTracks = tracks
	s.CurrentQualityIndex = quality
	s.CurrentSubtitleIndex = selected
	s.ActiveLevelIndex = -1
	s.parsed = true
}

// Snapshot is an immutable view of a session for presentation.
type Snapshot struct {
	SessionID  string `json:"sessionId,omitempty"`
	ContentID  string `json:"contentId,omitempty"`
	Title      string `json:"title"`
	Generation uint64 `json:"generation"`
	Open       bool   `json:"open"`

	Lifecycle model.DownloadLifecycle `json:"lifecycle"`

	QualityLevels       []model.QualityLevel `json:"qualityLevels"`
	CurrentQualityIndex int                  `json:"currentQualityIndex"`
	ActiveLevelIndex    int                  `json:"activeLevelIndex"`

	SubtitleTracks       []model.SubtitleTrack `json:"subtitleTracks"`
	CurrentSubtitleIndex int                   `json:"currentSubtitleIndex"`

	Availability model.Availability `json:"availability"`
	Position     time.Duration      `json:"position"`
	Paused       bool               `json:"paused"`
	Source       string             `json:"source,omitempty"`
	Reloads      int                `json:"reloads"`
	LastError    string             `json:"lastError,omitempty"`

	ShowProgress    bool `json:"showProgress"`
	ProgressIsError bool `json:"progressIsError"`
}

// ActiveLevel returns the level the engine is playing, if any.
func (s Snapshot) ActiveLevel() (model.QualityLevel, bool) {
	if s.ActiveLevelIndex < 0 {
		return model.QualityLevel{}, false
	}
	for _, l := range s.QualityLevels {
		if l.Index == s.ActiveLevelIndex {
			return l, true
		}
	}
	return model.QualityLevel{}, false
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		SessionID:            s.ID,
		ContentID:            s.ContentID,
		Title:                fmt.Sprintf("Watching %s", s.ContentID),
		Generation:           s.Generation,
		Open:                 true,
		Lifecycle:            s.Lifecycle,
		QualityLevels:        append([]model.QualityLevel(nil), s.QualityLevels...),
		CurrentQualityIndex:  s.CurrentQualityIndex,
		ActiveLevelIndex:     s.ActiveLevelIndex,
		SubtitleTracks:       append([]model.SubtitleTrack(nil), s.SubtitleTracks...),
		CurrentSubtitleIndex: s.CurrentSubtitleIndex,
		Availability:         s.Availability,
		Reloads:              s.Reloads,
		LastError:            s.LastError,
		ShowProgress:         !s.Lifecycle.Settled(),
		ProgressIsError:      s.Lifecycle.Stage == model.StageError,
	}
	if s.player != nil {
		el := s.player.Element()
		snap.Position = el.Position()
		snap.Paused = el.Paused()
		snap.Source = el.Source()
	}
	return snap
}

// closedSnapshot is what presentation sees between sessions.
func closedSnapshot(gen uint64) Snapshot {
	return Snapshot{
		Title:                "No title",
		Generation:           gen,
		Lifecycle:            model.InitialLifecycle(),
		QualityLevels:        []model.QualityLevel{model.AutoQualityLevel()},
		CurrentQualityIndex:  model.AutoQualityIndex,
		ActiveLevelIndex:     -1,
		SubtitleTracks:       []model.SubtitleTrack{model.SubtitleOff()},
		CurrentSubtitleIndex: model.SubtitleOffIndex,
		Paused:               true,
	}
}
