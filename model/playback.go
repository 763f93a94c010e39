package model

import "time"

const (
	// AutoQualityIndex hands rendition selection to the adaptive engine.
	AutoQualityIndex = -1
	// SubtitleOffIndex disables subtitles.
	SubtitleOffIndex = -1
)

// QualityLevel is one rendition exposed to the quality picker.
type QualityLevel struct {
	Index      int    `json:"index"`
	Label      string `json:"label"`
	BitrateBps int    `json:"bitrateBps"`
	HeightPx   int    `json:"heightPx"`
}

// AutoQualityLevel is the synthetic entry heading every level list.
func AutoQualityLevel() QualityLevel {
	return QualityLevel{Index: AutoQualityIndex, Label: "Auto"}
}

// SameRendition reports whether two levels describe the same encoding,
// ignoring their position in the list.
func (q QualityLevel) SameRendition(o QualityLevel) bool {
	return q.BitrateBps == o.BitrateBps && q.HeightPx == o.HeightPx
}

// SubtitleTrack is one entry of the subtitle picker.
type SubtitleTrack struct {
	Index    int    `json:"index"`
	Label    string `json:"label"`
	Language string `json:"languageTag,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// SubtitleOff is the synthetic entry heading every track list.
func SubtitleOff() SubtitleTrack {
	return SubtitleTrack{Index: SubtitleOffIndex, Label: "Off"}
}

// Availability describes how much of the active rendition the server has
// produced so far.
type Availability struct {
	Segments int           `json:"segments"`
	Duration time.Duration `json:"duration"`
	Ended    bool          `json:"ended"`
}
