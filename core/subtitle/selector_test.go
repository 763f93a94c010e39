package subtitle

import (
	"testing"

	"cinethos/model"

	"github.com/stretchr/testify/assert"
)

func langs(tags ...string) []model.SubtitleTrack {
	out := make([]model.SubtitleTrack, len(tags))
	for i, tag := range tags {
		out[i] = model.SubtitleTrack{Index: i, Language: tag, Label: tag}
	}
	return out
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		tracks []model.SubtitleTrack
		pref   Preference
		want   int
	}{
		{"preference matches case-insensitively", langs("fr", "en"), Prefer("FR"), 0},
		{"preference matches later track", langs("de", "es", "fr"), Prefer("fr"), 2},
		{"no preference takes first track", langs("de", "en"), NoPreference, 0},
		{"unmatched preference falls back to english", langs("de", "en"), Prefer("ja"), 1},
		{"english fallback ignores case", langs("de", "EN"), Prefer("ja"), 1},
		{"unmatched preference without english is off", langs("de", "it"), Prefer("ja"), model.SubtitleOffIndex},
		{"empty track list is off", nil, Prefer("fr"), model.SubtitleOffIndex},
		{"empty track list without preference is off", nil, NoPreference, model.SubtitleOffIndex},
		{"blank preference counts as unset", langs("de", "en"), Prefer("  "), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.tracks, tt.pref))
		})
	}
}

func TestBuildTracksEmpty(t *testing.T) {
	tracks := BuildTracks(nil)
	assert.Equal(t, []model.SubtitleTrack{{Index: -1, Label: "Off"}}, tracks)
}

func TestBuildTracksRenumbersAndLabels(t *testing.T) {
	tracks := BuildTracks([]model.SubtitleTrack{
		{Index: 7, Language: "fr", Label: "Français"},
		{Index: 9, Language: "de"},
		{Index: 11},
	})

	assert.Len(t, tracks, 4)
	assert.Equal(t, model.SubtitleOff(), tracks[0])
	assert.Equal(t, 0, tracks[1].Index)
	assert.Equal(t, "Français", tracks[1].Label)
	assert.Equal(t, 1, tracks[2].Index)
	assert.Equal(t, "DE", tracks[2].Label)
	assert.Equal(t, "Track 3", tracks[3].Label)
}

func TestRemap(t *testing.T) {
	tracks := langs("en", "fr")
	assert.Equal(t, 1, Remap(model.SubtitleTrack{Language: "fr", Label: "fr"}, tracks))
	assert.Equal(t, model.SubtitleOffIndex, Remap(model.SubtitleTrack{Language: "ja", Label: "ja"}, tracks))
}
