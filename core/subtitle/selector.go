// Package subtitle builds the subtitle picker list and resolves its default.
package subtitle

import (
	"strconv"
	"strings"

	"cinethos/model"
)

// FallbackLanguage is tried when a stored preference matches no track.
const FallbackLanguage = "en"

// Preference is the user's stored subtitle language. Set is false when the
// user never stored one, which is not the same as an unmatched language.
type Preference struct {
	Language string
	Set      bool
}

// NoPreference is the zero Preference.
var NoPreference = Preference{}

// Prefer returns a stored preference for lang. A blank lang counts as no
// preference.
func Prefer(lang string) Preference {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return NoPreference
	}
	return Preference{Language: lang, Set: true}
}

// BuildTracks renumbers tracks from zero and prefixes the Off entry.
func BuildTracks(tracks []model.SubtitleTrack) []model.SubtitleTrack {
	out := make([]model.SubtitleTrack, 0, len(tracks)+1)
	out = append(out, model.SubtitleOff())
	for i, t := range tracks {
		t.Index = i
		if t.Label == "" {
			t.Label = labelFor(t.Language, i)
		}
		out = append(out, t)
	}
	return out
}

func labelFor(lang string, i int) string {
	if lang != "" {
		return strings.ToUpper(lang)
	}
	return "Track " + strconv.Itoa(i+1)
}

// Resolve picks the default subtitle index for tracks (without the Off
// entry). First match wins:
//  1. a track whose language equals the preference, case-insensitively
//  2. no stored preference: the first track
//  3. a stored but unmatched preference: an "en" track
//  4. Off
func Resolve(tracks []model.SubtitleTrack, pref Preference) int {
	if len(tracks) == 0 {
		return model.SubtitleOffIndex
	}
	if pref.Set {
		if i := indexOfLanguage(tracks, pref.Language); i >= 0 {
			return i
		}
	}
	if !pref.Set {
		return 0
	}
	if i := indexOfLanguage(tracks, FallbackLanguage); i >= 0 {
		return i
	}
	return model.SubtitleOffIndex
}

func indexOfLanguage(tracks []model.SubtitleTrack, lang string) int {
	lang = strings.TrimSpace(lang)
	for i, t := range tracks {
		if strings.EqualFold(t.Language, lang) {
			return i
		}
	}
	return -1
}

// Remap finds the position of prev in tracks (without the Off entry),
// matching on language and label. Returns Off when prev is gone.
func Remap(prev model.SubtitleTrack, tracks []model.SubtitleTrack) int {
	for i, t := range tracks {
		if strings.EqualFold(t.Language, prev.Language) && t.Label == prev.Label {
			return i
		}
	}
	return model.SubtitleOffIndex
}
