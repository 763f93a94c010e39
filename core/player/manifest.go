package player

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"cinethos/model"

	"github.com/grafov/m3u8"
)

// ErrUnsupportedMedia is returned for documents that are not HLS playlists.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// Manifest is one parsed master playlist: levels and subtitle tracks
// always travel together.
type Manifest struct {
	URL       string
	Levels    []model.QualityLevel  // ascending bitrate, Index = position
	Subtitles []model.SubtitleTrack // manifest order, Index = position

	variantURIs []string // absolute media playlist URLs, parallel to Levels
}

// VariantURI returns the media playlist URL of level i.
func (m Manifest) VariantURI(i int) (string, bool) {
	if i < 0 || i >= len(m.variantURIs) {
		return "", false
	}
	return m.variantURIs[i], true
}

type variant struct {
	level model.QualityLevel
	uri   string
}

// ParseMaster decodes an HLS document fetched from manifestURL. A media
// playlist served in place of a master yields a single "Source" level.
func ParseMaster(manifestURL string, body []byte) (Manifest, error) {
	if !bytes.HasPrefix(bytes.TrimSpace(body), []byte("#EXTM3U")) {
		return Manifest{}, fmt.Errorf("%w: missing #EXTM3U header", ErrUnsupportedMedia)
	}
	base, err := url.Parse(manifestURL)
	if err != nil {
		return Manifest{}, fmt.Errorf("parse manifest url: %w", err)
	}

	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
	if err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}

	m := Manifest{URL: manifestURL}
	switch listType {
	case m3u8.MEDIA:
		m.Levels = []model.QualityLevel{{Index: 0, Label: "Source"}}
		m.variantURIs = []string{manifestURL}
		return m, nil
	case m3u8.MASTER:
	default:
		return Manifest{}, fmt.Errorf("%w: unknown playlist type", ErrUnsupportedMedia)
	}

	master := playlist.(*m3u8.MasterPlaylist)
	variants := make([]variant, 0, len(master.Variants))
	seenSubs := make(map[string]bool)
	for _, v := range master.Variants {
		if v == nil || v.Iframe {
			continue
		}
		variants = append(variants, variant{
			level: model.QualityLevel{
				BitrateBps: int(v.Bandwidth),
				HeightPx:   heightOf(v.Resolution),
				Label:      v.Name,
			},
			uri: resolve(base, v.URI),
		})
		// alternatives are attached to whichever variant followed them
		for _, alt := range v.Alternatives {
			if alt == nil || !strings.EqualFold(alt.Type, "SUBTITLES") {
				continue
			}
			key := alt.GroupId + "\x00" + alt.Language + "\x00" + alt.Name
			if seenSubs[key] {
				continue
			}
			seenSubs[key] = true
			m.Subtitles = append(m.Subtitles, model.SubtitleTrack{
				Index:    len(m.Subtitles),
				Label:    alt.Name,
				Language: alt.Language,
				URI:      resolve(base, alt.URI),
			})
		}
	}
	if len(variants) == 0 {
		return Manifest{}, fmt.Errorf("%w: master playlist has no variants", ErrUnsupportedMedia)
	}

	sort.SliceStable(variants, func(i, j int) bool {
		return variants[i].level.BitrateBps < variants[j].level.BitrateBps
	})
	for i, v := range variants {
		v.level.Index = i
		if v.level.Label == "" {
			v.level.Label = levelLabel(v.level)
		}
		m.Levels = append(m.Levels, v.level)
		m.variantURIs = append(m.variantURIs, v.uri)
	}
	return m, nil
}

// ParseAvailability reads a media playlist and reports how much of it exists.
// EVENT playlists without ENDLIST are still growing.
func ParseAvailability(body []byte) (model.Availability, error) {
	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
	if err != nil {
		return model.Availability{}, fmt.Errorf("decode media playlist: %w", err)
	}
	if listType != m3u8.MEDIA {
		return model.Availability{}, fmt.Errorf("%w: expected media playlist", ErrUnsupportedMedia)
	}
	media := playlist.(*m3u8.MediaPlaylist)

	var a model.Availability
	var seconds float64
	for _, seg := range media.Segments {
		if seg == nil {
			continue
		}
		a.Segments++
		seconds += seg.Duration
	}
	a.Duration = time.Duration(seconds * float64(time.Second))
	a.Ended = media.Closed
	return a, nil
}

func resolve(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

// heightOf extracts the height from a "WIDTHxHEIGHT" resolution.
func heightOf(resolution string) int {
	_, h, ok := strings.Cut(strings.ToLower(resolution), "x")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(h)
	if err != nil {
		return 0
	}
	return n
}

func levelLabel(l model.QualityLevel) string {
	switch {
	case l.HeightPx > 0:
		return strconv.Itoa(l.HeightPx) + "p"
	case l.BitrateBps > 0:
		return strconv.Itoa(l.BitrateBps/1000) + " kbps"
	default:
		return "Level " + strconv.Itoa(l.Index+1)
	}
}
