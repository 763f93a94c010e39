// Package ui renders session snapshots as a terminal panel.
package ui

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"cinethos/core/session"
	"cinethos/model"
	"cinethos/notify"

	"github.com/fatih/color"
)

const barWidth = 24

var (
	titleStyle    = color.New(color.Bold)
	selectedStyle = color.New(color.FgCyan, color.Bold)
	errorStyle    = color.New(color.FgRed, color.Bold)
	warnStyle     = color.New(color.FgYellow)
	progressStyle = color.New(color.FgGreen)
)

// Render writes the whole panel for snap.
func Render(w io.Writer, snap session.Snapshot) error {
	var b strings.Builder

	b.WriteString(titleStyle.Sprint(snap.Title))
	b.WriteByte('\n')

	b.WriteString("Quality    ")
	b.WriteString(qualityPicker(snap))
	if active, ok := snap.ActiveLevel(); ok {
		fmt.Fprintf(&b, "   playing %s", active.Label)
	}
	b.WriteByte('\n')

	b.WriteString("Subtitles  ")
	b.WriteString(subtitlePicker(snap))
	b.WriteByte('\n')

	if snap.ShowProgress {
		b.WriteString(progressPanel(snap.Lifecycle))
		b.WriteByte('\n')
	}

	if snap.Open {
		b.WriteString(playbackLine(snap))
		b.WriteByte('\n')
	}
	if snap.LastError != "" {
		b.WriteString(errorStyle.Sprint("! " + snap.LastError))
		b.WriteByte('\n')
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// qualityPicker highlights the requested index, so Auto stays selected while
// the engine plays some concrete level.
func qualityPicker(snap session.Snapshot) string {
	items := make([]string, 0, len(snap.QualityLevels))
	for _, l := range snap.QualityLevels {
		items = append(items, pickerItem(l.Label, l.Index == snap.CurrentQualityIndex))
	}
	return strings.Join(items, " ")
}

func subtitlePicker(snap session.Snapshot) string {
	items := make([]string, 0, len(snap.SubtitleTracks))
	for _, t := range snap.SubtitleTracks {
		items = append(items, pickerItem(t.Label, t.Index == snap.CurrentSubtitleIndex))
	}
	return strings.Join(items, " ")
}

func pickerItem(label string, selected bool) string {
	if selected {
		return selectedStyle.Sprint("[" + label + "]")
	}
	return " " + label + " "
}

func progressPanel(lc model.DownloadLifecycle) string {
	if lc.Stage == model.StageError {
		detail := lc.ErrorDetail
		if detail == "" {
			detail = lc.Message
		}
		if detail == "" {
			return errorStyle.Sprint("x error")
		}
		return errorStyle.Sprint("x error: " + detail)
	}

	line := fmt.Sprintf("~ %-12s %3.0f%% %s", lc.Stage, lc.ProgressPercent, progressStyle.Sprint(ProgressBar(lc.ProgressPercent, barWidth)))
	if lc.QualityLabel != "" {
		line += " " + lc.QualityLabel
	}
	if lc.Message != "" {
		line += "  " + lc.Message
	}
	return line
}

// ProgressBar draws percent as a fixed-width bar.
func ProgressBar(percent float64, width int) string {
	if width <= 0 {
		return ""
	}
	if math.IsNaN(percent) || percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := int(math.Round(percent / 100 * float64(width)))
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

func playbackLine(snap session.Snapshot) string {
	state := "playing"
	if snap.Paused {
		state = "paused"
	}
	line := fmt.Sprintf("%-7s    %s", state, Clock(snap.Position))
	a := snap.Availability
	switch {
	case a.Segments == 0:
	case a.Ended:
		line += fmt.Sprintf(" / %s", Clock(a.Duration))
	default:
		line += fmt.Sprintf(" / %s so far (%d segments, still growing)", Clock(a.Duration), a.Segments)
	}
	if snap.Reloads > 0 {
		line += fmt.Sprintf("  reloads %d", snap.Reloads)
	}
	return line
}

// Clock formats d as m:ss, or h:mm:ss past an hour.
func Clock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h, m, s := total/3600, total/60%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// RenderNotifications writes recent notifications, newest last.
func RenderNotifications(w io.Writer, items []notify.Notification) error {
	var b strings.Builder
	for _, n := range items {
		line := n.Title
		if n.Detail != "" {
			line += ": " + n.Detail
		}
		switch n.Kind {
		case notify.KindInfo:
			b.WriteString("  " + line)
		case notify.KindServerError, notify.KindPlayback:
			b.WriteString(errorStyle.Sprint("! " + line))
		default:
			b.WriteString(warnStyle.Sprint("* " + line))
		}
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}
