package ui

import (
	"bytes"
	"math"
	"testing"
	"time"

	"cinethos/core/session"
	"cinethos/model"
	"cinethos/notify"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func snapshot() session.Snapshot {
	return session.Snapshot{
		Title: "Watching 42",
		Open:  true,
		QualityLevels: []model.QualityLevel{
			model.AutoQualityLevel(),
			{Index: 0, Label: "360p"},
			{Index: 1, Label: "720p"},
		},
		CurrentQualityIndex: model.AutoQualityIndex,
		ActiveLevelIndex:    1,
		SubtitleTracks: []model.SubtitleTrack{
			model.SubtitleOff(),
			{Index: 0, Label: "EN", Language: "en"},
		},
		CurrentSubtitleIndex: 0,
		Lifecycle:            model.DownloadLifecycle{Stage: model.StageDownloading, ProgressPercent: 50},
		ShowProgress:         true,
		Paused:               true,
		Position:             75 * time.Second,
		Availability:         model.Availability{Segments: 3, Duration: 12 * time.Second},
	}
}

func TestRenderInProgress(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, snapshot()))
	out := buf.String()

	assert.Contains(t, out, "Watching 42\n")
	assert.Contains(t, out, "[Auto]  360p   720p    playing 720p")
	assert.Contains(t, out, " Off  [EN]")
	assert.Contains(t, out, "downloading   50% [############............]")
	assert.Contains(t, out, "paused     1:15 / 0:12 so far (3 segments, still growing)")
	assert.NotContains(t, out, "error")
}

func TestRenderHidesProgressWhenSettled(t *testing.T) {
	snap := snapshot()
	snap.Lifecycle = model.DownloadLifecycle{Stage: model.StageCompleted, ProgressPercent: 100, StreamReady: true}
	snap.ShowProgress = false
	snap.Availability.Ended = true

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, snap))
	assert.NotContains(t, buf.String(), "completed")
	assert.Contains(t, buf.String(), "1:15 / 0:12\n")
}

func TestRenderErrorStage(t *testing.T) {
	snap := snapshot()
	snap.Lifecycle = model.DownloadLifecycle{Stage: model.StageError, ErrorDetail: "no seeders"}
	snap.ProgressIsError = true
	snap.LastError = "manifest load: 404"

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, snap))
	assert.Contains(t, buf.String(), "x error: no seeders")
	assert.Contains(t, buf.String(), "! manifest load: 404")
	assert.NotContains(t, buf.String(), "[####")
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[....]", ProgressBar(0, 4))
	assert.Equal(t, "[##..]", ProgressBar(50, 4))
	assert.Equal(t, "[####]", ProgressBar(140, 4))
	assert.Equal(t, "[....]", ProgressBar(math.NaN(), 4))
	assert.Empty(t, ProgressBar(50, 0))
}

func TestClock(t *testing.T) {
	assert.Equal(t, "0:00", Clock(-time.Second))
	assert.Equal(t, "2:05", Clock(125*time.Second))
	assert.Equal(t, "1:01:01", Clock(time.Hour+61*time.Second))
}

func TestRenderNotifications(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderNotifications(&buf, []notify.Notification{
		{Kind: notify.KindInfo, Title: "Session opened"},
		{Kind: notify.KindResume, Title: "Press play to continue", Detail: "blocked"},
		{Kind: notify.KindServerError, Title: "Preparation failed", Detail: "disk full"},
	}))
	assert.Equal(t, "  Session opened\n* Press play to continue: blocked\n! Preparation failed: disk full\n", buf.String())
}
