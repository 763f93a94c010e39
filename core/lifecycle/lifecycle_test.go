package lifecycle

import (
	"errors"
	"testing"

	"cinethos/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeBothConventions(t *testing.T) {
	want := model.DownloadLifecycle{
		Stage:           model.StageDownloading,
		ProgressPercent: 42,
		StreamReady:     false,
	}

	fromStage, err := Normalize([]byte(`{"stage":"downloading","downloadProgress":42}`))
	require.NoError(t, err)
	fromStatus, err := Normalize([]byte(`{"status":"downloading","progress":42}`))
	require.NoError(t, err)

	assert.Equal(t, want, fromStage)
	assert.Equal(t, want, fromStatus)
}

func TestNormalizeReadinessCoercion(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"ready stage", `{"stage":"ready"}`},
		{"ready flag", `{"stage":"downloading","streamReady":true}`},
		{"ready status", `{"status":"READY","progress":12}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc, err := Normalize([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, model.StageCompleted, lc.Stage)
			assert.True(t, lc.StreamReady)
			assert.Equal(t, float64(100), lc.ProgressPercent)
		})
	}
}

func TestNormalizeCarriesDetails(t *testing.T) {
	lc, err := Normalize([]byte(`{"stage":"error","error":"tracker unreachable","message":"failed","quality":"1080p"}`))
	require.NoError(t, err)

	assert.Equal(t, model.StageError, lc.Stage)
	assert.Equal(t, "tracker unreachable", lc.ErrorDetail)
	assert.Equal(t, "failed", lc.Message)
	assert.Equal(t, "1080p", lc.QualityLabel)
	assert.False(t, lc.StreamReady)
}

func TestNormalizeClampsProgress(t *testing.T) {
	lc, err := Normalize([]byte(`{"stage":"transcoding","progress":140}`))
	require.NoError(t, err)
	assert.Equal(t, float64(100), lc.ProgressPercent)

	lc, err = Normalize([]byte(`{"status":"downloading","downloadProgress":-3}`))
	require.NoError(t, err)
	assert.Equal(t, float64(0), lc.ProgressPercent)
}

func TestNormalizeMalformed(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		target error
	}{
		{"not json", `stage=downloading`, nil},
		{"no stage", `{"progress":10}`, ErrMissingStage},
		{"unknown stage", `{"stage":"queued"}`, ErrUnknownStage},
		{"wrong type", `{"stage":5}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize([]byte(tt.raw))
			require.Error(t, err)

			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.raw, perr.Raw)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

func TestAdvance(t *testing.T) {
	lc := func(s model.Stage, p float64) model.DownloadLifecycle {
		return model.DownloadLifecycle{Stage: s, ProgressPercent: p}
	}

	tests := []struct {
		name    string
		current model.DownloadLifecycle
		next    model.DownloadLifecycle
		want    model.DownloadLifecycle
		kind    Transition
	}{
		{"forward", lc(model.StageInitializing, 0), lc(model.StageDownloading, 5), lc(model.StageDownloading, 5), Entered},
		{"skip ahead", lc(model.StageDownloading, 50), lc(model.StageCompleted, 100), lc(model.StageCompleted, 100), Entered},
		{"same stage progress", lc(model.StageDownloading, 5), lc(model.StageDownloading, 9), lc(model.StageDownloading, 9), Updated},
		{"regression", lc(model.StageTranscoding, 10), lc(model.StageDownloading, 90), lc(model.StageTranscoding, 10), Rejected},
		{"error from any", lc(model.StageStreaming, 70), lc(model.StageError, 0), lc(model.StageError, 0), Entered},
		{"after error", lc(model.StageError, 0), lc(model.StageTranscoding, 1), lc(model.StageError, 0), Rejected},
		{"after completed", lc(model.StageCompleted, 100), lc(model.StageError, 0), lc(model.StageCompleted, 100), Rejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, kind := Advance(tt.current, tt.next)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.kind, kind)
		})
	}
}
