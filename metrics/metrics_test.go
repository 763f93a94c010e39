package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.StageEntered("downloading")
		m.Notified("playback")
		m.QualitySwitched(true)
		m.ManifestParsed()
		m.ManifestReloaded()
		m.StaleEventDropped()
		m.Progress(12)
		m.ActiveBitrate(800000)
	})
	assert.Nil(t, m.Registry())
}

func TestCounters(t *testing.T) {
	m := New()
	m.StageEntered("transcoding")
	m.StageEntered("transcoding")
	m.QualitySwitched(false)
	m.ManifestReloaded()
	m.Progress(42)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.stageEntered.WithLabelValues("transcoding")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.qualitySwitches.WithLabelValues("auto")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.manifestReloads))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.progress))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.ManifestParsed()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "cinethos_manifest_parses_total 1")
}
