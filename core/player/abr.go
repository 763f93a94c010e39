package player

import (
	"sync"
	"time"

	"cinethos/model"
)

const (
	defaultBandwidthEstimate = 500_000 // bits per second before any sample
	minSampleBytes           = 16 * 1024
	ewmaAlpha                = 0.3
	bandwidthSafetyFactor    = 0.8
)

// bandwidthEstimator keeps an EWMA of observed download throughput.
type bandwidthEstimator struct {
	mu       sync.Mutex
	estimate float64
}

func newBandwidthEstimator(initial int) *bandwidthEstimator {
	if initial <= 0 {
		initial = defaultBandwidthEstimate
	}
	return &bandwidthEstimator{estimate: float64(initial)}
}

// sample records one download. Small payloads say more about latency than
// throughput and are ignored.
func (b *bandwidthEstimator) sample(bytes int, elapsed time.Duration) {
	if bytes < minSampleBytes || elapsed <= 0 {
		return
	}
	bps := float64(bytes*8) / elapsed.Seconds()
	b.mu.Lock()
	b.estimate = ewmaAlpha*bps + (1-ewmaAlpha)*b.estimate
	b.mu.Unlock()
}

func (b *bandwidthEstimator) bitsPerSecond() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(b.estimate)
}

// pickLevel returns the highest level whose bitrate fits the estimate, or
// the lowest level when none fits. levels are sorted by ascending bitrate.
func pickLevel(levels []model.QualityLevel, bps int) int {
	if len(levels) == 0 {
		return -1
	}
	budget := int(float64(bps) * bandwidthSafetyFactor)
	chosen := 0
	for i, l := range levels {
		if l.BitrateBps <= budget {
			chosen = i
		}
	}
	return chosen
}
