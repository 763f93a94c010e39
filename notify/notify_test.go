package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRecorderKeepsNewest(t *testing.T) {
	r := NewRecorder(2)
	r.Notify(KindPlayback, "a", "")
	r.Notify(KindResume, "b", "")
	r.Notify(KindResume, "c", "detail")

	items := r.Items()
	assert.Len(t, items, 2)
	assert.Equal(t, "b", items[0].Title)
	assert.Equal(t, "c", items[1].Title)
	assert.Equal(t, 2, r.Count(KindResume))
	assert.Equal(t, 0, r.Count(KindPlayback))
}

func TestFanoutDelivers(t *testing.T) {
	a, b := NewRecorder(5), NewRecorder(5)
	var sink Sink = Fanout{a, b, NewLogSink(zap.NewNop()), Discard}

	sink.Notify(KindStalled, "stuck", "no events")

	assert.Equal(t, 1, a.Count(KindStalled))
	assert.Equal(t, 1, b.Count(KindStalled))
}
