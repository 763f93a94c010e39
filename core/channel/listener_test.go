package channel

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"cinethos/core/lifecycle"
	"cinethos/model"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type connErr struct {
	err      error
	retrying bool
}

type recorder struct {
	opened  chan struct{}
	events  chan model.DownloadLifecycle
	parse   chan error
	connErr chan connErr
}

func newRecorder() *recorder {
	return &recorder{
		opened:  make(chan struct{}, 8),
		events:  make(chan model.DownloadLifecycle, 16),
		parse:   make(chan error, 16),
		connErr: make(chan connErr, 16),
	}
}

func (r *recorder) OnOpen()                                { r.opened <- struct{}{} }
func (r *recorder) OnLifecycle(lc model.DownloadLifecycle) { r.events <- lc }
func (r *recorder) OnParseError(err error)                 { r.parse <- err }
func (r *recorder) OnConnectionError(err error, retrying bool) {
	r.connErr <- connErr{err: err, retrying: retrying}
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for channel event")
	}
	var zero T
	return zero
}

func testOptions(retries int) Options {
	return Options{
		MaxRetries: retries,
		NewBackOff: func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) },
		Logger:     zap.NewNop(),
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func TestURL(t *testing.T) {
	cases := []struct {
		base, id, token, want string
	}{
		{"http://localhost:3000", "42", "tok", "ws://localhost:3000/ws/42?token=tok"},
		{"https://api.example.com/", "abc", "", "wss://api.example.com/ws/abc"},
		{"https://api.example.com/v1", "a b", "t", "wss://api.example.com/v1/ws/a%20b?token=t"},
		{"https://api.example.com/v1/", "a/b", "", "wss://api.example.com/v1/ws/a%2Fb"},
		{"http://localhost:3000/my%20api", "x%y", "", "ws://localhost:3000/my%20api/ws/x%25y"},
	}
	for _, c := range cases {
		got, err := URL(c.base, c.id, c.token)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}

	_, err := URL("ftp://example.com", "1", "")
	assert.Error(t, err)
}

func TestListenerNormalizesMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/42" || r.URL.Query().Get("token") != "tok" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, msg := range []string{
			`{"stage":"downloading","downloadProgress":12.5}`,
			`not json`,
			`{"status":"transcoding","progress":140}`,
			`{"stage":"ready"}`,
		} {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	rec := newRecorder()
	l, err := Open(srv.URL, "42", "tok", rec, testOptions(3))
	require.NoError(t, err)
	defer l.Close()

	waitFor(t, rec.opened)

	first := waitFor(t, rec.events)
	assert.Equal(t, model.StageDownloading, first.Stage)
	assert.Equal(t, 12.5, first.ProgressPercent)

	var pe *lifecycle.ParseError
	assert.True(t, errors.As(waitFor(t, rec.parse), &pe))

	second := waitFor(t, rec.events)
	assert.Equal(t, model.StageTranscoding, second.Stage)
	assert.Equal(t, 100.0, second.ProgressPercent)

	third := waitFor(t, rec.events)
	assert.Equal(t, model.StageCompleted, third.Stage)
	assert.True(t, third.StreamReady)

	// a close after a terminal stage is not a failure
	waitFor(t, l.Done())
	assert.Empty(t, rec.connErr)
}

func TestListenerReconnectIsBounded(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	rec := newRecorder()
	l, err := Open(srv.URL, "7", "tok", rec, testOptions(2))
	require.NoError(t, err)

	assert.True(t, waitFor(t, rec.connErr).retrying)
	assert.True(t, waitFor(t, rec.connErr).retrying)
	last := waitFor(t, rec.connErr)
	assert.False(t, last.retrying)
	assert.Contains(t, last.err.Error(), "status 500")

	waitFor(t, l.Done())
	assert.Equal(t, int32(3), dials.Load())
	assert.Empty(t, rec.opened)
}

func TestListenerReconnectsAfterDrop(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if dials.Add(1) == 1 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"stage":"downloading","downloadProgress":5}`))
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"stage":"error","error":"disk full"}`))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	rec := newRecorder()
	l, err := Open(srv.URL, "9", "", rec, testOptions(1))
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, model.StageDownloading, waitFor(t, rec.events).Stage)
	assert.True(t, waitFor(t, rec.connErr).retrying)

	lc := waitFor(t, rec.events)
	assert.Equal(t, model.StageError, lc.Stage)
	assert.Equal(t, "disk full", lc.ErrorDetail)

	waitFor(t, l.Done())
	assert.Len(t, rec.opened, 2)
	assert.Empty(t, rec.connErr)
}

func TestListenerEscapesContentIDOnce(t *testing.T) {
	paths := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.EscapedPath()
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	rec := newRecorder()
	l, err := Open(srv.URL, "a b", "", rec, testOptions(0))
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, "/ws/a%20b", waitFor(t, paths))
	waitFor(t, l.Done())
}

func TestListenerStopsAfterNormalServerClose(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"stage":"downloading","downloadProgress":30}`))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	rec := newRecorder()
	l, err := Open(srv.URL, "5", "tok", rec, testOptions(3))
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, model.StageDownloading, waitFor(t, rec.events).Stage)
	ce := waitFor(t, rec.connErr)
	assert.ErrorIs(t, ce.err, ErrClosedByServer)
	assert.False(t, ce.retrying)

	waitFor(t, l.Done())
	assert.Equal(t, int32(1), dials.Load())
	assert.Empty(t, rec.connErr)
}

func TestListenerCloseDoesNotWait(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	rec := newRecorder()
	l, err := Open(srv.URL, "1", "tok", rec, testOptions(5))
	require.NoError(t, err)
	waitFor(t, rec.opened)

	start := time.Now()
	assert.NotPanics(t, func() {
		l.Close()
		l.Close()
	})
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	waitFor(t, l.Done())
	assert.Empty(t, rec.connErr)
}

func TestListenerCloseBeforeDial(t *testing.T) {
	rec := newRecorder()
	l, err := Open("http://127.0.0.1:1", "1", "", rec, testOptions(5))
	require.NoError(t, err)
	l.Close()
	waitFor(t, l.Done())
}
