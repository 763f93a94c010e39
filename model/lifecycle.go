package model

// Stage is the server-reported phase of on-demand content preparation.
type Stage string

const (
	StageInitializing Stage = "initializing"
	StageDownloading  Stage = "downloading"
	StageTranscoding  Stage = "transcoding"
	StageStreaming    Stage = "streaming"
	StageCompleted    Stage = "completed"
	StageError        Stage = "error"
)

// stageRank orders the non-error stages; error sits outside the ordering.
var stageRank = map[Stage]int{
	StageInitializing: 0,
	StageDownloading:  1,
	StageTranscoding:  2,
	StageStreaming:    3,
	StageCompleted:    4,
}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	if s == StageError {
		return true
	}
	_, ok := stageRank[s]
	return ok
}

// Terminal reports whether no further transition may leave s.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageError
}

// Rank returns the position of s in the forward ordering, or -1 for error
// and unknown stages.
func (s Stage) Rank() int {
	if r, ok := stageRank[s]; ok {
		return r
	}
	return -1
}

// DownloadLifecycle tracks server-side readiness of one content id.
// Produced by normalizing channel events; never mutated by the UI.
type DownloadLifecycle struct {
	Stage           Stage   `json:"stage"`
	ProgressPercent float64 `json:"progressPercent"`
	QualityLabel    string  `json:"qualityLabel,omitempty"`
	Message         string  `json:"message,omitempty"`
	ErrorDetail     string  `json:"errorDetail,omitempty"`
	StreamReady     bool    `json:"streamReady"`
}

// InitialLifecycle is the state of a freshly opened channel.
func InitialLifecycle() DownloadLifecycle {
	return DownloadLifecycle{Stage: StageInitializing}
}

// Settled reports whether the content is fully ready for seek-anywhere
// playback, the condition under which the progress panel is hidden.
func (l DownloadLifecycle) Settled() bool {
	return l.Stage == StageCompleted || l.StreamReady
}
