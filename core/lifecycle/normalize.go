// Package lifecycle turns progress channel messages into the canonical
// DownloadLifecycle and decides which transitions are allowed.
package lifecycle

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cinethos/model"
)

// readyStage is the wire name servers use for "fully ready".
const readyStage = "ready"

var (
	ErrMissingStage = errors.New("message has neither stage nor status")
	ErrUnknownStage = errors.New("unknown stage")
)

// ParseError reports a message that could not be normalized.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("lifecycle: malformed message: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// envelope accepts every field either convention may carry.
type envelope struct {
	Stage            *string  `json:"stage"`
	Status           *string  `json:"status"`
	Progress         *float64 `json:"progress"`
	DownloadProgress *float64 `json:"downloadProgress"`
	StreamReady      *bool    `json:"streamReady"`
	Quality          string   `json:"quality"`
	Message          string   `json:"message"`
	Error            string   `json:"error"`
}

// stageEvent is the "stage"/"downloadProgress" convention.
type stageEvent struct {
	Stage    string
	Progress *float64
	Ready    bool
}

// statusEvent is the "status"/"progress" convention.
type statusEvent struct {
	Status   string
	Progress *float64
	Ready    bool
}

// wireEvent is one of stageEvent or statusEvent.
type wireEvent interface {
	canonical() (stage string, progress *float64, ready bool)
}

func (e stageEvent) canonical() (string, *float64, bool) {
	return e.Stage, e.Progress, e.Ready
}

func (e statusEvent) canonical() (string, *float64, bool) {
	return e.Status, e.Progress, e.Ready
}

// classify picks the variant of env. "stage" wins when both are present.
func classify(env envelope) (wireEvent, error) {
	ready := env.StreamReady != nil && *env.StreamReady
	progress := env.DownloadProgress
	if progress == nil {
		progress = env.Progress
	}
	switch {
	case env.Stage != nil:
		return stageEvent{Stage: *env.Stage, Progress: progress, Ready: ready}, nil
	case env.Status != nil:
		return statusEvent{Status: *env.Status, Progress: progress, Ready: ready}, nil
	default:
		return nil, ErrMissingStage
	}
}

// Normalize decodes one channel message into a DownloadLifecycle.
func Normalize(raw []byte) (model.DownloadLifecycle, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return model.DownloadLifecycle{}, &ParseError{Raw: string(raw), Err: err}
	}

	ev, err := classify(env)
	if err != nil {
		return model.DownloadLifecycle{}, &ParseError{Raw: string(raw), Err: err}
	}

	name, progress, ready := ev.canonical()
	name = strings.ToLower(strings.TrimSpace(name))

	stage := model.Stage(name)
	if name == readyStage {
		stage, ready = model.StageCompleted, true
	}
	if !stage.Valid() {
		return model.DownloadLifecycle{}, &ParseError{Raw: string(raw), Err: fmt.Errorf("%w %q", ErrUnknownStage, name)}
	}
	if ready && stage != model.StageError {
		stage = model.StageCompleted
	}

	out := model.DownloadLifecycle{
		Stage:        stage,
		QualityLabel: env.Quality,
		Message:      env.Message,
		ErrorDetail:  env.Error,
		StreamReady:  ready && stage != model.StageError,
	}
	if progress != nil {
		out.ProgressPercent = clampPercent(*progress)
	}
	if stage == model.StageCompleted {
		out.ProgressPercent = 100
	}
	return out, nil
}

func clampPercent(p float64) float64 {
	switch {
	case p != p: // NaN
		return 0
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
