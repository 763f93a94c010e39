package session

import (
	"cinethos/core/lifecycle"
	"cinethos/model"
	"cinethos/notify"

	"go.uber.org/zap"
)

// onLifecycle applies a channel event and reacts to stage entries. Only the
// entry into transcoding reloads the manifest; repeated transcoding events
// are updates and do nothing.
func (c *Controller) onLifecycle(s *Session, lc model.DownloadLifecycle) {
	next, transition := lifecycle.Advance(s.Lifecycle, lc)
	if transition == lifecycle.Rejected {
		c.log.Debug("lifecycle event rejected",
			zap.String("session", s.ID),
			zap.String("current", string(s.Lifecycle.Stage)),
			zap.String("incoming", string(lc.Stage)))
		return
	}

	prev := s.Lifecycle.Stage
	s.Lifecycle = next
	c.opts.Metrics.Progress(next.ProgressPercent)
	if transition != lifecycle.Entered {
		return
	}

	c.opts.Metrics.StageEntered(string(next.Stage))
	c.log.Info("lifecycle stage entered",
		zap.String("session", s.ID),
		zap.String("from", string(prev)),
		zap.String("to", string(next.Stage)),
		zap.Float64("progress", next.ProgressPercent))

	switch next.Stage {
	case model.StageTranscoding:
		c.reloadOnReady(s)
	case model.StageError:
		detail := next.ErrorDetail
		if detail == "" {
			detail = next.Message
		}
		if detail == "" {
			detail = "the server could not prepare this title"
		}
		c.notify(notify.KindServerError, "Preparation failed", detail)
	}
}

// reloadOnReady refreshes the manifest so newly produced segments become
// visible, then restarts playback from the beginning.
func (c *Controller) reloadOnReady(s *Session) {
	if err := s.player.ReloadManifest(s.ManifestURL); err != nil {
		c.log.Warn("manifest reload failed", zap.String("session", s.ID), zap.Error(err))
		c.notify(notify.KindPlayback, "Could not refresh the stream", err.Error())
		return
	}
	s.Reloads++
	c.opts.Metrics.ManifestReloaded()

	el := s.player.Element()
	el.Seek(0)
	if err := el.Play(); err != nil {
		c.log.Info("playback not resumed after reload", zap.String("session", s.ID), zap.Error(err))
		c.notify(notify.KindResume, "Press play to continue", err.Error())
	}
}
