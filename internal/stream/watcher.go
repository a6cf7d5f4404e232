package stream

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// watch reports output progress for the first WatchWindow of a stream.
func (s *Supervisor) watch(p *streamProcess) {
	defer p.wg.Done()

	ticker := time.NewTicker(s.cfg.WatchInterval)
	defer ticker.Stop()
	window := time.NewTimer(s.cfg.WatchWindow)
	defer window.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-window.C:
			slog.Debug("Stream output watch window elapsed", "agent_id", p.agentID)
			return
		case <-ticker.C:
			if !p.running() {
				slog.Warn("Stream process no longer running, watcher exiting", "agent_id", p.agentID)
				return
			}
			playlist, segments := inspectOutput(p.dir)
			slog.Info("Stream output status",
				"agent_id", p.agentID,
				"playlist_exists", playlist,
				"segment_count", segments)
		}
	}
}

func inspectOutput(dir string) (playlistExists bool, segmentCount int) {
	if _, err := os.Stat(filepath.Join(dir, PlaylistName)); err == nil {
		playlistExists = true
	}
	matches, _ := filepath.Glob(filepath.Join(dir, SegmentGlob))
	return playlistExists, len(matches)
}

// removeOutput deletes a launch directory and, when it is left empty, the
// agent directory above it.
func removeOutput(dir string) {
	matches, _ := filepath.Glob(filepath.Join(dir, SegmentGlob))
	for _, segment := range matches {
		if err := os.Remove(segment); err != nil && !os.IsNotExist(err) {
			slog.Debug("Failed to remove segment", "path", segment, "error", err)
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		slog.Warn("Failed to remove stream directory", "path", dir, "error", err)
		return
	}
	// Fails while other launches for the agent still have directories.
	_ = os.Remove(filepath.Dir(dir))
}
