package hls

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/EternisAI/silo-control/internal/stream"
)

type Segment struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

type Diagnostics struct {
	ProcessRunning  bool       `json:"process_running"`
	ProxyPort       int        `json:"proxy_port,omitempty"`
	HLSPath         string     `json:"hls_path"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	Restarts        int        `json:"restarts"`
	PlaylistExists  bool       `json:"playlist_exists"`
	PlaylistSize    int64      `json:"playlist_size,omitempty"`
	PlaylistContent string     `json:"playlist_content,omitempty"`
	PlaylistError   string     `json:"playlist_error,omitempty"`
	SegmentCount    int        `json:"segment_count"`
	Segments        []Segment  `json:"segments"`
}

// Diagnostics inspects the agent's transcoder and output directory.
func (r *Relay) Diagnostics(agentID string) Diagnostics {
	diag := Diagnostics{
		HLSPath:  r.Dir(agentID),
		Segments: []Segment{},
	}

	if r.procs != nil {
		if info, ok := r.procs.Get(agentID); ok {
			diag.ProcessRunning = info.Running
			diag.ProxyPort = info.ProxyPort
			diag.Restarts = info.Restarts
			start := info.StartTime
			diag.StartTime = &start
		}
	}

	playlist := filepath.Join(diag.HLSPath, stream.PlaylistName)
	if info, err := os.Stat(playlist); err == nil {
		diag.PlaylistExists = true
		diag.PlaylistSize = info.Size()
		if content, err := os.ReadFile(playlist); err == nil {
			diag.PlaylistContent = string(content)
		} else {
			diag.PlaylistError = err.Error()
		}
	}

	matches, _ := filepath.Glob(filepath.Join(diag.HLSPath, stream.SegmentGlob))
	sort.Strings(matches)
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		diag.Segments = append(diag.Segments, Segment{
			Name:    filepath.Base(path),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	diag.SegmentCount = len(diag.Segments)

	return diag
}
