package stream

import "path/filepath"

const (
	PlaylistName   = "playlist.m3u8"
	SegmentPattern = "segment_%03d.ts"
	SegmentGlob    = "segment_*.ts"
)

// hlsArgs builds a low-latency rolling HLS transcode of source into dir:
// short segments, a three-entry window, old segments deleted, no end marker.
func hlsArgs(source, dir string) []string {
	return []string{
		"-i", source,
		"-c:v", "copy",
		"-f", "hls",
		"-hls_time", "0.2",
		"-hls_list_size", "3",
		"-hls_flags", "delete_segments+append_list+discont_start+omit_endlist+independent_segments",
		"-hls_segment_type", "mpegts",
		"-hls_init_time", "0",
		"-hls_allow_cache", "0",
		"-hls_segment_filename", filepath.Join(dir, SegmentPattern),
		filepath.Join(dir, PlaylistName),
	}
}
