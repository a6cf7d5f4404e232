package hls

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/EternisAI/silo-control/internal/stream"
)

var (
	ErrNotFound    = errors.New("hls file not found")
	ErrInvalidPath = errors.New("invalid hls path")
)

const (
	ContentTypePlaylist = "application/vnd.apple.mpegurl"
	ContentTypeSegment  = "video/mp2t"
	ContentTypeOther    = "application/octet-stream"

	cacheControlPlaylist = "no-store, no-cache, must-revalidate, max-age=0"
	cacheControlMedia    = "public, max-age=3600"
)

// Processes is the view of the stream supervisor the relay needs.
type Processes interface {
	OutputDir(agentID string) (string, bool)
	Get(agentID string) (stream.ProcessInfo, bool)
}

// Relay serves files produced by the transcoder for each agent.
type Relay struct {
	root  string
	procs Processes
}

func NewRelay(root string, procs Processes) *Relay {
	return &Relay{root: root, procs: procs}
}

// File is a resolved relay file. Playlists are read and rewritten eagerly;
// everything else is served from Path.
type File struct {
	Path        string
	ContentType string
	Playlist    bool
	Body        []byte
}

// Headers returns the response headers for f.
func (f *File) Headers() map[string]string {
	headers := map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "GET, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type",
		"Cache-Control":                cacheControlMedia,
	}
	if f.Playlist {
		headers["Cache-Control"] = cacheControlPlaylist
	}
	return headers
}

// Open resolves filename inside the agent's current output directory.
func (r *Relay) Open(agentID, filename string) (*File, error) {
	path, err := r.resolve(agentID, filename)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		slog.Warn("Requested HLS file not found", "agent_id", agentID, "path", path)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, filename)
	}

	file := &File{Path: path, ContentType: ContentType(path)}
	if strings.HasSuffix(path, ".m3u8") {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		file.Playlist = true
		file.Body = []byte(RewritePlaylist(string(content), agentID))
	}

	slog.Debug("Serving HLS file", "agent_id", agentID, "path", path, "size", info.Size())
	return file, nil
}

// Dir returns the directory files for agentID are served from.
func (r *Relay) Dir(agentID string) string {
	if r.procs != nil {
		if dir, ok := r.procs.OutputDir(agentID); ok {
			return dir
		}
	}
	return filepath.Join(r.root, agentID)
}

func (r *Relay) resolve(agentID, filename string) (string, error) {
	if agentID == "" || agentID == "." || agentID == ".." || strings.ContainsAny(agentID, `/\`) {
		return "", fmt.Errorf("%w: agent id %q", ErrInvalidPath, agentID)
	}

	// Route captures carry one leading slash.
	name := strings.TrimPrefix(filename, "/")
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, filename)
	}
	for _, part := range strings.FieldsFunc(name, func(c rune) bool { return c == '/' || c == '\\' }) {
		if part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, filename)
		}
	}

	dir := r.Dir(agentID)
	path := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, filename)
	}
	return path, nil
}

func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".m3u8":
		return ContentTypePlaylist
	case ".ts":
		return ContentTypeSegment
	default:
		return ContentTypeOther
	}
}
