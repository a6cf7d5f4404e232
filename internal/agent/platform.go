package agent

import (
	"errors"
	"runtime"
)

var ErrUnsupported = errors.New("not supported on this platform")

// Platform describes the host capabilities the agent cannot probe portably.
type Platform interface {
	// ScreenResolution returns the primary display size as WIDTHxHEIGHT.
	ScreenResolution() (string, error)
	// CaptureInput returns the ffmpeg input format and device for the
	// desktop, or ok=false when screen capture is not available.
	CaptureInput() (format, device string, ok bool)
}

type hostPlatform struct {
	resolution string
}

// NewHostPlatform returns the capture settings for the running OS. A
// configured resolution is reported as-is.
func NewHostPlatform(resolution string) Platform {
	return hostPlatform{resolution: resolution}
}

func (p hostPlatform) ScreenResolution() (string, error) {
	if p.resolution == "" {
		return "", ErrUnsupported
	}
	return p.resolution, nil
}

func (p hostPlatform) CaptureInput() (string, string, bool) {
	switch runtime.GOOS {
	case "windows":
		return "gdigrab", "desktop", true
	case "darwin":
		return "avfoundation", "1:none", true
	case "linux":
		return "x11grab", ":0.0", true
	default:
		return "", "", false
	}
}

func screenResolution(p Platform) string {
	if p == nil {
		return fallbackResolution
	}
	res, err := p.ScreenResolution()
	if err != nil || res == "" {
		return fallbackResolution
	}
	return res
}
