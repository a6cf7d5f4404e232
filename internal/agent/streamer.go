package agent

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/EternisAI/silo-control/internal/stream"
)

const streamType = "mpegts"

// Streamer publishes this host's screen as an MPEG-TS listener the controller
// pulls from, restarting the capture process with linear backoff.
type Streamer struct {
	cfg      StreamConfig
	platform Platform
	api      *apiClient

	command func(ctx context.Context, name string, args ...string) *exec.Cmd
	sleep   func(ctx context.Context, d time.Duration) bool
}

func newStreamer(cfg StreamConfig, platform Platform, api *apiClient) *Streamer {
	return &Streamer{
		cfg:      cfg,
		platform: platform,
		api:      api,
		command:  exec.CommandContext,
		sleep:    sleepContext,
	}
}

// Run keeps the capture process alive until ctx is done or the restart
// budget is spent.
func (s *Streamer) Run(ctx context.Context) {
	format, device, ok := s.platform.CaptureInput()
	if !ok {
		slog.Warn("Screen capture not available on this platform, streaming disabled")
		return
	}
	if _, err := exec.LookPath(s.cfg.FFmpegPath); err != nil {
		slog.Error("FFmpeg not found, streaming disabled", "ffmpeg_path", s.cfg.FFmpegPath, "error", err)
		return
	}

	attempts := 0
	for {
		started, err := s.runOnce(ctx, format, device)
		if ctx.Err() != nil {
			return
		}

		// A run that got past startup spends none of the restart budget.
		if started {
			attempts = 0
		}
		attempts++
		if attempts > s.cfg.MaxRestarts {
			slog.Error("Capture process restart limit reached, streaming stopped",
				"restarts", s.cfg.MaxRestarts,
				"error", err)
			return
		}

		delay := s.cfg.RestartDelay * time.Duration(attempts)
		slog.Warn("Capture process exited, restarting",
			"attempt", attempts,
			"max_restarts", s.cfg.MaxRestarts,
			"delay", delay,
			"error", err)
		if !s.sleep(ctx, delay) {
			return
		}
	}
}

// runOnce starts one capture process, registers it once it survived the
// startup delay, and blocks until it exits. started reports whether the
// process got past the startup delay.
func (s *Streamer) runOnce(ctx context.Context, format, device string) (started bool, err error) {
	resolution := screenResolution(s.platform)
	cmd := s.command(ctx, s.cfg.FFmpegPath, captureArgs(s.cfg, format, device, resolution)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return false, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return false, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("start capture: %w", err)
	}
	slog.Info("Capture process started", "pid", cmd.Process.Pid, "port", s.cfg.Port, "resolution", resolution)

	var drains sync.WaitGroup
	drains.Add(2)
	go func() {
		defer drains.Done()
		stream.LogOutput(stdout, "Capture output", "pipe", "stdout")
	}()
	go func() {
		defer drains.Done()
		stream.LogOutput(stderr, "Capture output", "pipe", "stderr")
	}()

	exited := make(chan error, 1)
	go func() {
		drains.Wait()
		exited <- cmd.Wait()
	}()

	select {
	case err := <-exited:
		return false, fmt.Errorf("capture exited during startup: %w", exitError(err))
	case <-ctx.Done():
		return false, <-exited
	case <-time.After(s.cfg.StartupDelay):
	}

	streamURL := s.advertiseURL()
	err = retry.Do(func() error {
		return s.api.registerStream(ctx, streamType, streamURL)
	}, retry.Context(ctx), retry.Attempts(3), retry.Delay(3*time.Second), retry.MaxDelay(10*time.Second))
	if err != nil {
		slog.Error("Failed to register stream with controller", "stream_url", streamURL, "error", err)
	} else {
		slog.Info("Stream registered with controller", "stream_url", streamURL)
	}

	return true, exitError(<-exited)
}

func (s *Streamer) advertiseURL() string {
	host := s.cfg.AdvertiseHost
	if host == "" {
		host = outboundIP(s.api.baseURL)
	}
	return "tcp://" + net.JoinHostPort(host, strconv.Itoa(s.cfg.Port))
}

func captureArgs(cfg StreamConfig, format, device, resolution string) []string {
	rate := strconv.Itoa(cfg.FrameRate)
	return []string{
		"-f", format,
		"-framerate", rate,
		"-video_size", resolution,
		"-i", device,
		"-vcodec", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-pix_fmt", "yuv420p",
		"-r", rate,
		"-g", rate,
		"-keyint_min", rate,
		"-sc_threshold", "0",
		"-b:v", cfg.Bitrate,
		"-maxrate", cfg.Bitrate,
		"-bufsize", "500k",
		"-f", "mpegts",
		"-flush_packets", "1",
		"-loglevel", "info",
		fmt.Sprintf("tcp://0.0.0.0:%d?listen", cfg.Port),
	}
}

// outboundIP finds the local address used to reach the controller.
func outboundIP(serverURL string) string {
	target := "8.8.8.8:80"
	if u, err := url.Parse(serverURL); err == nil && u.Hostname() != "" {
		port := u.Port()
		if port == "" {
			port = "80"
		}
		target = net.JoinHostPort(u.Hostname(), port)
	}

	conn, err := net.Dial("udp", target)
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}

func exitError(err error) error {
	if err == nil {
		return fmt.Errorf("capture process exited")
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
