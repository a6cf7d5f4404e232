package stream

import "time"

type Config struct {
	FFmpegPath      string        `mapstructure:"ffmpeg_path"`
	OutputRoot      string        `mapstructure:"output_root"`
	PortRange       PortRange     `mapstructure:"port_range"`
	GracePeriod     time.Duration `mapstructure:"grace_period"`
	WatchWindow     time.Duration `mapstructure:"watch_window"`
	WatchInterval   time.Duration `mapstructure:"watch_interval"`
	MaxRestarts     int           `mapstructure:"max_restarts"`
	RestartDelay    time.Duration `mapstructure:"restart_delay"`
	MaxRestartDelay time.Duration `mapstructure:"max_restart_delay"`
}

type PortRange struct {
	Start int `mapstructure:"start"`
	End   int `mapstructure:"end"`
}

const (
	defaultFFmpegPath      = "ffmpeg"
	defaultOutputRoot      = "static/streams"
	defaultPortStart       = 8100
	defaultPortEnd         = 8999
	defaultGracePeriod     = 2 * time.Second
	defaultWatchWindow     = 60 * time.Second
	defaultWatchInterval   = 5 * time.Second
	defaultMaxRestarts     = 5
	defaultRestartDelay    = 5 * time.Second
	defaultMaxRestartDelay = 30 * time.Second
)

func (c Config) withDefaults() Config {
	if c.FFmpegPath == "" {
		c.FFmpegPath = defaultFFmpegPath
	}
	if c.OutputRoot == "" {
		c.OutputRoot = defaultOutputRoot
	}
	if c.PortRange.Start == 0 && c.PortRange.End == 0 {
		c.PortRange = PortRange{Start: defaultPortStart, End: defaultPortEnd}
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = defaultGracePeriod
	}
	if c.WatchWindow <= 0 {
		c.WatchWindow = defaultWatchWindow
	}
	if c.WatchInterval <= 0 {
		c.WatchInterval = defaultWatchInterval
	}
	if c.MaxRestarts < 0 {
		c.MaxRestarts = 0
	} else if c.MaxRestarts == 0 {
		c.MaxRestarts = defaultMaxRestarts
	}
	if c.RestartDelay <= 0 {
		c.RestartDelay = defaultRestartDelay
	}
	if c.MaxRestartDelay <= 0 {
		c.MaxRestartDelay = defaultMaxRestartDelay
	}
	return c
}
