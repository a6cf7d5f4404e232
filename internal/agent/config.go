package agent

import "time"

type Config struct {
	ServerURL            string         `mapstructure:"server_url"`
	CredentialsPath      string         `mapstructure:"credentials_path"`
	PollInterval         time.Duration  `mapstructure:"poll_interval"`
	HeartbeatInterval    time.Duration  `mapstructure:"heartbeat_interval"`
	ScreenInterval       time.Duration  `mapstructure:"screen_interval"`
	NotificationInterval time.Duration  `mapstructure:"notification_interval"`
	RequestTimeout       time.Duration  `mapstructure:"request_timeout"`
	Executor             ExecutorConfig `mapstructure:"executor"`
	Stream               StreamConfig   `mapstructure:"stream"`
}

type ExecutorConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	ProcessListTimeout time.Duration `mapstructure:"process_list_timeout"`
	MaxOutputBytes     int           `mapstructure:"max_output_bytes"`
}

type StreamConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	FFmpegPath    string        `mapstructure:"ffmpeg_path"`
	Port          int           `mapstructure:"port"`
	AdvertiseHost string        `mapstructure:"advertise_host"`
	FrameRate     int           `mapstructure:"frame_rate"`
	Bitrate       string        `mapstructure:"bitrate"`
	Resolution    string        `mapstructure:"resolution"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
	MaxRestarts   int           `mapstructure:"max_restarts"`
	RestartDelay  time.Duration `mapstructure:"restart_delay"`
}

const (
	defaultCredentialsPath      = "agent_credentials.yaml"
	defaultPollInterval         = 5 * time.Second
	defaultHeartbeatInterval    = 5 * time.Second
	defaultScreenInterval       = 5 * time.Second
	defaultNotificationInterval = 2 * time.Second
	defaultRequestTimeout       = 30 * time.Second

	defaultCommandTimeout     = 10 * time.Second
	defaultProcessListTimeout = 30 * time.Second
	defaultMaxOutputBytes     = 1024 * 1024

	defaultStreamPort         = 8090
	defaultStreamFrameRate    = 15
	defaultStreamBitrate      = "1500k"
	defaultStreamStartupDelay = 3 * time.Second
	defaultStreamMaxRestarts  = 5
	defaultStreamRestartDelay = 5 * time.Second

	fallbackResolution = "1920x1080"
)

func (c Config) withDefaults() Config {
	if c.CredentialsPath == "" {
		c.CredentialsPath = defaultCredentialsPath
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.ScreenInterval <= 0 {
		c.ScreenInterval = defaultScreenInterval
	}
	if c.NotificationInterval <= 0 {
		c.NotificationInterval = defaultNotificationInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	c.Executor = c.Executor.withDefaults()

	if c.Stream.FFmpegPath == "" {
		c.Stream.FFmpegPath = "ffmpeg"
	}
	if c.Stream.Port == 0 {
		c.Stream.Port = defaultStreamPort
	}
	if c.Stream.FrameRate <= 0 {
		c.Stream.FrameRate = defaultStreamFrameRate
	}
	if c.Stream.Bitrate == "" {
		c.Stream.Bitrate = defaultStreamBitrate
	}
	if c.Stream.StartupDelay <= 0 {
		c.Stream.StartupDelay = defaultStreamStartupDelay
	}
	if c.Stream.MaxRestarts <= 0 {
		c.Stream.MaxRestarts = defaultStreamMaxRestarts
	}
	if c.Stream.RestartDelay <= 0 {
		c.Stream.RestartDelay = defaultStreamRestartDelay
	}
	return c
}

func (c ExecutorConfig) withDefaults() ExecutorConfig {
	if c.Timeout <= 0 {
		c.Timeout = defaultCommandTimeout
	}
	if c.ProcessListTimeout <= 0 {
		c.ProcessListTimeout = defaultProcessListTimeout
	}
	if c.MaxOutputBytes <= 0 {
		c.MaxOutputBytes = defaultMaxOutputBytes
	}
	return c
}
