package media

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Constraints are the capture settings a Controller requests.
type Constraints struct {
	EchoCancellation bool
	Width            int `validate:"gte=0,lte=7680"`
	Height           int `validate:"gte=0,lte=4320"`
}

// DefaultConstraints requests 1280x720 with echo cancellation.
func DefaultConstraints() Constraints {
	return Constraints{EchoCancellation: true, Width: 1280, Height: 720}
}

// Option configures a Controller.
type Option func(*controllerConfig)

type controllerConfig struct {
	Constraints             Constraints
	EchoCancellationControl bool
	CodecSelection          bool
	Timeslice               time.Duration `validate:"gte=0"`
	DownloadFilename        string        `validate:"required,excludesall=/\\"`
	RevokeDelay             time.Duration `validate:"gte=0"`

	TypeSupport     TypeSupport     `validate:"-"`
	RecorderFactory RecorderFactory `validate:"-"`
	Downloader      Downloader      `validate:"-"`
	ObjectURLs      *ObjectURLs     `validate:"-"`
	Logger          *zap.Logger     `validate:"-"`
}

func defaultControllerConfig() controllerConfig {
	return controllerConfig{
		Constraints:      DefaultConstraints(),
		Timeslice:        time.Second,
		DownloadFilename: "test.webm",
		RevokeDelay:      100 * time.Millisecond,
	}
}

// WithEchoCancellationControl exposes the echo-cancellation checkbox. When
// off, the preference stays at its configured value.
func WithEchoCancellationControl(enabled bool) Option {
	return func(c *controllerConfig) { c.EchoCancellationControl = enabled }
}

// WithCodecSelection lets the user pick among the supported formats. When
// off, recordings use the first supported format.
func WithCodecSelection(enabled bool) Option {
	return func(c *controllerConfig) { c.CodecSelection = enabled }
}

// WithConstraints sets the capture constraints.
func WithConstraints(constraints Constraints) Option {
	return func(c *controllerConfig) { c.Constraints = constraints }
}

// WithTimeslice sets how often the recorder emits chunks. Zero means a
// single chunk when recording stops.
func WithTimeslice(d time.Duration) Option {
	return func(c *controllerConfig) { c.Timeslice = d }
}

// WithDownloadFilename sets the name downloads are saved under.
func WithDownloadFilename(name string) Option {
	return func(c *controllerConfig) { c.DownloadFilename = name }
}

// WithRevokeDelay sets how long a download URL stays valid after the save
// was triggered.
func WithRevokeDelay(d time.Duration) Option {
	return func(c *controllerConfig) { c.RevokeDelay = d }
}

// WithTypeSupport sets the format capability query. Without one every
// candidate format is considered supported.
func WithTypeSupport(support TypeSupport) Option {
	return func(c *controllerConfig) { c.TypeSupport = support }
}

// WithRecorderFactory sets the recording backend (default: ffmpeg from PATH).
func WithRecorderFactory(factory RecorderFactory) Option {
	return func(c *controllerConfig) { c.RecorderFactory = factory }
}

// WithDownloader sets how downloads are saved (default: current directory).
func WithDownloader(d Downloader) Option {
	return func(c *controllerConfig) { c.Downloader = d }
}

// WithObjectURLs shares an object URL registry with the view layer.
func WithObjectURLs(urls *ObjectURLs) Option {
	return func(c *controllerConfig) { c.ObjectURLs = urls }
}

// WithLogger sets the logger (default: no-op).
func WithLogger(logger *zap.Logger) Option {
	return func(c *controllerConfig) { c.Logger = logger }
}

func buildControllerConfig(opts []Option) (controllerConfig, error) {
	cfg := defaultControllerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := validate.Struct(cfg); err != nil {
		return controllerConfig{}, fmt.Errorf("invalid controller options: %w", err)
	}

	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ObjectURLs == nil {
		cfg.ObjectURLs = NewObjectURLs()
	}
	if cfg.RecorderFactory == nil {
		cfg.RecorderFactory = FFmpegRecorderFactory("")
	}
	if cfg.Downloader == nil {
		cfg.Downloader = NewDirDownloader(".", cfg.ObjectURLs)
	}
	return cfg, nil
}
