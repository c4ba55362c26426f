package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FFmpegProviderConfig configures an FFmpegProvider.
type FFmpegProviderConfig struct {
	FFmpegPath string      // ffmpeg binary (default: "ffmpeg" from PATH)
	Logger     *zap.Logger // default: no-op

	// Defaults for unconstrained requests.
	Width      int // default: 640
	Height     int // default: 480
	FrameRate  int // default: 30
	SampleRate int // default: 48000
	Channels   int // default: 1

	// StartTimeout bounds how long opening a device may take before the
	// first frame arrives (default: 10s).
	StartTimeout time.Duration

	// Virtual adds lavfi test devices to the listings, so the provider
	// works on machines without a camera.
	Virtual bool
}

// FFmpegProvider captures real devices through one ffmpeg process per track.
// Video is decoded to packed I420, audio to S16 little-endian.
type FFmpegProvider struct {
	config FFmpegProviderConfig
	logger *zap.Logger
	goos   string
}

// NewFFmpegProvider creates a device provider backed by ffmpeg.
func NewFFmpegProvider(config FFmpegProviderConfig) *FFmpegProvider {
	if config.Width <= 0 {
		config.Width = 640
	}
	if config.Height <= 0 {
		config.Height = 480
	}
	if config.FrameRate <= 0 {
		config.FrameRate = 30
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 48000
	}
	if config.Channels <= 0 {
		config.Channels = 1
	}
	if config.StartTimeout <= 0 {
		config.StartTimeout = 10 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FFmpegProvider{
		config: config,
		logger: logger.Named("ffmpeg-provider"),
		goos:   runtime.GOOS,
	}
}

var (
	virtualCamera     = DeviceInfo{DeviceID: lavfiPrefix + "testsrc2", GroupID: "lavfi", Kind: DeviceKindVideoInput, Label: "ffmpeg testsrc2"}
	virtualMicrophone = DeviceInfo{DeviceID: lavfiPrefix + "sine=frequency=440", GroupID: "lavfi", Kind: DeviceKindAudioInput, Label: "ffmpeg sine 440Hz"}
)

func (p *FFmpegProvider) ListVideoDevices(ctx context.Context) ([]DeviceInfo, error) {
	devices, err := p.listDevices(ctx, DeviceKindVideoInput)
	if p.config.Virtual {
		devices = append(devices, virtualCamera)
		err = nil
	}
	return devices, err
}

func (p *FFmpegProvider) ListAudioInputDevices(ctx context.Context) ([]DeviceInfo, error) {
	devices, err := p.listDevices(ctx, DeviceKindAudioInput)
	if p.config.Virtual {
		devices = append(devices, virtualMicrophone)
		err = nil
	}
	return devices, err
}

func (p *FFmpegProvider) listDevices(ctx context.Context, kind DeviceKind) ([]DeviceInfo, error) {
	switch p.goos {
	case "darwin", "windows":
		bin, err := lookFFmpeg(p.config.FFmpegPath)
		if err != nil {
			return nil, err
		}
		if p.goos == "darwin" {
			out, err := runListing(ctx, bin, "-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", "")
			if err != nil {
				return nil, fmt.Errorf("failed to list devices: %w", err)
			}
			return parseAVFoundationDevices(out, kind), nil
		}
		out, err := runListing(ctx, bin, "-hide_banner", "-list_devices", "true", "-f", "dshow", "-i", "dummy")
		if err != nil {
			return nil, fmt.Errorf("failed to list devices: %w", err)
		}
		return parseDShowDevices(out, kind), nil
	default:
		if kind == DeviceKindVideoInput {
			return listV4L2Devices()
		}
		out, err := runListing(ctx, "arecord", "-l")
		if err != nil {
			p.logger.Debug("arecord unavailable, using default ALSA device", zap.Error(err))
			return []DeviceInfo{{DeviceID: "default", Kind: DeviceKindAudioInput, Label: "Default ALSA device"}}, nil
		}
		return parseARecordDevices(out), nil
	}
}

// listV4L2Devices reads /dev/video* and labels them from sysfs.
func listV4L2Devices() ([]DeviceInfo, error) {
	paths, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	devices := make([]DeviceInfo, 0, len(paths))
	for _, path := range paths {
		name := filepath.Base(path)
		label := name
		if b, err := os.ReadFile(filepath.Join("/sys/class/video4linux", name, "name")); err == nil {
			label = strings.TrimSpace(string(b))
		}
		devices = append(devices, DeviceInfo{DeviceID: path, GroupID: label, Kind: DeviceKindVideoInput, Label: label})
	}
	return devices, nil
}

func (p *FFmpegProvider) OpenVideoDevice(ctx context.Context, deviceID string, constraints *VideoConstraints) (VideoTrack, error) {
	bin, err := lookFFmpeg(p.config.FFmpegPath)
	if err != nil {
		return nil, err
	}

	width, height, fps := p.config.Width, p.config.Height, p.config.FrameRate
	if constraints != nil {
		if constraints.Width > 0 {
			width = constraints.Width
		}
		if constraints.Height > 0 {
			height = constraints.Height
		}
		if constraints.FrameRate > 0 {
			fps = constraints.FrameRate
		}
	}
	width &^= 1
	height &^= 1

	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	args = append(args, captureInputArgs(p.goos, DeviceKindVideoInput, deviceID, width, height, fps)...)
	args = append(args,
		"-vf", fmt.Sprintf("scale=%d:%d,fps=%d", width, height, fps),
		"-pix_fmt", PixelFormatI420.FFmpegName(),
		"-f", "rawvideo", "pipe:1",
	)

	source := &ffmpegVideoSource{
		proc:   newCaptureProcess(bin, args, I420Size(width, height), p.logger.With(zap.String("device", deviceID))),
		config: SourceConfig{Width: width, Height: height, FPS: fps, Format: PixelFormatI420, SourceType: SourceTypeDevice},
	}
	if err := p.start(ctx, source.proc); err != nil {
		return nil, fmt.Errorf("failed to start capture: %w", err)
	}
	p.logger.Info("video device opened",
		zap.String("device", deviceID), zap.Int("width", width), zap.Int("height", height), zap.Int("fps", fps))
	return NewVideoSourceTrack(p.label(ctx, DeviceKindVideoInput, deviceID), deviceID, source), nil
}

func (p *FFmpegProvider) OpenAudioDevice(ctx context.Context, deviceID string, constraints *AudioConstraints) (AudioTrack, error) {
	bin, err := lookFFmpeg(p.config.FFmpegPath)
	if err != nil {
		return nil, err
	}

	rate, channels := p.config.SampleRate, p.config.Channels
	echo := false
	if constraints != nil {
		if constraints.SampleRate > 0 {
			rate = constraints.SampleRate
		}
		if constraints.ChannelCount > 0 {
			channels = constraints.ChannelCount
		}
		echo = constraints.EchoCancellation
	}

	// 20ms blocks.
	frameSize := rate / 50
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	args = append(args, captureInputArgs(p.goos, DeviceKindAudioInput, deviceID, 0, 0, 0)...)
	if echo {
		// ffmpeg has no acoustic echo canceller; a speech band-pass plus
		// noise reduction is the closest capture-side approximation.
		args = append(args, "-af", "highpass=f=100,lowpass=f=8000,afftdn")
	}
	args = append(args,
		"-ar", fmt.Sprint(rate), "-ac", fmt.Sprint(channels),
		"-f", AudioFormatS16.FFmpegName(), "pipe:1",
	)

	source := &ffmpegAudioSource{
		proc:       newCaptureProcess(bin, args, frameSize*channels*AudioFormatS16.BytesPerSample(), p.logger.With(zap.String("device", deviceID))),
		sampleRate: rate,
		channels:   channels,
	}
	if err := p.start(ctx, source.proc); err != nil {
		return nil, fmt.Errorf("failed to start capture: %w", err)
	}
	p.logger.Info("audio device opened",
		zap.String("device", deviceID), zap.Int("sample_rate", rate), zap.Int("channels", channels), zap.Bool("echo_cancellation", echo))
	return NewAudioSourceTrack(p.label(ctx, DeviceKindAudioInput, deviceID), deviceID, source, echo), nil
}

// start launches the process and waits for its first block so open errors
// (busy device, denied permission) surface from GetUserMedia.
func (p *FFmpegProvider) start(ctx context.Context, proc *captureProcess) error {
	ctx, cancel := context.WithTimeout(ctx, p.config.StartTimeout)
	defer cancel()
	return proc.start(ctx)
}

func (p *FFmpegProvider) label(ctx context.Context, kind DeviceKind, deviceID string) string {
	var devices []DeviceInfo
	if kind == DeviceKindVideoInput {
		devices, _ = p.ListVideoDevices(ctx)
	} else {
		devices, _ = p.ListAudioInputDevices(ctx)
	}
	for _, d := range devices {
		if d.DeviceID == deviceID {
			return d.Label
		}
	}
	return deviceID
}

// captureProcess runs one ffmpeg capture and cuts its stdout into fixed
// size blocks.
type captureProcess struct {
	path      string
	args      []string
	blockSize int
	logger    *zap.Logger

	cmd    *exec.Cmd
	stderr *boundedBuffer
	blocks chan []byte
	ready  chan struct{}
	done   chan struct{}
	err    error // valid after done is closed

	stopping  bool
	stopOnce  sync.Once
	readyOnce sync.Once
	mu        sync.Mutex
}

func newCaptureProcess(path string, args []string, blockSize int, logger *zap.Logger) *captureProcess {
	return &captureProcess{
		path:      path,
		args:      args,
		blockSize: blockSize,
		logger:    logger,
		stderr:    newBoundedBuffer(maxStderrSize),
		blocks:    make(chan []byte, 2),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (c *captureProcess) start(ctx context.Context) error {
	// The process outlives ctx, which only bounds the wait for the first block.
	c.cmd = exec.Command(c.path, c.args...)
	c.cmd.Stderr = c.stderr
	stdout, err := c.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	c.logger.Debug("starting ffmpeg", zap.Strings("args", c.args))
	if err := c.cmd.Start(); err != nil {
		return &FFmpegError{Op: "start", Err: err}
	}

	go c.readLoop(stdout)

	select {
	case <-c.ready:
		return nil
	case <-c.done:
		return c.err
	case <-ctx.Done():
		_ = c.stop()
		return ctx.Err()
	}
}

func (c *captureProcess) readLoop(stdout io.Reader) {
	defer close(c.done)

	for {
		buf := make([]byte, c.blockSize)
		if _, err := io.ReadFull(stdout, buf); err != nil {
			break
		}
		c.readyOnce.Do(func() { close(c.ready) })

		// Drop the oldest block when the reader falls behind.
		select {
		case c.blocks <- buf:
		default:
			select {
			case <-c.blocks:
			default:
			}
			select {
			case c.blocks <- buf:
			default:
			}
		}
	}

	waitErr := c.cmd.Wait()

	c.mu.Lock()
	stopping := c.stopping
	c.mu.Unlock()

	switch {
	case stopping:
		c.err = ErrSourceClosed
	case waitErr != nil:
		c.err = &FFmpegError{Op: "capture", Err: waitErr, Stderr: c.stderr.String()}
		c.logger.Warn("ffmpeg capture exited", zap.Error(c.err))
	default:
		c.err = io.EOF
	}
}

func (c *captureProcess) read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case buf := <-c.blocks:
		return buf, nil
	case <-c.done:
		return nil, c.err
	}
}

// stop kills the process and waits for it to be reaped.
func (c *captureProcess) stop() error {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopping = true
		c.mu.Unlock()
		if c.cmd != nil && c.cmd.Process != nil {
			if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				c.logger.Debug("failed to kill ffmpeg", zap.Error(err))
			}
		}
	})
	if c.cmd != nil && c.cmd.Process != nil {
		<-c.done
	}
	return nil
}

// ffmpegVideoSource is a VideoSource over a running capture process.
type ffmpegVideoSource struct {
	proc   *captureProcess
	config SourceConfig
}

func (s *ffmpegVideoSource) Start(ctx context.Context) error { return nil }
func (s *ffmpegVideoSource) Stop() error                     { return s.proc.stop() }
func (s *ffmpegVideoSource) Close() error                    { return s.proc.stop() }
func (s *ffmpegVideoSource) Config() SourceConfig            { return s.config }

func (s *ffmpegVideoSource) ReadFrame(ctx context.Context) (*VideoFrame, error) {
	buf, err := s.proc.read(ctx)
	if err != nil {
		return nil, err
	}
	frame := FrameFromI420(buf, s.config.Width, s.config.Height)
	frame.Duration = int64(time.Second) / int64(s.config.FPS)
	return frame, nil
}

// ffmpegAudioSource is an AudioSource over a running capture process.
type ffmpegAudioSource struct {
	proc       *captureProcess
	sampleRate int
	channels   int
}

func (s *ffmpegAudioSource) Start(ctx context.Context) error { return nil }
func (s *ffmpegAudioSource) Stop() error                     { return s.proc.stop() }
func (s *ffmpegAudioSource) Close() error                    { return s.proc.stop() }
func (s *ffmpegAudioSource) SampleRate() int                 { return s.sampleRate }
func (s *ffmpegAudioSource) Channels() int                   { return s.channels }

func (s *ffmpegAudioSource) ReadSamples(ctx context.Context) (*AudioSamples, error) {
	buf, err := s.proc.read(ctx)
	if err != nil {
		return nil, err
	}
	return &AudioSamples{
		Data:        buf,
		SampleRate:  s.sampleRate,
		Channels:    s.channels,
		SampleCount: len(buf) / (2 * s.channels),
		Format:      AudioFormatS16,
	}, nil
}
