package media

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrNotSupported is returned when an optional operation is not supported.
var ErrNotSupported = errors.New("operation not supported")

// ErrSourceClosed is returned by reads on a closed source.
var ErrSourceClosed = errors.New("source closed")

// SourceType identifies the type of media source.
type SourceType int

const (
	SourceTypeUnknown     SourceType = iota
	SourceTypeDevice                 // Capture device (via ffmpeg)
	SourceTypeTestPattern            // Synthetic generator
)

func (s SourceType) String() string {
	switch s {
	case SourceTypeDevice:
		return "Device"
	case SourceTypeTestPattern:
		return "TestPattern"
	default:
		return "Unknown"
	}
}

// SourceConfig describes a video source's configuration.
type SourceConfig struct {
	Width      int         // Frame width in pixels
	Height     int         // Frame height in pixels
	FPS        int         // Frames per second
	Format     PixelFormat // Pixel format
	SourceType SourceType  // Type of source
}

// VideoSource produces raw video frames.
type VideoSource interface {
	io.Closer

	// Start begins capture/generation.
	Start(ctx context.Context) error

	// Stop halts capture/generation.
	Stop() error

	// ReadFrame reads the next frame (blocking). The source must not reuse
	// a returned frame's buffers; tracks share frames between consumers.
	ReadFrame(ctx context.Context) (*VideoFrame, error)

	// Config returns the source configuration.
	Config() SourceConfig
}

// AudioSource produces raw audio samples.
type AudioSource interface {
	io.Closer

	// Start begins capture/generation.
	Start(ctx context.Context) error

	// Stop halts capture/generation.
	Stop() error

	// ReadSamples reads the next audio samples (blocking).
	ReadSamples(ctx context.Context) (*AudioSamples, error)

	// SampleRate returns the audio sample rate.
	SampleRate() int

	// Channels returns the number of audio channels.
	Channels() int
}

// Fan-out buffer depths per sink.
const (
	videoSinkDepth = 4
	audioSinkDepth = 16
)

// sourceVideoTrack adapts a started VideoSource to the VideoTrack interface.
// A pump goroutine reads the source and fans frames out to the track's
// sinks. Closing the track closes the source.
type sourceVideoTrack struct {
	*BaseTrack
	source   VideoSource
	deviceID string
	frames   *fanout[*VideoFrame]
	primary  <-chan *VideoFrame
	cancel   context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// NewVideoSourceTrack wraps a started source as a live video track. The
// track ends when the source fails.
func NewVideoSourceTrack(label, deviceID string, source VideoSource) VideoTrack {
	ctx, cancel := context.WithCancel(context.Background())
	t := &sourceVideoTrack{
		BaseTrack: NewBaseTrack(label, RTPCodecTypeVideo),
		source:    source,
		deviceID:  deviceID,
		frames:    newFanout[*VideoFrame](videoSinkDepth),
		cancel:    cancel,
	}
	t.primary, _ = t.frames.add()
	go func() {
		_ = t.frames.pump(ctx, source.ReadFrame)
		t.End()
	}()
	return t
}

func (t *sourceVideoTrack) ReadFrame(ctx context.Context) (*VideoFrame, error) {
	if t.State() == TrackStateEnded {
		return nil, ErrTrackEnded
	}
	return recv(ctx, t.primary)
}

func (t *sourceVideoTrack) AddSink() (<-chan *VideoFrame, func()) {
	return t.frames.add()
}

func (t *sourceVideoTrack) Settings() VideoTrackSettings {
	cfg := t.source.Config()
	return VideoTrackSettings{
		Width:     cfg.Width,
		Height:    cfg.Height,
		FrameRate: cfg.FPS,
		Format:    cfg.Format,
		DeviceID:  t.deviceID,
	}
}

func (t *sourceVideoTrack) Close() error {
	t.cancel()
	t.End()
	t.closeOnce.Do(func() { t.closeErr = t.source.Close() })
	return t.closeErr
}

// sourceAudioTrack adapts a started AudioSource to the AudioTrack interface.
type sourceAudioTrack struct {
	*BaseTrack
	source           AudioSource
	deviceID         string
	echoCancellation bool
	samples          *fanout[*AudioSamples]
	primary          <-chan *AudioSamples
	cancel           context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// NewAudioSourceTrack wraps a started source as a live audio track.
func NewAudioSourceTrack(label, deviceID string, source AudioSource, echoCancellation bool) AudioTrack {
	ctx, cancel := context.WithCancel(context.Background())
	t := &sourceAudioTrack{
		BaseTrack:        NewBaseTrack(label, RTPCodecTypeAudio),
		source:           source,
		deviceID:         deviceID,
		echoCancellation: echoCancellation,
		samples:          newFanout[*AudioSamples](audioSinkDepth),
		cancel:           cancel,
	}
	t.primary, _ = t.samples.add()
	go func() {
		_ = t.samples.pump(ctx, source.ReadSamples)
		t.End()
	}()
	return t
}

func (t *sourceAudioTrack) ReadSamples(ctx context.Context) (*AudioSamples, error) {
	if t.State() == TrackStateEnded {
		return nil, ErrTrackEnded
	}
	return recv(ctx, t.primary)
}

func (t *sourceAudioTrack) AddSink() (<-chan *AudioSamples, func()) {
	return t.samples.add()
}

func (t *sourceAudioTrack) Settings() AudioTrackSettings {
	return AudioTrackSettings{
		SampleRate:       t.source.SampleRate(),
		ChannelCount:     t.source.Channels(),
		Format:           AudioFormatS16,
		DeviceID:         t.deviceID,
		EchoCancellation: t.echoCancellation,
	}
}

func (t *sourceAudioTrack) Close() error {
	t.cancel()
	t.End()
	t.closeOnce.Do(func() { t.closeErr = t.source.Close() })
	return t.closeErr
}
