package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Re-export pion's RTPCodecType so track kinds line up with WebRTC code.
type RTPCodecType = webrtc.RTPCodecType

const (
	RTPCodecTypeUnknown = webrtc.RTPCodecTypeUnknown
	RTPCodecTypeAudio   = webrtc.RTPCodecTypeAudio
	RTPCodecTypeVideo   = webrtc.RTPCodecTypeVideo
)

// ErrTrackEnded is returned by reads on a track that has been stopped.
var ErrTrackEnded = errors.New("track ended")

// TrackState represents the state of a track.
type TrackState int

const (
	TrackStateLive  TrackState = iota // Track is active and producing media
	TrackStateEnded                   // Track has ended
)

func (s TrackState) String() string {
	switch s {
	case TrackStateLive:
		return "live"
	case TrackStateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// MediaStreamTrack represents a single audio or video track.
// This is similar to the browser's MediaStreamTrack interface; Close is
// the equivalent of track.stop() and releases the underlying device.
type MediaStreamTrack interface {
	io.Closer

	// ID returns the unique identifier for this track.
	ID() string

	// Kind returns the track kind (audio or video).
	Kind() RTPCodecType

	// Label returns a human-readable label for the track source.
	Label() string

	// State returns the current track state.
	State() TrackState

	// Enabled returns whether the track is enabled. Recorders write black
	// frames and silence for a disabled track.
	Enabled() bool

	// SetEnabled sets the enabled state.
	SetEnabled(enabled bool)

	// Done is closed when the track ends.
	Done() <-chan struct{}
}

// VideoTrack is a MediaStreamTrack that produces video frames.
type VideoTrack interface {
	MediaStreamTrack

	// ReadFrame reads the next video frame from the track's primary sink.
	ReadFrame(ctx context.Context) (*VideoFrame, error)

	// AddSink registers an extra consumer. The channel holds the newest
	// frames; frames are shared between sinks and must not be modified.
	// Call remove to unregister.
	AddSink() (frames <-chan *VideoFrame, remove func())

	// Settings returns the actual video settings.
	Settings() VideoTrackSettings
}

// VideoTrackSettings describes the actual video track settings.
type VideoTrackSettings struct {
	Width     int
	Height    int
	FrameRate int
	Format    PixelFormat
	DeviceID  string
}

// AudioTrack is a MediaStreamTrack that produces audio samples.
type AudioTrack interface {
	MediaStreamTrack

	// ReadSamples reads the next block of audio samples from the track's
	// primary sink.
	ReadSamples(ctx context.Context) (*AudioSamples, error)

	// AddSink registers an extra consumer, see VideoTrack.AddSink.
	AddSink() (samples <-chan *AudioSamples, remove func())

	// Settings returns the actual audio settings.
	Settings() AudioTrackSettings
}

// AudioTrackSettings describes the actual audio track settings.
type AudioTrackSettings struct {
	SampleRate       int
	ChannelCount     int
	Format           AudioFormat
	DeviceID         string
	EchoCancellation bool
}

// MediaStream is a collection of tracks (like browser's MediaStream).
type MediaStream interface {
	io.Closer

	// ID returns the unique identifier for this stream.
	ID() string

	// Active returns whether any track in the stream is live.
	Active() bool

	// GetTracks returns all tracks in the stream.
	GetTracks() []MediaStreamTrack

	// GetVideoTracks returns all video tracks.
	GetVideoTracks() []VideoTrack

	// GetAudioTracks returns all audio tracks.
	GetAudioTracks() []AudioTrack

	// AddTrack adds a track to the stream.
	AddTrack(track MediaStreamTrack)
}

// BaseTrack provides common functionality for tracks.
type BaseTrack struct {
	id      string
	label   string
	kind    RTPCodecType
	state   atomic.Int32
	enabled atomic.Bool
	ended   chan struct{}
}

// NewBaseTrack creates a new live base track with a random ID.
func NewBaseTrack(label string, kind RTPCodecType) *BaseTrack {
	t := &BaseTrack{
		id:    uuid.NewString(),
		label: label,
		kind:  kind,
		ended: make(chan struct{}),
	}
	t.state.Store(int32(TrackStateLive))
	t.enabled.Store(true)
	return t
}

func (t *BaseTrack) ID() string         { return t.id }
func (t *BaseTrack) Kind() RTPCodecType { return t.kind }
func (t *BaseTrack) Label() string      { return t.label }

func (t *BaseTrack) State() TrackState {
	return TrackState(t.state.Load())
}

// End marks the track ended. It reports whether this call performed the
// transition, so implementations can release resources exactly once.
func (t *BaseTrack) End() bool {
	old := TrackState(t.state.Swap(int32(TrackStateEnded)))
	if old == TrackStateEnded {
		return false
	}
	close(t.ended)
	return true
}

// Done is closed once the track has ended.
func (t *BaseTrack) Done() <-chan struct{} { return t.ended }

func (t *BaseTrack) Enabled() bool     { return t.enabled.Load() }
func (t *BaseTrack) SetEnabled(e bool) { t.enabled.Store(e) }

// SimpleMediaStream is a basic MediaStream implementation.
type SimpleMediaStream struct {
	id     string
	tracks []MediaStreamTrack
	mu     sync.RWMutex
}

// NewMediaStream creates a new, empty media stream with a random ID.
func NewMediaStream() *SimpleMediaStream {
	return &SimpleMediaStream{
		id:     uuid.NewString(),
		tracks: make([]MediaStreamTrack, 0),
	}
}

func (s *SimpleMediaStream) ID() string { return s.id }

func (s *SimpleMediaStream) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tracks {
		if t.State() == TrackStateLive {
			return true
		}
	}
	return false
}

func (s *SimpleMediaStream) GetTracks() []MediaStreamTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]MediaStreamTrack, len(s.tracks))
	copy(result, s.tracks)
	return result
}

func (s *SimpleMediaStream) GetVideoTracks() []VideoTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []VideoTrack
	for _, t := range s.tracks {
		if t.Kind() != RTPCodecTypeVideo {
			continue
		}
		if vt, ok := t.(VideoTrack); ok {
			result = append(result, vt)
		}
	}
	return result
}

func (s *SimpleMediaStream) GetAudioTracks() []AudioTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []AudioTrack
	for _, t := range s.tracks {
		if t.Kind() != RTPCodecTypeAudio {
			continue
		}
		if at, ok := t.(AudioTrack); ok {
			result = append(result, at)
		}
	}
	return result
}

func (s *SimpleMediaStream) AddTrack(track MediaStreamTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, track)
}

// Close stops every track in the stream. The stream keeps its track list so
// callers can still observe the ended tracks.
func (s *SimpleMediaStream) Close() error {
	var errs []error
	for _, t := range s.GetTracks() {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("stop track %s: %w", t.ID(), err))
		}
	}
	return errors.Join(errs...)
}
