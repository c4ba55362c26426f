package media

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrRecorderState is returned by Start/Stop when called in the wrong state.
var ErrRecorderState = errors.New("invalid recorder state")

// RecorderState mirrors MediaRecorder.state.
type RecorderState int

const (
	RecorderStateInactive RecorderState = iota
	RecorderStateRecording
)

func (s RecorderState) String() string {
	switch s {
	case RecorderStateInactive:
		return "inactive"
	case RecorderStateRecording:
		return "recording"
	default:
		return "unknown"
	}
}

// MediaRecorder encodes a MediaStream into chunks of a container format
// (like the browser's MediaRecorder). Callbacks must be set before Start.
type MediaRecorder interface {
	// MimeType returns the format being recorded.
	MimeType() string

	// State returns the current recorder state.
	State() RecorderState

	// Start begins recording. With a positive timeslice a chunk is emitted
	// roughly every timeslice; otherwise one chunk is emitted at stop.
	Start(timeslice time.Duration) error

	// Stop ends recording. It returns after the final chunk and the stop
	// callback have been delivered.
	Stop() error

	// OnDataAvailable sets the chunk callback. Chunks are delivered one at
	// a time, in order, and may be empty.
	OnDataAvailable(callback func(Blob))

	// OnStop sets the callback run once recording has ended, whether by Stop
	// or by failure.
	OnStop(callback func())

	// OnError sets the callback for failures during recording.
	OnError(callback func(error))
}

// MediaRecorderOptions configures a recorder.
type MediaRecorderOptions struct {
	MimeType           string
	VideoBitsPerSecond int `validate:"gte=0"`
	AudioBitsPerSecond int `validate:"gte=0"`
	Logger             *zap.Logger `validate:"-"`
}

// RecorderFactory creates a recorder for a stream. It is the seam between
// the controller and the recording backend.
type RecorderFactory func(stream MediaStream, options MediaRecorderOptions) (MediaRecorder, error)
