package media

import "errors"

// Controller errors.
var (
	ErrInvalidState        = errors.New("invalid state")
	ErrNoRecording         = errors.New("no recorded data")
	ErrNoSupportedMimeType = errors.New("no supported recording format")
	ErrControllerClosed    = errors.New("controller closed")
)

// AcquisitionError is a failed camera/microphone request. Its message is
// what the controller shows to the user.
type AcquisitionError struct {
	Err error
}

func (e *AcquisitionError) Error() string { return "getUserMedia error: " + e.Err.Error() }
func (e *AcquisitionError) Unwrap() error { return e.Err }

// RecordingError is a failure to arm or run the recorder.
type RecordingError struct {
	Err error
}

func (e *RecordingError) Error() string { return "MediaRecorder creation error: " + e.Err.Error() }
func (e *RecordingError) Unwrap() error { return e.Err }
