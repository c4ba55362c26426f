package media

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the recording lifecycle state. A controller that has recorded
// and stopped is StateIdle with chunks; see View.Stopped.
type State int

const (
	StateIdle State = iota
	StateRecording
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	default:
		return "unknown"
	}
}

const (
	recordLabelStart = "Start Recording"
	recordLabelStop  = "Stop Recording"
)

// Controls are the enabled flags of the user actions.
type Controls struct {
	StartCamera      bool `json:"startCamera"`
	Record           bool `json:"record"`
	Play             bool `json:"play"`
	Download         bool `json:"download"`
	SelectCodec      bool `json:"selectCodec"`
	EchoCancellation bool `json:"echoCancellation"`
}

// Playback describes what the playback surface should show.
type Playback struct {
	URL     string `json:"url,omitempty"`
	Type    string `json:"type,omitempty"`
	Playing bool   `json:"playing"`
}

// Features are the optional affordances the controller was built with.
type Features struct {
	EchoCancellationControl bool `json:"echoCancellationControl"`
	CodecSelection          bool `json:"codecSelection"`
}

// View is an immutable snapshot of the controller. Views are rendered,
// never mutated; every flag is derived from controller state.
type View struct {
	Version          uint64      `json:"version"`
	State            State       `json:"-"`
	StateName        string      `json:"state"`
	Stream           MediaStream `json:"-"`
	StreamID         string      `json:"streamId,omitempty"`
	MimeTypes        []string    `json:"mimeTypes"`
	SelectedMimeType string      `json:"selectedMimeType,omitempty"`
	EchoCancellation bool        `json:"echoCancellation"`
	ChunkCount       int         `json:"chunkCount"`
	RecordedBytes    int         `json:"recordedBytes"`
	Playback         Playback    `json:"playback"`
	ErrorMessage     string      `json:"errorMessage"`
	Controls         Controls    `json:"controls"`
	RecordLabel      string      `json:"recordLabel"`
	Features         Features    `json:"features"`
}

// Stopped reports whether a finished recording is available.
func (v View) Stopped() bool {
	return v.State == StateIdle && v.ChunkCount > 0
}

// session is one start..stop run of a recorder.
type session struct {
	recorder MediaRecorder
	mimeType string
	stopping bool
}

// Controller owns a capture stream and the record/play/download lifecycle
// around it. All methods are safe for concurrent use.
type Controller struct {
	devices MediaDevices
	cfg     controllerConfig
	logger  *zap.Logger

	mu           sync.Mutex
	stream       MediaStream
	mimeTypes    []string
	selected     string
	echo         bool
	state        State
	session      *session
	busy         bool // acquisition or stop in flight
	chunks       []Blob
	chunkBytes   int
	recordedMime string
	playback     Playback
	errMsg       string
	closed       bool
	revokes      map[string]*time.Timer
	version      uint64
	subs         map[int]func(View)
	nextSub      int

	pubMu     sync.Mutex
	delivered uint64
}

// NewController builds a controller over devices. The camera is not opened
// until Acquire.
func NewController(devices MediaDevices, opts ...Option) (*Controller, error) {
	if devices == nil {
		return nil, fmt.Errorf("%w: nil media devices", ErrNoDeviceProvider)
	}
	cfg, err := buildControllerConfig(opts)
	if err != nil {
		return nil, err
	}
	return &Controller{
		devices: devices,
		cfg:     cfg,
		logger:  cfg.Logger.Named("controller"),
		echo:    cfg.Constraints.EchoCancellation,
		revokes: make(map[string]*time.Timer),
		subs:    make(map[int]func(View)),
	}, nil
}

// ObjectURLs returns the registry playback and download URLs live in.
func (c *Controller) ObjectURLs() *ObjectURLs { return c.cfg.ObjectURLs }

// View returns the current snapshot.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Subscribe calls fn with the current view and then after every change,
// until the returned cancel func is called. Views are delivered in order;
// fn must not call back into the controller.
func (c *Controller) Subscribe(fn func(View)) (cancel func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	v := c.viewLocked()
	c.mu.Unlock()

	c.pubMu.Lock()
	// A newer view already reached fn through a commit.
	if v.Version >= c.delivered {
		fn(v)
	}
	c.pubMu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// SupportedMimeTypes recomputes the supported recording formats.
func (c *Controller) SupportedMimeTypes() []string {
	return slices.Collect(SupportedMimeTypes(c.cfg.TypeSupport))
}

func (c *Controller) viewLocked() View {
	recording := c.state == StateRecording
	hasStream := c.stream != nil
	v := View{
		Version:          c.version,
		State:            c.state,
		StateName:        c.state.String(),
		Stream:           c.stream,
		MimeTypes:        slices.Clone(c.mimeTypes),
		SelectedMimeType: c.selected,
		EchoCancellation: c.echo,
		ChunkCount:       len(c.chunks),
		RecordedBytes:    c.chunkBytes,
		Playback:         c.playback,
		ErrorMessage:     c.errMsg,
		RecordLabel:      recordLabelStart,
		Features: Features{
			EchoCancellationControl: c.cfg.EchoCancellationControl,
			CodecSelection:          c.cfg.CodecSelection,
		},
	}
	if v.MimeTypes == nil {
		v.MimeTypes = []string{}
	}
	if hasStream {
		v.StreamID = c.stream.ID()
	}
	if recording {
		v.RecordLabel = recordLabelStop
	}
	if !c.closed {
		v.Controls = Controls{
			StartCamera:      !hasStream && !c.busy,
			Record:           hasStream && !c.busy,
			Play:             !recording && len(c.chunks) > 0,
			Download:         !recording && len(c.chunks) > 0,
			SelectCodec:      c.cfg.CodecSelection && hasStream && !recording && len(c.mimeTypes) > 0,
			EchoCancellation: c.cfg.EchoCancellationControl && !hasStream && !c.busy,
		}
	}
	return v
}

// commitLocked bumps the version and returns a publish func to run after
// c.mu is released.
func (c *Controller) commitLocked() func() {
	c.version++
	v := c.viewLocked()
	subs := make([]func(View), 0, len(c.subs))
	for _, id := range slices.Sorted(maps.Keys(c.subs)) {
		subs = append(subs, c.subs[id])
	}
	return func() {
		c.pubMu.Lock()
		defer c.pubMu.Unlock()
		if v.Version <= c.delivered {
			return
		}
		c.delivered = v.Version
		for _, fn := range subs {
			fn(v)
		}
	}
}

// failLocked shows err as the error message.
func (c *Controller) failLocked(err error) func() {
	c.errMsg = err.Error()
	return c.commitLocked()
}

// Acquire requests the camera and microphone with the controller's
// constraints. A previous stream is released first. On failure no stream
// is kept and the error message is set.
func (c *Controller) Acquire(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if c.state == StateRecording || c.busy {
		err := &AcquisitionError{Err: fmt.Errorf("%w: recording in progress", ErrInvalidState)}
		if c.busy {
			err = &AcquisitionError{Err: fmt.Errorf("%w: another operation is in progress", ErrInvalidState)}
		}
		publish := c.failLocked(err)
		c.mu.Unlock()
		publish()
		return err
	}

	prev := c.stream
	c.stream = nil
	c.busy = true
	options := UserMediaOptions{
		Audio: &AudioConstraints{EchoCancellation: c.echo},
		Video: &VideoConstraints{Width: c.cfg.Constraints.Width, Height: c.cfg.Constraints.Height},
	}
	publish := c.commitLocked()
	c.mu.Unlock()
	publish()

	if prev != nil {
		if err := prev.Close(); err != nil {
			c.logger.Warn("failed to release previous stream", zap.Error(err))
		}
	}

	stream, err := c.devices.GetUserMedia(ctx, options)

	c.mu.Lock()
	c.busy = false
	if c.closed {
		c.mu.Unlock()
		if stream != nil {
			_ = stream.Close()
		}
		return ErrControllerClosed
	}
	if err != nil {
		acqErr := &AcquisitionError{Err: err}
		publish = c.failLocked(acqErr)
		c.mu.Unlock()
		publish()
		c.logger.Warn("camera acquisition failed", zap.Error(err))
		return acqErr
	}

	c.stream = stream
	c.errMsg = ""
	c.mimeTypes = slices.Collect(SupportedMimeTypes(c.cfg.TypeSupport))
	if !slices.Contains(c.mimeTypes, c.selected) {
		c.selected = ""
		if len(c.mimeTypes) > 0 {
			c.selected = c.mimeTypes[0]
		}
	}
	mimeTypes := slices.Clone(c.mimeTypes)
	publish = c.commitLocked()
	c.mu.Unlock()
	publish()

	c.logger.Info("camera acquired",
		zap.String("stream", stream.ID()),
		zap.Int("tracks", len(stream.GetTracks())),
		zap.Strings("mime_types", mimeTypes))
	return nil
}

// SetEchoCancellation sets the echo-cancellation preference used by the
// next Acquire. It is only available before a stream exists.
func (c *Controller) SetEchoCancellation(enabled bool) error {
	c.mu.Lock()
	var err error
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrControllerClosed
	case !c.cfg.EchoCancellationControl:
		err = fmt.Errorf("%w: echo cancellation control is disabled", ErrInvalidState)
	case c.stream != nil || c.busy:
		err = fmt.Errorf("%w: echo cancellation is fixed once the camera is started", ErrInvalidState)
	}
	var publish func()
	if err != nil {
		publish = c.failLocked(err)
	} else {
		c.echo = enabled
		publish = c.commitLocked()
	}
	c.mu.Unlock()
	publish()
	return err
}

// SelectMimeType picks the recording format among the supported ones.
func (c *Controller) SelectMimeType(mimeType string) error {
	c.mu.Lock()
	var err error
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrControllerClosed
	case !c.cfg.CodecSelection:
		err = fmt.Errorf("%w: codec selection is disabled", ErrInvalidState)
	case c.stream == nil:
		err = fmt.Errorf("%w: camera not started", ErrInvalidState)
	case c.state == StateRecording:
		err = fmt.Errorf("%w: cannot change format while recording", ErrInvalidState)
	case !slices.Contains(c.mimeTypes, mimeType):
		err = fmt.Errorf("%w: %s", ErrUnsupportedMimeType, mimeType)
	}
	var publish func()
	if err != nil {
		publish = c.failLocked(err)
	} else {
		c.selected = mimeType
		publish = c.commitLocked()
	}
	c.mu.Unlock()
	publish()
	return err
}

// ToggleRecording starts recording when idle and stops it when recording.
func (c *Controller) ToggleRecording() error {
	c.mu.Lock()
	recording := c.state == StateRecording
	c.mu.Unlock()
	if recording {
		return c.StopRecording()
	}
	return c.StartRecording()
}

// StartRecording arms a recorder on the stream with the selected format.
// Previous chunks and the playback URL are discarded before the recorder is
// created. Any failure leaves the controller idle with the error message set.
func (c *Controller) StartRecording() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}

	var cause error
	switch {
	case c.state == StateRecording:
		cause = fmt.Errorf("%w: already recording", ErrInvalidState)
	case c.busy:
		cause = fmt.Errorf("%w: another operation is in progress", ErrInvalidState)
	case c.stream == nil:
		cause = fmt.Errorf("%w: camera not started", ErrInvalidState)
	case len(c.mimeTypes) == 0 || c.selected == "":
		cause = ErrNoSupportedMimeType
	}
	if cause != nil {
		err := &RecordingError{Err: cause}
		publish := c.failLocked(err)
		c.mu.Unlock()
		publish()
		return err
	}

	c.chunks = nil
	c.chunkBytes = 0
	c.revokePlaybackLocked()

	sess := &session{mimeType: c.selected}
	rec, err := c.cfg.RecorderFactory(c.stream, MediaRecorderOptions{MimeType: sess.mimeType, Logger: c.logger})
	if err != nil {
		recErr := &RecordingError{Err: err}
		publish := c.failLocked(recErr)
		c.mu.Unlock()
		publish()
		c.logger.Warn("recorder creation failed", zap.String("mime_type", sess.mimeType), zap.Error(err))
		return recErr
	}
	sess.recorder = rec
	rec.OnDataAvailable(func(b Blob) { c.handleData(sess, b) })
	rec.OnError(func(err error) { c.handleError(sess, err) })
	rec.OnStop(func() { c.handleStop(sess) })

	if err := rec.Start(c.cfg.Timeslice); err != nil {
		recErr := &RecordingError{Err: err}
		publish := c.failLocked(recErr)
		c.mu.Unlock()
		publish()
		c.logger.Warn("recorder start failed", zap.String("mime_type", sess.mimeType), zap.Error(err))
		return recErr
	}

	c.session = sess
	c.state = StateRecording
	c.recordedMime = sess.mimeType
	c.errMsg = ""
	publish := c.commitLocked()
	c.mu.Unlock()
	publish()

	c.logger.Info("recording started", zap.String("mime_type", sess.mimeType), zap.Duration("timeslice", c.cfg.Timeslice))
	return nil
}

// StopRecording stops the recorder and waits for its final chunk.
func (c *Controller) StopRecording() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	sess := c.session
	if c.state != StateRecording || sess == nil || sess.stopping {
		err := fmt.Errorf("%w: not recording", ErrInvalidState)
		publish := c.failLocked(err)
		c.mu.Unlock()
		publish()
		return err
	}
	sess.stopping = true
	c.busy = true
	publish := c.commitLocked()
	c.mu.Unlock()
	publish()

	stopErr := sess.recorder.Stop()
	if errors.Is(stopErr, ErrRecorderState) {
		// The recorder already ended on its own.
		stopErr = nil
	}

	c.mu.Lock()
	c.busy = false
	c.endSessionLocked(sess)
	if stopErr != nil {
		c.errMsg = "MediaRecorder error: " + stopErr.Error()
	}
	chunks, size := len(c.chunks), c.chunkBytes
	publish = c.commitLocked()
	c.mu.Unlock()
	publish()

	c.logger.Info("recorder stopped", zap.Int("chunks", chunks), zap.Int("bytes", size), zap.Error(stopErr))
	return stopErr
}

func (c *Controller) endSessionLocked(sess *session) {
	if c.session == sess {
		c.session = nil
		c.state = StateIdle
	}
}

// handleData appends a non-empty chunk of the current session.
func (c *Controller) handleData(sess *session, b Blob) {
	c.mu.Lock()
	if c.session != sess || b.Size() == 0 {
		c.mu.Unlock()
		return
	}
	c.chunks = append(c.chunks, b)
	c.chunkBytes += b.Size()
	publish := c.commitLocked()
	c.mu.Unlock()
	publish()
}

func (c *Controller) handleError(sess *session, err error) {
	c.mu.Lock()
	if c.session != sess {
		c.mu.Unlock()
		return
	}
	publish := c.failLocked(fmt.Errorf("MediaRecorder error: %w", err))
	c.mu.Unlock()
	publish()
}

// handleStop ends a session whose recorder stopped without StopRecording.
func (c *Controller) handleStop(sess *session) {
	c.mu.Lock()
	if c.session != sess || sess.stopping {
		c.mu.Unlock()
		return
	}
	c.endSessionLocked(sess)
	publish := c.commitLocked()
	c.mu.Unlock()
	publish()
	c.logger.Warn("recorder stopped unexpectedly", zap.String("mime_type", sess.mimeType))
}

// Close stops an active recorder, then the stream's tracks, and revokes
// every URL the controller handed out.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sess := c.session
	if sess != nil {
		sess.stopping = true
	}
	stream := c.stream
	c.stream = nil
	for url, t := range c.revokes {
		t.Stop()
		c.cfg.ObjectURLs.Revoke(url)
	}
	clear(c.revokes)
	c.revokePlaybackLocked()
	c.mu.Unlock()

	var errs []error
	if sess != nil {
		if err := sess.recorder.Stop(); err != nil && !errors.Is(err, ErrRecorderState) {
			errs = append(errs, fmt.Errorf("stop recorder: %w", err))
		}
	}
	if stream != nil {
		if err := stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("release stream: %w", err))
		}
	}

	c.mu.Lock()
	c.session = nil
	c.state = StateIdle
	publish := c.commitLocked()
	clear(c.subs)
	c.mu.Unlock()
	publish()

	c.logger.Info("controller closed")
	return errors.Join(errs...)
}
