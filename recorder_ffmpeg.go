package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrInactiveStream is returned when recording a stream without live tracks.
var ErrInactiveStream = errors.New("stream has no live tracks")

// stopGrace bounds how long Stop waits for ffmpeg to finalize the
// container after its inputs close.
const stopGrace = 5 * time.Second

// FFmpegRecorder is a MediaRecorder that pipes raw stream media into ffmpeg
// and cuts the muxed output into chunks. Video is written to ffmpeg's stdin,
// audio to an extra pipe (fd 3). A recorder is single use.
type FFmpegRecorder struct {
	path     string
	mimeType string
	mime     MimeType
	options  MediaRecorderOptions
	video    VideoTrack
	audio    AudioTrack
	logger   *zap.Logger

	mu       sync.Mutex
	state    RecorderState
	started  bool
	stopping bool
	onData   func(Blob)
	onStop   func()
	onError  func(error)
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	stopped  chan struct{}
	err      error

	outMu   sync.Mutex
	pending []byte
}

// NewFFmpegRecorder creates a recorder using ffmpeg from PATH.
func NewFFmpegRecorder(stream MediaStream, options MediaRecorderOptions) (*FFmpegRecorder, error) {
	return newFFmpegRecorder("", stream, options)
}

// FFmpegRecorderFactory returns a RecorderFactory using the given ffmpeg
// binary ("" means ffmpeg from PATH).
func FFmpegRecorderFactory(ffmpegPath string) RecorderFactory {
	return func(stream MediaStream, options MediaRecorderOptions) (MediaRecorder, error) {
		return newFFmpegRecorder(ffmpegPath, stream, options)
	}
}

func newFFmpegRecorder(path string, stream MediaStream, options MediaRecorderOptions) (*FFmpegRecorder, error) {
	if stream == nil || !stream.Active() {
		return nil, ErrInactiveStream
	}
	if err := validate.Struct(options); err != nil {
		return nil, fmt.Errorf("invalid recorder options: %w", err)
	}
	if options.MimeType == "" {
		options.MimeType = "video/webm"
	}
	mime, err := ParseMimeType(options.MimeType)
	if err != nil {
		return nil, err
	}

	r := &FFmpegRecorder{
		mimeType: options.MimeType,
		mime:     mime,
		options:  options,
		logger:   options.Logger,
		stopped:  make(chan struct{}),
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	r.logger = r.logger.Named("recorder").With(zap.String("mime_type", options.MimeType))

	if mime.VideoCodecOrDefault() != VideoCodecUnknown {
		for _, t := range stream.GetVideoTracks() {
			if t.State() == TrackStateLive {
				r.video = t
				break
			}
		}
	}
	for _, t := range stream.GetAudioTracks() {
		if t.State() == TrackStateLive {
			r.audio = t
			break
		}
	}
	if r.audio != nil && runtime.GOOS == "windows" {
		// No inherited extra pipes on Windows.
		r.logger.Warn("audio recording is not supported on windows, recording video only")
		r.audio = nil
	}
	if r.video == nil && r.audio == nil {
		return nil, ErrInactiveStream
	}

	if r.path, err = lookFFmpeg(path); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FFmpegRecorder) MimeType() string { return r.mimeType }

func (r *FFmpegRecorder) State() RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *FFmpegRecorder) OnDataAvailable(callback func(Blob)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onData = callback
}

func (r *FFmpegRecorder) OnStop(callback func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStop = callback
}

func (r *FFmpegRecorder) OnError(callback func(error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onError = callback
}

// args builds the ffmpeg command line.
func (r *FFmpegRecorder) args() []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}

	inputs := 0
	if r.video != nil {
		s := r.video.Settings()
		args = append(args,
			"-thread_queue_size", "512",
			"-use_wallclock_as_timestamps", "1",
			"-f", "rawvideo",
			"-pix_fmt", PixelFormatI420.FFmpegName(),
			"-video_size", fmt.Sprintf("%dx%d", s.Width, s.Height),
			"-framerate", fmt.Sprint(max(s.FrameRate, 1)),
			"-i", "pipe:0",
		)
		inputs++
	}
	if r.audio != nil {
		s := r.audio.Settings()
		args = append(args,
			"-thread_queue_size", "512",
			"-use_wallclock_as_timestamps", "1",
			"-f", AudioFormatS16.FFmpegName(),
			"-ar", fmt.Sprint(s.SampleRate),
			"-ac", fmt.Sprint(s.ChannelCount),
			"-i", "pipe:3",
		)
		inputs++
	}

	if r.video != nil {
		codec := r.mime.VideoCodecOrDefault()
		args = append(args, "-map", "0:v", "-c:v", codec.FFmpegEncoder())
		args = append(args, videoEncoderTuning(codec)...)
		if r.options.VideoBitsPerSecond > 0 {
			args = append(args, "-b:v", fmt.Sprint(r.options.VideoBitsPerSecond))
		}
	}
	if r.audio != nil {
		codec := r.mime.AudioCodecOrDefault()
		args = append(args, "-map", fmt.Sprintf("%d:a", inputs-1), "-c:a", codec.FFmpegEncoder())
		if rate := codec.RTPCapability().ClockRate; rate > 0 {
			args = append(args, "-ar", fmt.Sprint(rate))
		}
		if r.options.AudioBitsPerSecond > 0 {
			args = append(args, "-b:a", fmt.Sprint(r.options.AudioBitsPerSecond))
		}
	}

	muxer := r.mime.FFmpegMuxer()
	if muxer == "mp4" {
		// A pipe cannot be seeked back to write the moov atom.
		args = append(args, "-movflags", "frag_keyframe+empty_moov+default_base_moof")
	} else {
		args = append(args, "-live", "1")
	}
	return append(args, "-f", muxer, "pipe:1")
}

func videoEncoderTuning(codec VideoCodec) []string {
	switch codec {
	case VideoCodecVP8:
		return []string{"-deadline", "realtime", "-cpu-used", "8"}
	case VideoCodecVP9:
		return []string{"-deadline", "realtime", "-cpu-used", "8", "-row-mt", "1"}
	case VideoCodecH264:
		return []string{"-preset", "veryfast", "-tune", "zerolatency", "-pix_fmt", "yuv420p"}
	case VideoCodecAV1:
		return []string{"-preset", "12"}
	default:
		return nil
	}
}

// Start implements MediaRecorder.
func (r *FFmpegRecorder) Start(timeslice time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("%w: recorder already started", ErrRecorderState)
	}

	args := r.args()
	cmd := exec.Command(r.path, args...)
	stderr := newBoundedBuffer(maxStderrSize)
	cmd.Stderr = stderr

	var videoIn io.WriteCloser
	if r.video != nil {
		var err error
		if videoIn, err = cmd.StdinPipe(); err != nil {
			return fmt.Errorf("failed to create stdin pipe: %w", err)
		}
	}
	var audioRead, audioWrite *os.File
	if r.audio != nil {
		var err error
		if audioRead, audioWrite, err = os.Pipe(); err != nil {
			return fmt.Errorf("failed to create audio pipe: %w", err)
		}
		cmd.ExtraFiles = []*os.File{audioRead}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		closeFiles(audioRead, audioWrite)
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	r.logger.Debug("starting ffmpeg", zap.Strings("args", args))
	if err := cmd.Start(); err != nil {
		closeFiles(audioRead, audioWrite)
		return &FFmpegError{Op: "start", Err: err}
	}
	// The child holds its own copy.
	closeFiles(audioRead)

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	if r.video != nil {
		g.Go(func() error {
			defer videoIn.Close()
			return feedVideo(gctx, r.video, videoIn)
		})
	}
	if r.audio != nil {
		g.Go(func() error {
			defer audioWrite.Close()
			return feedAudio(gctx, r.audio, audioWrite)
		})
	}

	outputDone := make(chan struct{})
	go r.readOutput(stdout, outputDone)
	go r.run(g, cancel, cmd, stderr, timeslice, outputDone)

	r.cmd = cmd
	r.cancel = cancel
	r.started = true
	r.state = RecorderStateRecording
	r.logger.Info("recorder started", zap.Duration("timeslice", timeslice),
		zap.Bool("video", r.video != nil), zap.Bool("audio", r.audio != nil),
		zap.Strings("codecs", r.codecMimeTypes()))
	return nil
}

// codecMimeTypes returns the RTP MIME type of each recorded track's codec.
func (r *FFmpegRecorder) codecMimeTypes() []string {
	var out []string
	if r.video != nil {
		out = append(out, r.mime.VideoCodecOrDefault().RTPCapability().MimeType)
	}
	if r.audio != nil {
		out = append(out, r.mime.AudioCodecOrDefault().RTPCapability().MimeType)
	}
	return out
}

func closeFiles(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}

// feedVideo copies frames from a sink on the track to ffmpeg until ctx
// ends or the track ends. While the track is disabled its frames are
// replaced with black.
func feedVideo(ctx context.Context, track VideoTrack, w io.Writer) error {
	settings := track.Settings()
	frames, remove := track.AddSink()
	defer remove()
	var black []byte
	for {
		frame, err := recv(ctx, frames)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrTrackEnded) {
				return nil
			}
			return fmt.Errorf("read video frame: %w", err)
		}
		if frame.Width != settings.Width || frame.Height != settings.Height {
			continue
		}
		var data []byte
		switch {
		case track.Enabled():
			data = frame.PackedI420()
		case black == nil:
			black = BlackI420(settings.Width, settings.Height)
			fallthrough
		default:
			data = black
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("write video: %w", err)
		}
	}
}

// feedAudio copies sample blocks from a sink on the track to ffmpeg. While
// the track is disabled it writes silence of the same length.
func feedAudio(ctx context.Context, track AudioTrack, w io.Writer) error {
	samples, remove := track.AddSink()
	defer remove()
	for {
		block, err := recv(ctx, samples)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrTrackEnded) {
				return nil
			}
			return fmt.Errorf("read audio samples: %w", err)
		}
		data := block.Data
		if !track.Enabled() {
			data = make([]byte, len(block.Data))
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("write audio: %w", err)
		}
	}
}

func (r *FFmpegRecorder) readOutput(stdout io.Reader, done chan<- struct{}) {
	defer close(done)
	buf := make([]byte, 32*1024)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			r.outMu.Lock()
			r.pending = append(r.pending, buf[:n]...)
			r.outMu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// flush emits everything read so far as one chunk.
func (r *FFmpegRecorder) flush() {
	r.outMu.Lock()
	data := r.pending
	r.pending = nil
	r.outMu.Unlock()

	r.mu.Lock()
	cb := r.onData
	r.mu.Unlock()
	if cb != nil {
		cb(Blob{typ: r.mimeType, data: data})
	}
}

// run owns chunk delivery and process teardown.
func (r *FFmpegRecorder) run(g *errgroup.Group, cancel context.CancelFunc, cmd *exec.Cmd, stderr *boundedBuffer, timeslice time.Duration, outputDone <-chan struct{}) {
	var tick <-chan time.Time
	if timeslice > 0 {
		ticker := time.NewTicker(timeslice)
		defer ticker.Stop()
		tick = ticker.C
	}

	for waiting := true; waiting; {
		select {
		case <-tick:
			r.flush()
		case <-outputDone:
			waiting = false
		}
	}

	cancel()
	feedErr := g.Wait()
	waitErr := cmd.Wait()

	// The final chunk is delivered even when empty.
	r.flush()

	r.mu.Lock()
	stopping := r.stopping
	var err error
	switch {
	case waitErr != nil && !stopping:
		err = &FFmpegError{Op: "record", Err: waitErr, Stderr: stderr.String()}
	case feedErr != nil && !stopping:
		err = feedErr
	case waitErr != nil:
		r.logger.Debug("ffmpeg exit after stop", zap.Error(waitErr))
	}
	r.err = err
	r.state = RecorderStateInactive
	onError, onStop := r.onError, r.onStop
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("recording failed", zap.Error(err))
		if onError != nil {
			onError(err)
		}
	}
	r.logger.Info("recorder stopped")
	if onStop != nil {
		onStop()
	}
	close(r.stopped)
}

// Stop implements MediaRecorder. Inputs are closed so ffmpeg can finalize
// the container; a process that does not exit within the grace period is
// killed.
func (r *FFmpegRecorder) Stop() error {
	r.mu.Lock()
	if r.state != RecorderStateRecording {
		r.mu.Unlock()
		return fmt.Errorf("%w: recorder is %s", ErrRecorderState, r.state)
	}
	if !r.stopping {
		r.stopping = true
		r.cancel()
	}
	cmd := r.cmd
	r.mu.Unlock()

	select {
	case <-r.stopped:
	case <-time.After(stopGrace):
		r.logger.Warn("ffmpeg did not exit after stop, killing")
		_ = cmd.Process.Kill()
		<-r.stopped
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
