// Package media records short camera/microphone clips in Go, with a
// browser-shaped API (getUserMedia, MediaRecorder, Blob, object URLs).
//
// Key pieces include:
//   - MediaDevices/DeviceProvider: capture requests against ffmpeg devices or
//     a synthetic test-pattern provider
//   - MediaStream/MediaStreamTrack with per-track fan-out to several consumers
//   - SupportedMimeTypes: ordered negotiation of the recording format
//   - MediaRecorder: chunked recording, backed by an ffmpeg subprocess
//   - Controller: the clip-recorder state machine behind a single View
//   - PreviewSurface: MJPEG rendering of the live video track
//
// # Architecture
//
//   Acquire: MediaDevices -> DeviceProvider -> VideoSource/AudioSource -> MediaStream
//   Record:  MediaStream -> MediaRecorder (ffmpeg) -> chunks -> Blob
//   Export:  Blob -> ObjectURLs -> playback surface / Downloader
//
// The Controller owns the stream, the recorder and the chunk list. Every
// transition publishes a View; user interfaces render from the View and
// call the four actions (Acquire, ToggleRecording, Play, Download).
//
// # FFmpeg
//
// Device capture, capability probing and encoding run ffmpeg as a
// subprocess. Set the binary with FFmpegProviderConfig.FFmpegPath and
// NewFFmpegTypeSupport/FFmpegRecorderFactory; an empty path means "ffmpeg"
// from PATH. Frames cross the pipe as raw I420, audio as s16le.
//
// # Supported Formats
//
// Candidates, in preference order: video/webm;codecs=av1,opus,
// video/webm;codecs=vp9,opus, video/webm;codecs=vp8,opus,
// video/webm;codecs=h264,opus, video/mp4;codecs=h264,aac.
// Availability depends on the encoders compiled into the ffmpeg binary.
package media
