package media

import (
	"strings"

	"github.com/pion/webrtc/v4"
)

// VideoCodec identifies the video codec type.
type VideoCodec int

const (
	VideoCodecUnknown VideoCodec = iota
	VideoCodecVP8
	VideoCodecVP9
	VideoCodecH264
	VideoCodecAV1
)

func (c VideoCodec) String() string {
	switch c {
	case VideoCodecVP8:
		return "VP8"
	case VideoCodecVP9:
		return "VP9"
	case VideoCodecH264:
		return "H264"
	case VideoCodecAV1:
		return "AV1"
	default:
		return "Unknown"
	}
}

// MimeType returns the RTP-style MIME type for this codec.
func (c VideoCodec) MimeType() string {
	switch c {
	case VideoCodecVP8:
		return webrtc.MimeTypeVP8
	case VideoCodecVP9:
		return webrtc.MimeTypeVP9
	case VideoCodecH264:
		return webrtc.MimeTypeH264
	case VideoCodecAV1:
		return webrtc.MimeTypeAV1
	default:
		return ""
	}
}

// RTPCapability describes this codec as negotiated over RTP. It is the zero
// value for VideoCodecUnknown.
func (c VideoCodec) RTPCapability() webrtc.RTPCodecCapability {
	if c.MimeType() == "" {
		return webrtc.RTPCodecCapability{}
	}
	return webrtc.RTPCodecCapability{MimeType: c.MimeType(), ClockRate: 90000}
}

// FFmpegEncoder returns the ffmpeg encoder used to produce this codec.
func (c VideoCodec) FFmpegEncoder() string {
	switch c {
	case VideoCodecVP8:
		return "libvpx"
	case VideoCodecVP9:
		return "libvpx-vp9"
	case VideoCodecH264:
		return "libx264"
	case VideoCodecAV1:
		return "libsvtav1"
	default:
		return ""
	}
}

// AudioCodec identifies the audio codec type.
type AudioCodec int

const (
	AudioCodecUnknown AudioCodec = iota
	AudioCodecOpus
	AudioCodecAAC
)

func (c AudioCodec) String() string {
	switch c {
	case AudioCodecOpus:
		return "Opus"
	case AudioCodecAAC:
		return "AAC"
	default:
		return "Unknown"
	}
}

// MimeType returns the RTP-style MIME type for this codec.
func (c AudioCodec) MimeType() string {
	switch c {
	case AudioCodecOpus:
		return webrtc.MimeTypeOpus
	case AudioCodecAAC:
		return "audio/AAC"
	default:
		return ""
	}
}

// RTPCapability describes this codec as negotiated over RTP. Opus always
// runs at 48kHz stereo; a zero ClockRate means the input rate is kept.
func (c AudioCodec) RTPCapability() webrtc.RTPCodecCapability {
	switch c {
	case AudioCodecOpus:
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	case AudioCodecAAC:
		return webrtc.RTPCodecCapability{MimeType: c.MimeType()}
	default:
		return webrtc.RTPCodecCapability{}
	}
}

// FFmpegEncoder returns the ffmpeg encoder used to produce this codec.
func (c AudioCodec) FFmpegEncoder() string {
	switch c {
	case AudioCodecOpus:
		return "libopus"
	case AudioCodecAAC:
		return "aac"
	default:
		return ""
	}
}

// Container identifies the file container a recording is muxed into.
type Container int

const (
	ContainerUnknown Container = iota
	ContainerWebM
	ContainerMP4
)

func (c Container) String() string {
	switch c {
	case ContainerWebM:
		return "WebM"
	case ContainerMP4:
		return "MP4"
	default:
		return "Unknown"
	}
}

// FFmpegMuxer returns the ffmpeg muxer name for this container.
func (c Container) FFmpegMuxer() string {
	switch c {
	case ContainerWebM:
		return "webm"
	case ContainerMP4:
		return "mp4"
	default:
		return ""
	}
}

// Extension returns the usual file extension, without the dot.
func (c Container) Extension() string {
	switch c {
	case ContainerWebM:
		return "webm"
	case ContainerMP4:
		return "mp4"
	default:
		return "bin"
	}
}

// parseContainer maps a MIME subtype ("webm", "mp4") to a container.
func parseContainer(subtype string) Container {
	switch strings.ToLower(subtype) {
	case "webm":
		return ContainerWebM
	case "mp4":
		return ContainerMP4
	default:
		return ContainerUnknown
	}
}

// parseCodecName maps a codecs= entry to a video or audio codec.
// Exactly one of the results is known for a recognised name.
func parseCodecName(name string) (VideoCodec, AudioCodec) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch {
	case name == "vp8" || name == "vp8.0":
		return VideoCodecVP8, AudioCodecUnknown
	case name == "vp9" || strings.HasPrefix(name, "vp09"):
		return VideoCodecVP9, AudioCodecUnknown
	case name == "h264" || strings.HasPrefix(name, "avc1"):
		return VideoCodecH264, AudioCodecUnknown
	case name == "av1" || strings.HasPrefix(name, "av01"):
		return VideoCodecAV1, AudioCodecUnknown
	case name == "opus":
		return VideoCodecUnknown, AudioCodecOpus
	case name == "aac" || strings.HasPrefix(name, "mp4a"):
		return VideoCodecUnknown, AudioCodecAAC
	default:
		return VideoCodecUnknown, AudioCodecUnknown
	}
}
