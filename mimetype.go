package media

import (
	"errors"
	"fmt"
	"iter"
	"strings"
)

// ErrUnsupportedMimeType is returned for MIME types a recorder cannot produce.
var ErrUnsupportedMimeType = errors.New("unsupported mime type")

// candidateMimeTypes is the recording preference order, most modern first.
var candidateMimeTypes = [...]string{
	"video/webm;codecs=av1,opus",
	"video/webm;codecs=vp9,opus",
	"video/webm;codecs=vp8,opus",
	"video/webm;codecs=h264,opus",
	"video/mp4;codecs=h264,aac",
}

// CandidateMimeTypes returns the fixed, ordered list of recording formats
// that negotiation considers.
func CandidateMimeTypes() []string {
	return append([]string(nil), candidateMimeTypes[:]...)
}

// TypeSupport answers whether the environment can record a MIME type
// (like MediaRecorder.isTypeSupported).
type TypeSupport interface {
	IsTypeSupported(mimeType string) bool
}

// TypeSupportFunc adapts a function to TypeSupport.
type TypeSupportFunc func(mimeType string) bool

func (f TypeSupportFunc) IsTypeSupported(mimeType string) bool { return f(mimeType) }

// SupportedMimeTypes yields the candidates support accepts, in preference
// order. Support is queried anew on every iteration; a nil support accepts
// everything.
func SupportedMimeTypes(support TypeSupport) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, mimeType := range candidateMimeTypes {
			if support != nil && !support.IsTypeSupported(mimeType) {
				continue
			}
			if !yield(mimeType) {
				return
			}
		}
	}
}

// BaseType returns the type/subtype part of a MIME type, before any
// parameters: "video/webm;codecs=vp9" -> "video/webm".
func BaseType(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

// MimeType is a parsed recording format.
type MimeType struct {
	Base      string // "video/webm"
	Container Container
	Video     VideoCodec // VideoCodecUnknown when absent
	Audio     AudioCodec // AudioCodecUnknown when absent
	Codecs    []string   // raw codecs= entries
}

// ParseMimeType parses strings such as `video/webm;codecs="vp9,opus"`.
// Codec values may be quoted; unknown codecs are an error.
func ParseMimeType(s string) (MimeType, error) {
	base, params, _ := strings.Cut(s, ";")
	m := MimeType{Base: BaseType(base)}

	kind, subtype, ok := strings.Cut(m.Base, "/")
	if !ok || (kind != "video" && kind != "audio") {
		return MimeType{}, fmt.Errorf("%w: %q", ErrUnsupportedMimeType, s)
	}
	if m.Container = parseContainer(subtype); m.Container == ContainerUnknown {
		return MimeType{}, fmt.Errorf("%w: unknown container %q", ErrUnsupportedMimeType, subtype)
	}

	for _, param := range strings.Split(params, ";") {
		key, value, _ := strings.Cut(param, "=")
		if !strings.EqualFold(strings.TrimSpace(key), "codecs") {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		for _, name := range strings.Split(value, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			v, a := parseCodecName(name)
			switch {
			case v != VideoCodecUnknown && m.Video == VideoCodecUnknown:
				m.Video = v
			case a != AudioCodecUnknown && m.Audio == AudioCodecUnknown:
				m.Audio = a
			default:
				return MimeType{}, fmt.Errorf("%w: codec %q in %q", ErrUnsupportedMimeType, name, s)
			}
			m.Codecs = append(m.Codecs, name)
		}
	}

	if kind == "audio" && m.Video != VideoCodecUnknown {
		return MimeType{}, fmt.Errorf("%w: video codec in %q", ErrUnsupportedMimeType, s)
	}
	return m, nil
}

// String renders the canonical form, e.g. "video/webm;codecs=vp9,opus".
func (m MimeType) String() string {
	var codecs []string
	if m.Video != VideoCodecUnknown {
		codecs = append(codecs, strings.ToLower(m.Video.String()))
	}
	if m.Audio != AudioCodecUnknown {
		codecs = append(codecs, strings.ToLower(m.Audio.String()))
	}
	if len(codecs) == 0 {
		return m.Base
	}
	return m.Base + ";codecs=" + strings.Join(codecs, ",")
}

// VideoCodecOrDefault returns the video codec, or the container's usual one.
func (m MimeType) VideoCodecOrDefault() VideoCodec {
	if m.Video != VideoCodecUnknown || strings.HasPrefix(m.Base, "audio/") {
		return m.Video
	}
	if m.Container == ContainerMP4 {
		return VideoCodecH264
	}
	return VideoCodecVP8
}

// AudioCodecOrDefault returns the audio codec, or the container's usual one.
func (m MimeType) AudioCodecOrDefault() AudioCodec {
	if m.Audio != AudioCodecUnknown {
		return m.Audio
	}
	if m.Container == ContainerMP4 {
		return AudioCodecAAC
	}
	return AudioCodecOpus
}

// FFmpegMuxer returns the muxer that can carry this codec pair. The webm
// muxer refuses H.264, so such recordings are written as Matroska, which is
// what browsers do for "video/webm;codecs=h264" as well.
func (m MimeType) FFmpegMuxer() string {
	if m.Container == ContainerWebM && m.VideoCodecOrDefault() == VideoCodecH264 {
		return "matroska"
	}
	if m.Container == ContainerMP4 {
		return "mp4"
	}
	return m.Container.FFmpegMuxer()
}
