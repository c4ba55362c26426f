// Core frame and sample types used across the media package.
package media

// PixelFormat represents video pixel formats.
type PixelFormat int

const (
	PixelFormatI420   PixelFormat = iota // YUV 4:2:0 planar (Y + U + V)
	PixelFormatNV12                      // YUV 4:2:0 semi-planar (Y + interleaved UV)
	PixelFormatRGB24                     // Packed RGB, 3 bytes per pixel
	PixelFormatRGBA32                    // Packed RGBA, 4 bytes per pixel
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatI420:
		return "I420"
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatRGB24:
		return "RGB24"
	case PixelFormatRGBA32:
		return "RGBA32"
	default:
		return "Unknown"
	}
}

// FFmpegName returns the -pix_fmt name for this format.
func (p PixelFormat) FFmpegName() string {
	switch p {
	case PixelFormatI420:
		return "yuv420p"
	case PixelFormatNV12:
		return "nv12"
	case PixelFormatRGB24:
		return "rgb24"
	case PixelFormatRGBA32:
		return "rgba"
	default:
		return ""
	}
}

// PlaneCount returns the number of planes for this pixel format.
func (p PixelFormat) PlaneCount() int {
	switch p {
	case PixelFormatI420:
		return 3 // Y, U, V
	case PixelFormatNV12:
		return 2 // Y, UV
	case PixelFormatRGB24, PixelFormatRGBA32:
		return 1 // Packed
	default:
		return 0
	}
}

// AudioFormat represents audio sample formats.
type AudioFormat int

const (
	AudioFormatS16 AudioFormat = iota // Signed 16-bit little-endian PCM
	AudioFormatF32                    // 32-bit float
)

func (a AudioFormat) String() string {
	switch a {
	case AudioFormatS16:
		return "S16"
	case AudioFormatF32:
		return "F32"
	default:
		return "Unknown"
	}
}

// FFmpegName returns the raw PCM format name understood by ffmpeg (-f).
func (a AudioFormat) FFmpegName() string {
	switch a {
	case AudioFormatS16:
		return "s16le"
	case AudioFormatF32:
		return "f32le"
	default:
		return ""
	}
}

// BytesPerSample returns the number of bytes per sample for this format.
func (a AudioFormat) BytesPerSample() int {
	switch a {
	case AudioFormatS16:
		return 2
	case AudioFormatF32:
		return 4
	default:
		return 0
	}
}

// VideoFrame represents a raw video frame.
// Sources may reuse plane buffers between frames; call Clone to keep one.
type VideoFrame struct {
	Data      [][]byte    // Plane data (1-3 planes depending on format)
	Stride    []int       // Stride for each plane in bytes
	Width     int         // Frame width in pixels
	Height    int         // Frame height in pixels
	Format    PixelFormat // Pixel format
	Timestamp int64       // Capture timestamp in nanoseconds
	Duration  int64       // Frame duration in nanoseconds (optional)
}

// Clone creates a deep copy of the video frame.
func (f *VideoFrame) Clone() *VideoFrame {
	clone := &VideoFrame{
		Data:      make([][]byte, len(f.Data)),
		Stride:    make([]int, len(f.Stride)),
		Width:     f.Width,
		Height:    f.Height,
		Format:    f.Format,
		Timestamp: f.Timestamp,
		Duration:  f.Duration,
	}
	copy(clone.Stride, f.Stride)
	for i, plane := range f.Data {
		if plane != nil {
			clone.Data[i] = make([]byte, len(plane))
			copy(clone.Data[i], plane)
		}
	}
	return clone
}

// PackedI420 returns the frame as one tightly packed I420 buffer (Y, then U,
// then V, no row padding), which is what ffmpeg's rawvideo demuxer expects.
// Frames that are already packed are returned without copying when possible.
func (f *VideoFrame) PackedI420() []byte {
	w, h := f.Width, f.Height
	cw, ch := w/2, h/2
	size := I420Size(w, h)

	if len(f.Data) == 1 && len(f.Data[0]) >= size {
		return f.Data[0][:size]
	}
	if len(f.Data) < 3 || len(f.Stride) < 3 {
		return nil
	}

	out := make([]byte, 0, size)
	out = appendPlane(out, f.Data[0], f.Stride[0], w, h)
	out = appendPlane(out, f.Data[1], f.Stride[1], cw, ch)
	out = appendPlane(out, f.Data[2], f.Stride[2], cw, ch)
	return out
}

func appendPlane(dst, plane []byte, stride, width, height int) []byte {
	if stride == width && len(plane) >= width*height {
		return append(dst, plane[:width*height]...)
	}
	for row := 0; row < height; row++ {
		start := row * stride
		if start+width > len(plane) {
			break
		}
		dst = append(dst, plane[start:start+width]...)
	}
	return dst
}

// I420Size returns the total buffer size needed for an I420 frame.
func I420Size(width, height int) int {
	ySize := width * height
	uvSize := (width / 2) * (height / 2)
	return ySize + uvSize*2
}

// BlackI420 returns a packed black I420 frame.
func BlackI420(width, height int) []byte {
	buf := make([]byte, I420Size(width, height))
	for i := width * height; i < len(buf); i++ {
		buf[i] = 128
	}
	return buf
}

// FrameFromI420 wraps a packed I420 buffer as a VideoFrame without copying.
func FrameFromI420(buf []byte, width, height int) *VideoFrame {
	ySize := width * height
	uvSize := (width / 2) * (height / 2)
	return &VideoFrame{
		Data: [][]byte{
			buf[:ySize],
			buf[ySize : ySize+uvSize],
			buf[ySize+uvSize : ySize+2*uvSize],
		},
		Stride: []int{width, width / 2, width / 2},
		Width:  width,
		Height: height,
		Format: PixelFormatI420,
	}
}

// AudioSamples represents raw interleaved audio samples.
type AudioSamples struct {
	Data        []byte      // Sample data
	SampleRate  int         // Sample rate (e.g., 48000)
	Channels    int         // Number of channels (1 = mono, 2 = stereo)
	SampleCount int         // Number of samples (per channel)
	Format      AudioFormat // Sample format
	Timestamp   int64       // Capture timestamp in nanoseconds
}

// Clone creates a deep copy of the audio samples.
func (s *AudioSamples) Clone() *AudioSamples {
	clone := &AudioSamples{
		SampleRate:  s.SampleRate,
		Channels:    s.Channels,
		SampleCount: s.SampleCount,
		Format:      s.Format,
		Timestamp:   s.Timestamp,
	}
	if s.Data != nil {
		clone.Data = make([]byte, len(s.Data))
		copy(clone.Data, s.Data)
	}
	return clone
}
