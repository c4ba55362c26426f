package media

import (
	"bytes"
	"testing"
)

func TestPixelFormat_String(t *testing.T) {
	tests := []struct {
		format PixelFormat
		want   string
		ffmpeg string
		planes int
	}{
		{PixelFormatI420, "I420", "yuv420p", 3},
		{PixelFormatNV12, "NV12", "nv12", 2},
		{PixelFormatRGB24, "RGB24", "rgb24", 1},
		{PixelFormatRGBA32, "RGBA32", "rgba", 1},
		{PixelFormat(99), "Unknown", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.format.String(); got != tt.want {
				t.Errorf("PixelFormat.String() = %v, want %v", got, tt.want)
			}
			if got := tt.format.FFmpegName(); got != tt.ffmpeg {
				t.Errorf("PixelFormat.FFmpegName() = %v, want %v", got, tt.ffmpeg)
			}
			if got := tt.format.PlaneCount(); got != tt.planes {
				t.Errorf("PixelFormat.PlaneCount() = %v, want %v", got, tt.planes)
			}
		})
	}
}

func TestAudioFormat_BytesPerSample(t *testing.T) {
	tests := []struct {
		format AudioFormat
		want   int
		ffmpeg string
	}{
		{AudioFormatS16, 2, "s16le"},
		{AudioFormatF32, 4, "f32le"},
		{AudioFormat(99), 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			if got := tt.format.BytesPerSample(); got != tt.want {
				t.Errorf("AudioFormat.BytesPerSample() = %v, want %v", got, tt.want)
			}
			if got := tt.format.FFmpegName(); got != tt.ffmpeg {
				t.Errorf("AudioFormat.FFmpegName() = %v, want %v", got, tt.ffmpeg)
			}
		})
	}
}

func TestI420Size(t *testing.T) {
	tests := []struct {
		width, height int
		want          int
	}{
		{1920, 1080, 1920*1080 + 2*(960*540)},
		{1280, 720, 1280*720 + 2*(640*360)},
		{640, 480, 640*480 + 2*(320*240)},
	}

	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			if got := I420Size(tt.width, tt.height); got != tt.want {
				t.Errorf("I420Size(%d, %d) = %v, want %v", tt.width, tt.height, got, tt.want)
			}
		})
	}
}

func TestVideoFrame_Clone(t *testing.T) {
	original := &VideoFrame{
		Data: [][]byte{
			{1, 2, 3, 4},
			{5},
			{7},
		},
		Stride:    []int{2, 1, 1},
		Width:     2,
		Height:    2,
		Format:    PixelFormatI420,
		Timestamp: 12345,
		Duration:  33333,
	}

	clone := original.Clone()

	if clone.Width != original.Width || clone.Height != original.Height {
		t.Error("Clone dimensions mismatch")
	}
	if clone.Timestamp != original.Timestamp || clone.Duration != original.Duration {
		t.Error("Clone timing mismatch")
	}

	clone.Data[0][0] = 99
	if original.Data[0][0] == 99 {
		t.Error("Clone is not independent from original")
	}
}

func TestVideoFrame_PackedI420(t *testing.T) {
	// 4x2 frame with padded strides.
	frame := &VideoFrame{
		Data: [][]byte{
			{1, 2, 3, 4, 0, 0, 5, 6, 7, 8, 0, 0},
			{9, 10, 0, 0},
			{11, 12, 0, 0},
		},
		Stride: []int{6, 4, 4},
		Width:  4,
		Height: 2,
		Format: PixelFormatI420,
	}

	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	if got := frame.PackedI420(); !bytes.Equal(got, want) {
		t.Errorf("PackedI420() = %v, want %v", got, want)
	}

	packed := FrameFromI420(want, 4, 2)
	if got := packed.PackedI420(); !bytes.Equal(got, want) {
		t.Errorf("round trip = %v, want %v", got, want)
	}
}

func TestAudioSamples_Clone(t *testing.T) {
	original := &AudioSamples{
		Data:        []byte{0x00, 0x01, 0x02, 0x03},
		SampleRate:  48000,
		Channels:    2,
		SampleCount: 1,
		Format:      AudioFormatS16,
		Timestamp:   12345,
	}

	clone := original.Clone()

	if clone.SampleRate != original.SampleRate || clone.Channels != original.Channels {
		t.Error("Clone format mismatch")
	}

	clone.Data[0] = 0xFF
	if original.Data[0] == 0xFF {
		t.Error("Clone is not independent from original")
	}
}

func BenchmarkVideoFrame_PackedI420(b *testing.B) {
	frame := FrameFromI420(make([]byte, I420Size(1280, 720)), 1280, 720)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = frame.PackedI420()
	}
}

func TestBlackI420(t *testing.T) {
	buf := BlackI420(4, 2)
	if len(buf) != I420Size(4, 2) {
		t.Fatalf("len = %d, want %d", len(buf), I420Size(4, 2))
	}
	if !bytes.Equal(buf[:8], make([]byte, 8)) {
		t.Errorf("luma = %v, want zeros", buf[:8])
	}
	if !bytes.Equal(buf[8:], bytes.Repeat([]byte{128}, 4)) {
		t.Errorf("chroma = %v, want 128", buf[8:])
	}
}
