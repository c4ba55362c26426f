package media

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"
)

func TestNewTestPatternSource_Defaults(t *testing.T) {
	source := NewTestPatternSource(TestPatternConfig{})
	defer source.Close()

	cfg := source.Config()
	if cfg.Width != 640 {
		t.Errorf("Default width = %d, want 640", cfg.Width)
	}
	if cfg.Height != 480 {
		t.Errorf("Default height = %d, want 480", cfg.Height)
	}
	if cfg.FPS != 30 {
		t.Errorf("Default FPS = %d, want 30", cfg.FPS)
	}
	if cfg.Format != PixelFormatI420 {
		t.Errorf("Default format = %v, want I420", cfg.Format)
	}
	if cfg.SourceType != SourceTypeTestPattern {
		t.Errorf("SourceType = %v, want TestPattern", cfg.SourceType)
	}
}

func TestNewTestPatternSource_OddDimensions(t *testing.T) {
	source := NewTestPatternSource(TestPatternConfig{Width: 321, Height: 241})
	defer source.Close()

	cfg := source.Config()
	if cfg.Width != 320 || cfg.Height != 240 {
		t.Errorf("got %dx%d, want 320x240", cfg.Width, cfg.Height)
	}
}

func TestTestPatternSource_StartStop(t *testing.T) {
	source := NewTestPatternSource(TestPatternConfig{Width: 64, Height: 48, FPS: 60})
	defer source.Close()

	ctx := context.Background()
	if err := source.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := source.Start(ctx); err == nil {
		t.Error("second Start should fail while running")
	}
	if err := source.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	// Restart after stop is allowed.
	if err := source.Start(ctx); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
}

func TestTestPatternSource_ReadFrame(t *testing.T) {
	source := NewTestPatternSource(TestPatternConfig{Width: 64, Height: 48, FPS: 60})
	defer source.Close()
	if err := source.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	first, err := source.ReadFrame(ctx)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	second, err := source.ReadFrame(ctx)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	if first.Width != 64 || first.Height != 48 {
		t.Errorf("frame size = %dx%d, want 64x48", first.Width, first.Height)
	}
	if len(first.Data) != 3 || len(first.Data[0]) != 64*48 || len(first.Data[1]) != 32*24 {
		t.Fatalf("unexpected plane layout")
	}
	if second.Timestamp <= first.Timestamp {
		t.Errorf("timestamps not increasing: %d then %d", first.Timestamp, second.Timestamp)
	}
	// Frames own their buffers.
	if &first.Data[0][0] == &second.Data[0][0] {
		t.Error("frames share a buffer")
	}
}

func TestTestPatternSource_AllPatterns(t *testing.T) {
	patterns := []PatternType{
		PatternColorBars,
		PatternGradient,
		PatternCheckerboard,
		PatternSolidColor,
		PatternMovingBox,
	}

	for _, pattern := range patterns {
		t.Run(pattern.String(), func(t *testing.T) {
			source := NewTestPatternSource(TestPatternConfig{
				Width:   64,
				Height:  48,
				FPS:     60,
				Pattern: pattern,
				SolidR:  255,
			})
			defer source.Close()
			if err := source.Start(context.Background()); err != nil {
				t.Fatalf("Start failed: %v", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			frame, err := source.ReadFrame(ctx)
			if err != nil {
				t.Fatalf("ReadFrame failed: %v", err)
			}
			for _, y := range frame.Data[0] {
				if y < 16 || y > 235 {
					t.Fatalf("luma %d outside limited range", y)
				}
			}
		})
	}
}

func TestTestPatternSource_ContextCancellation(t *testing.T) {
	source := NewTestPatternSource(TestPatternConfig{Width: 64, Height: 48, FPS: 1})
	defer source.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := source.ReadFrame(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("ReadFrame error = %v, want context.Canceled", err)
	}
}

func TestTestPatternSource_ReadAfterClose(t *testing.T) {
	source := NewTestPatternSource(TestPatternConfig{Width: 64, Height: 48})
	if err := source.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	source.Close()

	if _, err := source.ReadFrame(context.Background()); !errors.Is(err, ErrSourceClosed) {
		t.Errorf("ReadFrame error = %v, want ErrSourceClosed", err)
	}
	if err := source.Start(context.Background()); !errors.Is(err, ErrSourceClosed) {
		t.Errorf("Start error = %v, want ErrSourceClosed", err)
	}
}

func TestTestPatternSource_RGBToYUV(t *testing.T) {
	tests := []struct {
		r, g, b uint8
		name    string
		wantY   uint8
	}{
		{255, 255, 255, "white", 235},
		{0, 0, 0, "black", 16},
		{255, 0, 0, "red", 81},
		{0, 255, 0, "green", 145},
		{0, 0, 255, "blue", 41},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y, u, v := rgbToYUV(tt.r, tt.g, tt.b)

			if y != tt.wantY {
				t.Errorf("Y = %d, want %d", y, tt.wantY)
			}
			if u < 16 || u > 240 {
				t.Errorf("U value %d out of range [16, 240]", u)
			}
			if v < 16 || v > 240 {
				t.Errorf("V value %d out of range [16, 240]", v)
			}
		})
	}
}

func TestToneSource_Defaults(t *testing.T) {
	source := NewToneSource(ToneConfig{})
	defer source.Close()

	if source.SampleRate() != 48000 {
		t.Errorf("SampleRate = %d, want 48000", source.SampleRate())
	}
	if source.Channels() != 1 {
		t.Errorf("Channels = %d, want 1", source.Channels())
	}
}

func TestToneSource_ReadSamples(t *testing.T) {
	source := NewToneSource(ToneConfig{Channels: 2, FrameSize: 480})
	defer source.Close()
	if err := source.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	block, err := source.ReadSamples(ctx)
	if err != nil {
		t.Fatalf("ReadSamples failed: %v", err)
	}

	if block.SampleCount != 480 || block.Channels != 2 {
		t.Errorf("block = %d samples x %d channels", block.SampleCount, block.Channels)
	}
	if len(block.Data) != 480*2*2 {
		t.Fatalf("len(Data) = %d, want %d", len(block.Data), 480*2*2)
	}
	// Channels carry the same sample.
	for i := 0; i < len(block.Data); i += 4 {
		l := binary.LittleEndian.Uint16(block.Data[i:])
		r := binary.LittleEndian.Uint16(block.Data[i+2:])
		if l != r {
			t.Fatalf("channel mismatch at sample %d", i/4)
		}
	}
}

func TestToneSource_Waveforms(t *testing.T) {
	amplitude := DefaultToneConfig().Amplitude
	peak := int16(amplitude * math.MaxInt16)

	tests := []struct {
		waveform Waveform
		check    func(t *testing.T, samples []int16)
	}{
		{WaveformSilence, func(t *testing.T, samples []int16) {
			for i, s := range samples {
				if s != 0 {
					t.Fatalf("sample %d = %d, want 0", i, s)
				}
			}
		}},
		{WaveformSquare, func(t *testing.T, samples []int16) {
			for i, s := range samples {
				if s != peak && s != -peak {
					t.Fatalf("sample %d = %d, want ±%d", i, s, peak)
				}
			}
		}},
		{WaveformSine, func(t *testing.T, samples []int16) {
			var hi int16
			for _, s := range samples {
				hi = max(hi, s)
				if s > peak || s < -peak {
					t.Fatalf("sample %d exceeds amplitude", s)
				}
			}
			if hi < peak-100 {
				t.Errorf("peak %d, want close to %d", hi, peak)
			}
		}},
		{WaveformNoise, func(t *testing.T, samples []int16) {
			distinct := make(map[int16]struct{})
			for _, s := range samples {
				distinct[s] = struct{}{}
			}
			if len(distinct) < len(samples)/2 {
				t.Errorf("noise has only %d distinct values", len(distinct))
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.waveform.String(), func(t *testing.T) {
			source := NewToneSource(ToneConfig{Waveform: tt.waveform})
			buf := source.nextBlock()
			samples := make([]int16, len(buf)/2)
			for i := range samples {
				samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
			}
			tt.check(t, samples)
		})
	}
}

func BenchmarkTestPatternSource_MovingBox(b *testing.B) {
	source := NewTestPatternSource(TestPatternConfig{
		Width:   1280,
		Height:  720,
		Pattern: PatternMovingBox,
	})
	buf := make([]byte, I420Size(1280, 720))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		source.render(buf, uint64(i))
	}
}
