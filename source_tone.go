package media

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Waveform selects the signal a ToneSource produces.
type Waveform int

const (
	WaveformSine Waveform = iota
	WaveformSquare
	WaveformSilence
	WaveformNoise
)

func (w Waveform) String() string {
	switch w {
	case WaveformSine:
		return "Sine"
	case WaveformSquare:
		return "Square"
	case WaveformSilence:
		return "Silence"
	case WaveformNoise:
		return "Noise"
	default:
		return "Unknown"
	}
}

// ToneConfig configures a ToneSource.
type ToneConfig struct {
	SampleRate int      // default: 48000
	Channels   int      // default: 1
	FrameSize  int      // samples per channel per block (default: 960, 20ms at 48kHz)
	Waveform   Waveform // default: Sine
	Frequency  float64  // Hz (default: 440)
	Amplitude  float64  // 0..1 (default: 0.3)
}

// DefaultToneConfig returns a 440Hz mono sine at 48kHz.
func DefaultToneConfig() ToneConfig {
	return ToneConfig{
		SampleRate: 48000,
		Channels:   1,
		FrameSize:  960,
		Waveform:   WaveformSine,
		Frequency:  440,
		Amplitude:  0.3,
	}
}

// ToneSource is a synthetic microphone producing S16 little-endian blocks
// at real-time pace.
type ToneSource struct {
	config ToneConfig

	phase    float64
	rngState uint64

	running   atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
	blocks    chan *AudioSamples
	closed    chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
}

// NewToneSource creates a tone generator.
func NewToneSource(config ToneConfig) *ToneSource {
	def := DefaultToneConfig()
	if config.SampleRate <= 0 {
		config.SampleRate = def.SampleRate
	}
	if config.Channels <= 0 {
		config.Channels = def.Channels
	}
	if config.FrameSize <= 0 {
		config.FrameSize = def.FrameSize
	}
	if config.Frequency <= 0 {
		config.Frequency = def.Frequency
	}
	if config.Amplitude <= 0 {
		config.Amplitude = def.Amplitude
	}
	config.Amplitude = math.Min(config.Amplitude, 1)

	return &ToneSource{
		config:   config,
		rngState: uint64(time.Now().UnixNano()) | 1,
		blocks:   make(chan *AudioSamples, 4),
		closed:   make(chan struct{}),
	}
}

// Start begins generating samples.
func (s *ToneSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.closed:
		return ErrSourceClosed
	default:
	}
	if s.running.Load() {
		return fmt.Errorf("source already running")
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running.Store(true)

	go s.generateLoop(ctx, s.done)
	return nil
}

// Stop halts generation and waits for the generator to exit.
func (s *ToneSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Swap(false) {
		return nil
	}
	s.cancel()
	<-s.done
	return nil
}

// Close stops the source; reads fail with ErrSourceClosed afterwards.
func (s *ToneSource) Close() error {
	err := s.Stop()
	s.closeOnce.Do(func() { close(s.closed) })
	return err
}

// ReadSamples reads the next block (blocking).
func (s *ToneSource) ReadSamples(ctx context.Context) (*AudioSamples, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, ErrSourceClosed
	case block := <-s.blocks:
		return block, nil
	}
}

func (s *ToneSource) SampleRate() int { return s.config.SampleRate }
func (s *ToneSource) Channels() int   { return s.config.Channels }

func (s *ToneSource) generateLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	blockDuration := time.Duration(s.config.FrameSize) * time.Second / time.Duration(s.config.SampleRate)
	ticker := time.NewTicker(blockDuration)
	defer ticker.Stop()

	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			block := &AudioSamples{
				Data:        s.nextBlock(),
				SampleRate:  s.config.SampleRate,
				Channels:    s.config.Channels,
				SampleCount: s.config.FrameSize,
				Format:      AudioFormatS16,
				Timestamp:   now.Sub(start).Nanoseconds(),
			}
			select {
			case s.blocks <- block:
			default:
				// Drop if the reader fell behind.
			}
		}
	}
}

// nextBlock renders FrameSize samples, duplicated across channels.
func (s *ToneSource) nextBlock() []byte {
	cfg := s.config
	buf := make([]byte, cfg.FrameSize*cfg.Channels*2)
	step := 2 * math.Pi * cfg.Frequency / float64(cfg.SampleRate)
	peak := cfg.Amplitude * math.MaxInt16

	idx := 0
	for i := 0; i < cfg.FrameSize; i++ {
		var sample float64
		switch cfg.Waveform {
		case WaveformSine:
			sample = peak * math.Sin(s.phase)
		case WaveformSquare:
			if math.Sin(s.phase) >= 0 {
				sample = peak
			} else {
				sample = -peak
			}
		case WaveformNoise:
			// xorshift64
			s.rngState ^= s.rngState << 13
			s.rngState ^= s.rngState >> 7
			s.rngState ^= s.rngState << 17
			sample = peak * (float64(s.rngState)/math.MaxUint64*2 - 1)
		}
		s.phase = math.Mod(s.phase+step, 2*math.Pi)

		v := uint16(int16(sample))
		for c := 0; c < cfg.Channels; c++ {
			binary.LittleEndian.PutUint16(buf[idx:], v)
			idx += 2
		}
	}
	return buf
}
