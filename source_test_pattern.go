package media

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// PatternType defines the type of test pattern to generate.
type PatternType int

const (
	PatternColorBars    PatternType = iota // SMPTE color bars
	PatternGradient                        // Horizontal luma ramp
	PatternCheckerboard                    // Checkerboard
	PatternSolidColor                      // Solid color
	PatternMovingBox                       // Box orbiting the frame center
)

func (p PatternType) String() string {
	switch p {
	case PatternColorBars:
		return "ColorBars"
	case PatternGradient:
		return "Gradient"
	case PatternCheckerboard:
		return "Checkerboard"
	case PatternSolidColor:
		return "SolidColor"
	case PatternMovingBox:
		return "MovingBox"
	default:
		return "Unknown"
	}
}

// TestPatternConfig configures a test pattern source.
type TestPatternConfig struct {
	Width   int         // Frame width (default: 640)
	Height  int         // Frame height (default: 480)
	FPS     int         // Frames per second (default: 30)
	Pattern PatternType // Pattern type (default: ColorBars)

	// For SolidColor pattern
	SolidR, SolidG, SolidB uint8

	// For Checkerboard pattern (default: 32)
	CheckerSize int
}

// DefaultTestPatternConfig returns a default test pattern configuration.
func DefaultTestPatternConfig() TestPatternConfig {
	return TestPatternConfig{
		Width:       640,
		Height:      480,
		FPS:         30,
		Pattern:     PatternColorBars,
		CheckerSize: 32,
	}
}

// TestPatternSource is a synthetic camera. Every frame it delivers owns its
// buffer, so consumers may hold frames across reads.
type TestPatternSource struct {
	config TestPatternConfig

	still         []byte // pre-rendered buffer for static patterns
	frameDuration time.Duration

	running   atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
	frames    chan *VideoFrame
	closed    chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
}

// NewTestPatternSource creates a new test pattern video source.
func NewTestPatternSource(config TestPatternConfig) *TestPatternSource {
	def := DefaultTestPatternConfig()
	if config.Width <= 0 {
		config.Width = def.Width
	}
	if config.Height <= 0 {
		config.Height = def.Height
	}
	// I420 needs even dimensions.
	config.Width &^= 1
	config.Height &^= 1
	if config.FPS <= 0 {
		config.FPS = def.FPS
	}
	if config.CheckerSize <= 0 {
		config.CheckerSize = def.CheckerSize
	}

	s := &TestPatternSource{
		config:        config,
		frameDuration: time.Second / time.Duration(config.FPS),
		frames:        make(chan *VideoFrame, 1),
		closed:        make(chan struct{}),
	}
	if config.Pattern != PatternMovingBox {
		s.still = make([]byte, I420Size(config.Width, config.Height))
		s.render(s.still, 0)
	}
	return s
}

// Start begins generating frames. The source keeps running until Stop or
// Close, or until ctx is cancelled.
func (s *TestPatternSource) Start(ctx context.Context) error {
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

// Stop halts frame generation and waits for the generator to exit.
func (s *TestPatternSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Swap(false) {
		return nil
	}
	s.cancel()
	<-s.done
	return nil
}

// Close stops the source; pending and future reads fail with ErrSourceClosed.
func (s *TestPatternSource) Close() error {
	err := s.Stop()
	s.closeOnce.Do(func() { close(s.closed) })
	return err
}

// ReadFrame reads the next frame (blocking).
func (s *TestPatternSource) ReadFrame(ctx context.Context) (*VideoFrame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, ErrSourceClosed
	case frame := <-s.frames:
		return frame, nil
	}
}

// Config returns the source configuration.
func (s *TestPatternSource) Config() SourceConfig {
	return SourceConfig{
		Width:      s.config.Width,
		Height:     s.config.Height,
		FPS:        s.config.FPS,
		Format:     PixelFormatI420,
		SourceType: SourceTypeTestPattern,
	}
}

func (s *TestPatternSource) generateLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.frameDuration)
	defer ticker.Stop()

	start := time.Now()
	var frameNum uint64

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			frameNum++

			buf := make([]byte, I420Size(s.config.Width, s.config.Height))
			if s.still != nil {
				copy(buf, s.still)
			} else {
				s.render(buf, frameNum)
			}

			frame := FrameFromI420(buf, s.config.Width, s.config.Height)
			frame.Timestamp = now.Sub(start).Nanoseconds()
			frame.Duration = s.frameDuration.Nanoseconds()

			// Keep only the newest frame for slow readers.
			select {
			case s.frames <- frame:
			default:
				select {
				case <-s.frames:
				default:
				}
				select {
				case s.frames <- frame:
				default:
				}
			}
		}
	}
}

// render draws the configured pattern into a packed I420 buffer.
func (s *TestPatternSource) render(buf []byte, frameNum uint64) {
	w, h := s.config.Width, s.config.Height
	ySize := w * h
	cw := w / 2
	yPlane := buf[:ySize]
	uPlane := buf[ySize : ySize+ySize/4]
	vPlane := buf[ySize+ySize/4:]

	// pixel returns the YUV color of (x, y).
	var pixel func(x, y int) (uint8, uint8, uint8)

	switch s.config.Pattern {
	case PatternGradient:
		pixel = func(x, _ int) (uint8, uint8, uint8) {
			return uint8(16 + (x*219)/w), 128, 128
		}
	case PatternCheckerboard:
		size := s.config.CheckerSize
		pixel = func(x, y int) (uint8, uint8, uint8) {
			if ((x/size)+(y/size))%2 == 0 {
				return 235, 128, 128
			}
			return 16, 128, 128
		}
	case PatternSolidColor:
		yv, u, v := rgbToYUV(s.config.SolidR, s.config.SolidG, s.config.SolidB)
		pixel = func(_, _ int) (uint8, uint8, uint8) { return yv, u, v }
	case PatternMovingBox:
		boxSize := min(w, h) / 5
		radius := float64(min(w, h)) / 4
		angle := float64(frameNum) * 0.05
		bx := w/2 + int(radius*math.Cos(angle)) - boxSize/2
		by := h/2 + int(radius*math.Sin(angle)) - boxSize/2
		pixel = func(x, y int) (uint8, uint8, uint8) {
			if x >= bx && x < bx+boxSize && y >= by && y < by+boxSize {
				return 235, 128, 128
			}
			return 16, 128, 128
		}
	default:
		barWidth := max(w/len(colorBarsYUV), 1)
		pixel = func(x, _ int) (uint8, uint8, uint8) {
			c := colorBarsYUV[min(x/barWidth, len(colorBarsYUV)-1)]
			return c[0], c[1], c[2]
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			yv, u, v := pixel(x, y)
			yPlane[y*w+x] = yv
			if x%2 == 0 && y%2 == 0 {
				i := (y/2)*cw + x/2
				uPlane[i] = u
				vPlane[i] = v
			}
		}
	}
}

// SMPTE color bars (simplified 8-bar pattern), converted once.
var colorBarsYUV = func() [][3]uint8 {
	rgb := [][3]uint8{
		{192, 192, 192}, // White (75%)
		{192, 192, 0},   // Yellow
		{0, 192, 192},   // Cyan
		{0, 192, 0},     // Green
		{192, 0, 192},   // Magenta
		{192, 0, 0},     // Red
		{0, 0, 192},     // Blue
		{16, 16, 16},    // Black
	}
	out := make([][3]uint8, len(rgb))
	for i, c := range rgb {
		y, u, v := rgbToYUV(c[0], c[1], c[2])
		out[i] = [3]uint8{y, u, v}
	}
	return out
}()

// rgbToYUV converts RGB to limited-range YUV (BT.601).
func rgbToYUV(r, g, b uint8) (y, u, v uint8) {
	rf, gf, bf := float64(r)/255, float64(g)/255, float64(b)/255
	yf := 16 + 65.481*rf + 128.553*gf + 24.966*bf
	uf := 128 - 37.797*rf - 74.203*gf + 112.0*bf
	vf := 128 + 112.0*rf - 93.786*gf - 18.214*bf

	y = uint8(math.Round(clampFloat(yf, 16, 235)))
	u = uint8(math.Round(clampFloat(uf, 16, 240)))
	v = uint8(math.Round(clampFloat(vf, 16, 240)))
	return
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
