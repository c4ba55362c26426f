package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PreviewConfig configures a PreviewSurface.
type PreviewConfig struct {
	MaxWidth  int `validate:"gte=0,lte=7680"`
	MaxHeight int `validate:"gte=0,lte=4320"`
	FPS       int `validate:"gte=1,lte=60"`
	Quality   int `validate:"gte=1,lte=100"`
}

// DefaultPreviewConfig returns a 640x360, 10fps preview.
func DefaultPreviewConfig() PreviewConfig {
	return PreviewConfig{MaxWidth: 640, MaxHeight: 360, FPS: 10, Quality: 70}
}

// PreviewSurface renders the live video track as a stream of JPEG images.
// It follows whatever track it is currently attached to; consumers keep
// their subscription across re-acquisitions.
type PreviewSurface struct {
	cfg    PreviewConfig
	logger *zap.Logger
	images *fanout[[]byte]

	mu     sync.Mutex
	latest []byte
}

// NewPreviewSurface validates cfg and creates a detached surface.
func NewPreviewSurface(cfg PreviewConfig, logger *zap.Logger) (*PreviewSurface, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid preview config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreviewSurface{cfg: cfg, logger: logger, images: newFanout[[]byte](2)}, nil
}

// Run attaches the surface to track and renders frames until ctx is done
// or the track ends. Frames arriving faster than the configured rate are
// skipped.
func (p *PreviewSurface) Run(ctx context.Context, track VideoTrack) error {
	frames, remove := track.AddSink()
	defer remove()

	interval := time.Second / time.Duration(p.cfg.FPS)
	var (
		scaler *frameScaler
		last   time.Time
		buf    bytes.Buffer
	)
	for {
		frame, err := recv(ctx, frames)
		if err != nil {
			if errors.Is(err, ErrTrackEnded) {
				return nil
			}
			return err
		}
		now := time.Now()
		if now.Sub(last) < interval {
			continue
		}
		last = now

		w, h := FitSize(frame.Width, frame.Height, p.cfg.MaxWidth, p.cfg.MaxHeight)
		if scaler == nil || scaler.dstW != w || scaler.dstH != h {
			scaler = newFrameScaler(w, h)
		}
		img, err := scaler.scale(frame)
		if err != nil {
			p.logger.Debug("preview frame skipped", zap.Stringer("format", frame.Format), zap.Error(err))
			continue
		}
		buf.Reset()
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.cfg.Quality}); err != nil {
			return fmt.Errorf("encode preview: %w", err)
		}
		data := bytes.Clone(buf.Bytes())

		p.mu.Lock()
		p.latest = data
		p.mu.Unlock()
		p.images.publish(data)
	}
}

// Latest returns the most recent JPEG, or nil before the first frame.
func (p *PreviewSurface) Latest() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// Subscribe returns a channel of JPEG images. The channel is closed when
// the surface is closed.
func (p *PreviewSurface) Subscribe() (<-chan []byte, func()) {
	return p.images.add()
}

// WriteMJPEG streams images to w as multipart/x-mixed-replace parts
// separated by boundary, starting with the latest image. It returns when
// ctx is done, the surface is closed or a write fails.
func (p *PreviewSurface) WriteMJPEG(ctx context.Context, w io.Writer, boundary string) error {
	images, cancel := p.Subscribe()
	defer cancel()

	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(boundary); err != nil {
		return err
	}
	write := func(img []byte) error {
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":   {"image/jpeg"},
			"Content-Length": {strconv.Itoa(len(img))},
		})
		if err != nil {
			return err
		}
		if _, err := part.Write(img); err != nil {
			return err
		}
		if f, ok := w.(interface{ Flush() }); ok {
			f.Flush()
		}
		return nil
	}

	if img := p.Latest(); img != nil {
		if err := write(img); err != nil {
			return err
		}
	}
	for {
		select {
		case img, ok := <-images:
			if !ok {
				return nil
			}
			if err := write(img); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Close disconnects every subscriber.
func (p *PreviewSurface) Close() error {
	p.images.close()
	return nil
}
