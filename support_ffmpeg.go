package media

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// FFmpegTypeSupport answers IsTypeSupported from the encoders and muxers of
// an ffmpeg binary. The binary is probed once, on first use.
type FFmpegTypeSupport struct {
	path string

	once     sync.Once
	encoders map[string]bool
	muxers   map[string]bool
	err      error
}

// NewFFmpegTypeSupport creates a type support probe for the given ffmpeg
// binary ("" means ffmpeg from PATH).
func NewFFmpegTypeSupport(path string) *FFmpegTypeSupport {
	return &FFmpegTypeSupport{path: path}
}

// IsTypeSupported implements TypeSupport. Any probe failure means no type
// is supported.
func (s *FFmpegTypeSupport) IsTypeSupported(mimeType string) bool {
	if s.Probe() != nil {
		return false
	}
	m, err := ParseMimeType(mimeType)
	if err != nil {
		return false
	}
	if !s.muxers[m.FFmpegMuxer()] {
		return false
	}
	if v := m.VideoCodecOrDefault(); v != VideoCodecUnknown && !s.encoders[v.FFmpegEncoder()] {
		return false
	}
	return s.encoders[m.AudioCodecOrDefault().FFmpegEncoder()]
}

// Probe runs the ffmpeg listings if they have not run yet and reports
// whether they succeeded.
func (s *FFmpegTypeSupport) Probe() error {
	s.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		bin, err := lookFFmpeg(s.path)
		if err != nil {
			s.err = err
			return
		}
		encoders, err := exec.CommandContext(ctx, bin, "-hide_banner", "-encoders").Output()
		if err != nil {
			s.err = fmt.Errorf("failed to list encoders: %w", err)
			return
		}
		muxers, err := exec.CommandContext(ctx, bin, "-hide_banner", "-muxers").Output()
		if err != nil {
			s.err = fmt.Errorf("failed to list muxers: %w", err)
			return
		}
		s.encoders = parseFFmpegTable(string(encoders))
		s.muxers = parseFFmpegTable(string(muxers))
	})
	return s.err
}

// HasEncoder reports whether the binary has the named encoder.
func (s *FFmpegTypeSupport) HasEncoder(name string) bool {
	return s.Probe() == nil && s.encoders[name]
}

// parseFFmpegTable extracts the name column of `ffmpeg -encoders` or
// `ffmpeg -muxers` output. Rows follow a dashed separator line; the name is
// the second field and may list aliases separated by commas.
func parseFFmpegTable(output string) map[string]bool {
	names := make(map[string]bool)
	inTable := false
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if !inTable {
			inTable = strings.HasPrefix(trimmed, "--")
			continue
		}
		fields := strings.Fields(trimmed)
		if len(fields) < 2 {
			continue
		}
		for _, name := range strings.Split(fields[1], ",") {
			names[name] = true
		}
	}
	return names
}
