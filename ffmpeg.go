package media

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"sync"
)

// maxStderrSize limits how much ffmpeg stderr is kept per process.
const maxStderrSize = 64 * 1024

// DefaultFFmpegPath is used when no explicit binary is configured.
const DefaultFFmpegPath = "ffmpeg"

// boundedBuffer is a thread-safe writer that keeps only the newest maxSize bytes.
type boundedBuffer struct {
	data    []byte
	maxSize int
	mu      sync.Mutex
}

func newBoundedBuffer(maxSize int) *boundedBuffer {
	return &boundedBuffer{maxSize: maxSize}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	if n >= b.maxSize {
		b.data = append(b.data[:0], p[n-b.maxSize:]...)
		return n, nil
	}
	if over := len(b.data) + n - b.maxSize; over > 0 {
		b.data = b.data[over:]
	}
	b.data = append(b.data, p...)
	return n, nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}

// extractLastError returns the last non-empty stderr line, truncated to 200
// bytes, or "" when there is none.
func extractLastError(stderr string) string {
	lines := strings.Split(stderr, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if len(line) > 200 {
			return line[:200] + "..."
		}
		return line
	}
	return ""
}

// FFmpegError reports a failed ffmpeg process. It unwraps to the exit error
// and, when stderr makes the cause clear, to ErrPermissionDenied,
// ErrDeviceNotFound or ErrOverconstrained.
type FFmpegError struct {
	Op     string
	Err    error
	Stderr string
}

func (e *FFmpegError) Error() string {
	if msg := extractLastError(e.Stderr); msg != "" {
		return fmt.Sprintf("ffmpeg %s: %s", e.Op, msg)
	}
	return fmt.Sprintf("ffmpeg %s: %v", e.Op, e.Err)
}

func (e *FFmpegError) Unwrap() []error {
	errs := []error{e.Err}
	if kind := classifyStderr(e.Stderr); kind != nil {
		errs = append(errs, kind)
	}
	return errs
}

func classifyStderr(stderr string) error {
	s := strings.ToLower(stderr)
	switch {
	case strings.Contains(s, "permission denied"), strings.Contains(s, "not authorized"):
		return ErrPermissionDenied
	case strings.Contains(s, "no such file or directory"), strings.Contains(s, "no such device"),
		strings.Contains(s, "could not find video device"), strings.Contains(s, "could not find audio"):
		return ErrDeviceNotFound
	case strings.Contains(s, "not supported by the device"), strings.Contains(s, "cannot set"),
		strings.Contains(s, "invalid argument"):
		return ErrOverconstrained
	default:
		return nil
	}
}

// lookFFmpeg resolves the ffmpeg binary.
func lookFFmpeg(path string) (string, error) {
	if path == "" {
		path = DefaultFFmpegPath
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found: %w", err)
	}
	return resolved, nil
}

// lavfiPrefix marks device IDs that are ffmpeg filter graphs instead of
// hardware, e.g. "lavfi:testsrc2" or "lavfi:sine=frequency=440".
const lavfiPrefix = "lavfi:"

// captureInputArgs returns the ffmpeg input arguments for a device on the
// given platform.
func captureInputArgs(goos string, kind DeviceKind, deviceID string, width, height, fps int) []string {
	if graph, ok := strings.CutPrefix(deviceID, lavfiPrefix); ok {
		if kind == DeviceKindVideoInput && width > 0 && height > 0 {
			graph = fmt.Sprintf("%s=size=%dx%d:rate=%d", graph, width, height, max(fps, 1))
		}
		return []string{"-f", "lavfi", "-i", graph}
	}

	var args []string
	if kind == DeviceKindVideoInput {
		if fps > 0 {
			args = append(args, "-framerate", fmt.Sprint(fps))
		}
		if width > 0 && height > 0 {
			args = append(args, "-video_size", fmt.Sprintf("%dx%d", width, height))
		}
	}

	switch goos {
	case "darwin":
		if kind == DeviceKindVideoInput {
			return append(args, "-f", "avfoundation", "-i", deviceID+":none")
		}
		return append(args, "-f", "avfoundation", "-i", ":"+deviceID)
	case "windows":
		if kind == DeviceKindVideoInput {
			return append(args, "-f", "dshow", "-i", "video="+deviceID)
		}
		return append(args, "-f", "dshow", "-i", "audio="+deviceID)
	default:
		if kind == DeviceKindVideoInput {
			return append(args, "-f", "v4l2", "-i", deviceID)
		}
		return append(args, "-f", "alsa", "-i", deviceID)
	}
}

// deviceListConfig describes how to pull devices out of a listing command.
type deviceListConfig struct {
	startMarker string // section start ("" = whole output)
	stopMarker  string // section end (optional)
	pattern     *regexp.Regexp
	parse       func(matches []string) *DeviceInfo
}

// parseDeviceList scans command output line by line.
func parseDeviceList(output string, cfg deviceListConfig) []DeviceInfo {
	var devices []DeviceInfo
	inSection := cfg.startMarker == ""

	for _, line := range strings.Split(output, "\n") {
		if cfg.startMarker != "" && strings.Contains(line, cfg.startMarker) {
			inSection = true
			continue
		}
		if cfg.stopMarker != "" && strings.Contains(line, cfg.stopMarker) {
			inSection = false
			continue
		}
		if !inSection || strings.Contains(line, "Alternative name") {
			continue
		}
		if m := cfg.pattern.FindStringSubmatch(line); m != nil {
			if dev := cfg.parse(m); dev != nil {
				devices = append(devices, *dev)
			}
		}
	}
	return devices
}

var (
	avfoundationPattern = regexp.MustCompile(`\[AVFoundation[^\]]*\]\s*\[(\d+)\]\s*(.+)`)
	dshowPattern        = regexp.MustCompile(`"([^"]+)"\s*\((video|audio)\)`)
	arecordPattern      = regexp.MustCompile(`card\s+(\d+):\s+(\w+)\s+\[([^\]]+)\],\s+device\s+(\d+)`)
)

// parseAVFoundationDevices parses `ffmpeg -f avfoundation -list_devices true -i ""`.
func parseAVFoundationDevices(output string, kind DeviceKind) []DeviceInfo {
	start, stop := "AVFoundation video devices:", "AVFoundation audio devices:"
	if kind == DeviceKindAudioInput {
		start, stop = stop, start
	}
	return parseDeviceList(output, deviceListConfig{
		startMarker: start,
		stopMarker:  stop,
		pattern:     avfoundationPattern,
		parse: func(m []string) *DeviceInfo {
			label := strings.TrimSpace(m[2])
			// Screen capture entries are not cameras.
			if strings.HasPrefix(label, "Capture screen") {
				return nil
			}
			return &DeviceInfo{DeviceID: m[1], Kind: kind, Label: label}
		},
	})
}

// parseDShowDevices parses `ffmpeg -list_devices true -f dshow -i dummy`.
func parseDShowDevices(output string, kind DeviceKind) []DeviceInfo {
	want := "video"
	if kind == DeviceKindAudioInput {
		want = "audio"
	}
	return parseDeviceList(output, deviceListConfig{
		pattern: dshowPattern,
		parse: func(m []string) *DeviceInfo {
			if m[2] != want {
				return nil
			}
			return &DeviceInfo{DeviceID: m[1], Kind: kind, Label: m[1]}
		},
	})
}

// parseARecordDevices parses `arecord -l`.
func parseARecordDevices(output string) []DeviceInfo {
	return parseDeviceList(output, deviceListConfig{
		pattern: arecordPattern,
		parse: func(m []string) *DeviceInfo {
			return &DeviceInfo{
				DeviceID: fmt.Sprintf("hw:CARD=%s,DEV=%s", m[2], m[4]),
				GroupID:  m[2],
				Kind:     DeviceKindAudioInput,
				Label:    m[3],
			}
		},
	})
}

// runListing runs a listing command and returns its combined output. Listing
// commands such as `ffmpeg -list_devices` exit non-zero by design, so output
// wins over the exit status.
func runListing(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if len(out) == 0 && err != nil {
		return "", err
	}
	return string(out), nil
}
