package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Errors reported by GetUserMedia. Providers wrap these so callers can
// tell the failure kinds apart with errors.Is.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrDeviceNotFound   = errors.New("requested device not found")
	ErrOverconstrained  = errors.New("constraints cannot be satisfied")
	ErrNoMediaRequested = errors.New("at least one of audio and video must be requested")
	ErrNoDeviceProvider = errors.New("no device provider")
)

// DeviceKind represents the type of media device.
type DeviceKind int

const (
	DeviceKindVideoInput DeviceKind = iota // Camera
	DeviceKindAudioInput                   // Microphone
)

func (k DeviceKind) String() string {
	switch k {
	case DeviceKindVideoInput:
		return "videoinput"
	case DeviceKindAudioInput:
		return "audioinput"
	default:
		return "unknown"
	}
}

// DeviceInfo describes a media device (like browser's MediaDeviceInfo).
type DeviceInfo struct {
	DeviceID string     // Unique identifier for the device
	GroupID  string     // Devices with the same group belong to one physical unit
	Kind     DeviceKind // Device type
	Label    string     // Human-readable device name
}

// UserMediaOptions configures getUserMedia.
type UserMediaOptions struct {
	Video *VideoConstraints // nil = no video
	Audio *AudioConstraints // nil = no audio
}

// VideoConstraints for getUserMedia video. Zero values mean "any".
type VideoConstraints struct {
	DeviceID  string
	Width     int    `validate:"gte=0,lte=7680"`
	Height    int    `validate:"gte=0,lte=4320"`
	FrameRate int    `validate:"gte=0,lte=240"`
}

// AudioConstraints for getUserMedia audio. Zero values mean "any".
type AudioConstraints struct {
	DeviceID         string
	SampleRate       int `validate:"gte=0,lte=192000"`
	ChannelCount     int `validate:"gte=0,lte=8"`
	EchoCancellation bool
}

// MediaDevices provides access to media input devices (like navigator.mediaDevices).
type MediaDevices interface {
	// EnumerateDevices returns a list of available media devices.
	EnumerateDevices(ctx context.Context) ([]DeviceInfo, error)

	// GetUserMedia returns a MediaStream with the requested audio and/or
	// video tracks. On failure no track is left open.
	GetUserMedia(ctx context.Context, options UserMediaOptions) (MediaStream, error)
}

// DeviceProvider is implemented by the capture backends (ffmpeg, synthetic).
type DeviceProvider interface {
	// ListVideoDevices returns available video input devices.
	ListVideoDevices(ctx context.Context) ([]DeviceInfo, error)

	// ListAudioInputDevices returns available audio input devices.
	ListAudioInputDevices(ctx context.Context) ([]DeviceInfo, error)

	// OpenVideoDevice opens a video input device.
	OpenVideoDevice(ctx context.Context, deviceID string, constraints *VideoConstraints) (VideoTrack, error)

	// OpenAudioDevice opens an audio input device.
	OpenAudioDevice(ctx context.Context, deviceID string, constraints *AudioConstraints) (AudioTrack, error)
}

// DefaultMediaDevices implements MediaDevices on top of one DeviceProvider.
type DefaultMediaDevices struct {
	provider DeviceProvider
	mu       sync.Mutex
}

// NewMediaDevices returns a MediaDevices backed by provider.
func NewMediaDevices(provider DeviceProvider) *DefaultMediaDevices {
	return &DefaultMediaDevices{provider: provider}
}

// EnumerateDevices implements MediaDevices.
func (d *DefaultMediaDevices) EnumerateDevices(ctx context.Context) ([]DeviceInfo, error) {
	if d.provider == nil {
		return nil, ErrNoDeviceProvider
	}

	var devices []DeviceInfo

	videoDevices, err := d.provider.ListVideoDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list video devices: %w", err)
	}
	devices = append(devices, videoDevices...)

	audioDevices, err := d.provider.ListAudioInputDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list audio devices: %w", err)
	}
	devices = append(devices, audioDevices...)

	return devices, nil
}

// GetUserMedia implements MediaDevices. Requests are serialized so two
// concurrent calls never race for the same device.
func (d *DefaultMediaDevices) GetUserMedia(ctx context.Context, options UserMediaOptions) (MediaStream, error) {
	if d.provider == nil {
		return nil, ErrNoDeviceProvider
	}
	if options.Video == nil && options.Audio == nil {
		return nil, ErrNoMediaRequested
	}
	if err := validate.Struct(options); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOverconstrained, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stream := NewMediaStream()

	if options.Video != nil {
		deviceID, err := d.pickDevice(ctx, options.Video.DeviceID, d.provider.ListVideoDevices)
		if err != nil {
			return nil, fmt.Errorf("failed to find video device: %w", err)
		}
		videoTrack, err := d.provider.OpenVideoDevice(ctx, deviceID, options.Video)
		if err != nil {
			return nil, fmt.Errorf("failed to open video device: %w", err)
		}
		stream.AddTrack(videoTrack)
	}

	if options.Audio != nil {
		deviceID, err := d.pickDevice(ctx, options.Audio.DeviceID, d.provider.ListAudioInputDevices)
		if err == nil {
			var audioTrack AudioTrack
			audioTrack, err = d.provider.OpenAudioDevice(ctx, deviceID, options.Audio)
			if err == nil {
				stream.AddTrack(audioTrack)
				return stream, nil
			}
			err = fmt.Errorf("failed to open audio device: %w", err)
		} else {
			err = fmt.Errorf("failed to find audio device: %w", err)
		}
		// Release the video track we may already hold.
		_ = stream.Close()
		return nil, err
	}

	return stream, nil
}

// pickDevice resolves an empty device ID to the first listed device and
// checks that an explicit one exists.
func (d *DefaultMediaDevices) pickDevice(ctx context.Context, deviceID string, list func(context.Context) ([]DeviceInfo, error)) (string, error) {
	devices, err := list(ctx)
	if err != nil {
		return "", err
	}
	if len(devices) == 0 {
		return "", ErrDeviceNotFound
	}
	if deviceID == "" {
		return devices[0].DeviceID, nil
	}
	for _, dev := range devices {
		if dev.DeviceID == deviceID {
			return deviceID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
}
