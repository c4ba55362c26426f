package media

import (
	"context"
	"fmt"
	"sync/atomic"
)

const (
	syntheticCameraID     = "synthetic-camera"
	syntheticMicrophoneID = "synthetic-microphone"
	syntheticGroupID      = "synthetic"
)

// SyntheticConfig configures a SyntheticProvider.
type SyntheticConfig struct {
	// DenyPermission makes every open fail with ErrPermissionDenied.
	DenyPermission bool
	// NoDevices makes the provider report an empty device list.
	NoDevices bool
	// MaxWidth and MaxHeight bound what the camera can satisfy
	// (default: 1920x1080). Larger requests fail with ErrOverconstrained.
	MaxWidth, MaxHeight int
	// Pattern drawn by the camera.
	Pattern PatternType
	// Waveform and Frequency of the microphone tone.
	Waveform  Waveform
	Frequency float64
}

// SyntheticProvider is a DeviceProvider with one test-pattern camera and one
// tone microphone. It needs no hardware, which makes it the provider of
// choice for tests and demos.
type SyntheticProvider struct {
	config SyntheticConfig
	opened atomic.Int64
}

// NewSyntheticProvider creates a synthetic device provider.
func NewSyntheticProvider(config SyntheticConfig) *SyntheticProvider {
	if config.MaxWidth <= 0 {
		config.MaxWidth = 1920
	}
	if config.MaxHeight <= 0 {
		config.MaxHeight = 1080
	}
	return &SyntheticProvider{config: config}
}

// Opened returns how many tracks the provider has opened so far.
func (p *SyntheticProvider) Opened() int64 {
	return p.opened.Load()
}

func (p *SyntheticProvider) ListVideoDevices(ctx context.Context) ([]DeviceInfo, error) {
	if p.config.NoDevices {
		return nil, nil
	}
	return []DeviceInfo{{
		DeviceID: syntheticCameraID,
		GroupID:  syntheticGroupID,
		Kind:     DeviceKindVideoInput,
		Label:    "Synthetic Camera (" + p.config.Pattern.String() + ")",
	}}, nil
}

func (p *SyntheticProvider) ListAudioInputDevices(ctx context.Context) ([]DeviceInfo, error) {
	if p.config.NoDevices {
		return nil, nil
	}
	return []DeviceInfo{{
		DeviceID: syntheticMicrophoneID,
		GroupID:  syntheticGroupID,
		Kind:     DeviceKindAudioInput,
		Label:    "Synthetic Microphone (" + p.config.Waveform.String() + ")",
	}}, nil
}

func (p *SyntheticProvider) OpenVideoDevice(ctx context.Context, deviceID string, constraints *VideoConstraints) (VideoTrack, error) {
	if p.config.DenyPermission {
		return nil, ErrPermissionDenied
	}
	if deviceID != syntheticCameraID || p.config.NoDevices {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}

	cfg := DefaultTestPatternConfig()
	cfg.Pattern = p.config.Pattern
	if constraints != nil {
		if constraints.Width > p.config.MaxWidth || constraints.Height > p.config.MaxHeight {
			return nil, fmt.Errorf("%w: %dx%d exceeds %dx%d", ErrOverconstrained,
				constraints.Width, constraints.Height, p.config.MaxWidth, p.config.MaxHeight)
		}
		if constraints.Width > 0 {
			cfg.Width = constraints.Width
		}
		if constraints.Height > 0 {
			cfg.Height = constraints.Height
		}
		if constraints.FrameRate > 0 {
			cfg.FPS = constraints.FrameRate
		}
	}

	source := NewTestPatternSource(cfg)
	// The track outlives the request context.
	if err := source.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to start test pattern: %w", err)
	}
	p.opened.Add(1)
	return NewVideoSourceTrack("Synthetic Camera", deviceID, source), nil
}

func (p *SyntheticProvider) OpenAudioDevice(ctx context.Context, deviceID string, constraints *AudioConstraints) (AudioTrack, error) {
	if p.config.DenyPermission {
		return nil, ErrPermissionDenied
	}
	if deviceID != syntheticMicrophoneID || p.config.NoDevices {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}

	cfg := DefaultToneConfig()
	cfg.Waveform = p.config.Waveform
	if p.config.Frequency > 0 {
		cfg.Frequency = p.config.Frequency
	}
	echo := false
	if constraints != nil {
		if constraints.SampleRate > 0 {
			cfg.SampleRate = constraints.SampleRate
		}
		if constraints.ChannelCount > 0 {
			cfg.Channels = constraints.ChannelCount
		}
		// A generated tone has no echo path; report the request as honoured.
		echo = constraints.EchoCancellation
	}

	source := NewToneSource(cfg)
	if err := source.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to start tone: %w", err)
	}
	p.opened.Add(1)
	return NewAudioSourceTrack("Synthetic Microphone", deviceID, source, echo), nil
}
