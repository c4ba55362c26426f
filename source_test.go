package media

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedVideoSource hands out a fixed number of frames, then fails.
type scriptedVideoSource struct {
	frames chan *VideoFrame
	closed atomic.Int32
}

func newScriptedVideoSource(n int) *scriptedVideoSource {
	s := &scriptedVideoSource{frames: make(chan *VideoFrame, n)}
	for i := range n {
		f := FrameFromI420(make([]byte, I420Size(4, 4)), 4, 4)
		f.Timestamp = int64(i)
		s.frames <- f
	}
	close(s.frames)
	return s
}

func (s *scriptedVideoSource) Start(context.Context) error { return nil }
func (s *scriptedVideoSource) Stop() error                 { return nil }
func (s *scriptedVideoSource) Close() error {
	s.closed.Add(1)
	return nil
}
func (s *scriptedVideoSource) Config() SourceConfig {
	return SourceConfig{Width: 4, Height: 4, FPS: 30, Format: PixelFormatI420}
}
func (s *scriptedVideoSource) ReadFrame(ctx context.Context) (*VideoFrame, error) {
	select {
	case f, ok := <-s.frames:
		if !ok {
			return nil, errors.New("device unplugged")
		}
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestSourceVideoTrack_EndsWhenSourceFails(t *testing.T) {
	src := newScriptedVideoSource(0)
	track := NewVideoSourceTrack("camera", "cam0", src)

	select {
	case <-track.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("track did not end after source failure")
	}
	assert.Equal(t, TrackStateEnded, track.State())

	_, err := track.ReadFrame(context.Background())
	assert.ErrorIs(t, err, ErrTrackEnded)

	require.NoError(t, track.Close())
	require.NoError(t, track.Close())
	assert.Equal(t, int32(1), src.closed.Load(), "source closed exactly once")
}

func TestSourceVideoTrack_SinksSeeEveryFrame(t *testing.T) {
	src := &blockingVideoSource{next: make(chan *VideoFrame)}
	track := NewVideoSourceTrack("camera", "cam0", src)
	defer track.Close()

	a, removeA := track.AddSink()
	defer removeA()
	b, removeB := track.AddSink()
	defer removeB()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := range 3 {
		f := FrameFromI420(make([]byte, I420Size(4, 4)), 4, 4)
		f.Timestamp = int64(i)
		src.next <- f

		fa, err := recv(ctx, a)
		require.NoError(t, err)
		fb, err := recv(ctx, b)
		require.NoError(t, err)
		assert.Equal(t, int64(i), fa.Timestamp)
		assert.Same(t, fa, fb)
	}

	settings := track.Settings()
	assert.Equal(t, "cam0", settings.DeviceID)
	assert.Equal(t, 4, settings.Width)
}

func TestSourceVideoTrack_CloseEndsSinks(t *testing.T) {
	src := &blockingVideoSource{next: make(chan *VideoFrame)}
	track := NewVideoSourceTrack("camera", "", src)
	sink, remove := track.AddSink()
	defer remove()

	require.NoError(t, track.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := recv(ctx, sink)
	assert.ErrorIs(t, err, ErrTrackEnded)
}

type blockingVideoSource struct {
	next chan *VideoFrame
}

func (s *blockingVideoSource) Start(context.Context) error { return nil }
func (s *blockingVideoSource) Stop() error                 { return nil }
func (s *blockingVideoSource) Close() error                { return nil }
func (s *blockingVideoSource) Config() SourceConfig {
	return SourceConfig{Width: 4, Height: 4, FPS: 30, Format: PixelFormatI420}
}
func (s *blockingVideoSource) ReadFrame(ctx context.Context) (*VideoFrame, error) {
	select {
	case f := <-s.next:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestSourceAudioTrack_Settings(t *testing.T) {
	tone := NewToneSource(ToneConfig{SampleRate: 16000, Channels: 2})
	require.NoError(t, tone.Start(context.Background()))
	track := NewAudioSourceTrack("mic", "mic0", tone, true)
	defer track.Close()

	s := track.Settings()
	assert.Equal(t, 16000, s.SampleRate)
	assert.Equal(t, 2, s.ChannelCount)
	assert.Equal(t, AudioFormatS16, s.Format)
	assert.True(t, s.EchoCancellation)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	block, err := track.ReadSamples(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, block.Channels)
}

func TestFanout_DropsOldestForSlowSink(t *testing.T) {
	f := newFanout[int](2)
	ch, remove := f.add()
	defer remove()

	for i := range 5 {
		f.publish(i)
	}
	assert.Equal(t, 3, <-ch)
	assert.Equal(t, 4, <-ch)
}

func TestFanout_AddAfterClose(t *testing.T) {
	f := newFanout[int](1)
	f.close()
	ch, remove := f.add()
	remove()
	_, ok := <-ch
	assert.False(t, ok)
	f.publish(1)
}

func TestBaseTrack_EndOnce(t *testing.T) {
	track := NewBaseTrack("t", RTPCodecTypeVideo)

	assert.True(t, track.End())
	assert.False(t, track.End())
	assert.Equal(t, TrackStateEnded, track.State())

	select {
	case <-track.Done():
	default:
		t.Fatal("Done not closed")
	}
}

// relabeledTrack reports a kind that disagrees with the media it carries.
type relabeledTrack struct {
	VideoTrack
	kind RTPCodecType
}

func (t relabeledTrack) Kind() RTPCodecType { return t.kind }

func TestSimpleMediaStream_TracksByKind(t *testing.T) {
	video := NewVideoSourceTrack("camera", "cam0", newScriptedVideoSource(0))
	defer video.Close()
	tone := NewToneSource(ToneConfig{})
	require.NoError(t, tone.Start(context.Background()))
	audio := NewAudioSourceTrack("mic", "mic0", tone, false)
	defer audio.Close()

	stream := NewMediaStream()
	stream.AddTrack(video)
	stream.AddTrack(relabeledTrack{VideoTrack: video, kind: RTPCodecTypeAudio})
	stream.AddTrack(audio)

	assert.Len(t, stream.GetTracks(), 3)
	videos := stream.GetVideoTracks()
	require.Len(t, videos, 1)
	assert.Equal(t, RTPCodecTypeVideo, videos[0].Kind())
	audios := stream.GetAudioTracks()
	require.Len(t, audios, 1)
	assert.Equal(t, audio.ID(), audios[0].ID())
}
