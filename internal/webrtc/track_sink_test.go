package webrtc

import (
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-beagle/bdwind-framerelease/internal/scheduler"
)

func TestVideoMimeType(t *testing.T) {
	tests := map[string]string{
		"h264": webrtc.MimeTypeH264,
		"vp8":  webrtc.MimeTypeVP8,
		"vp9":  webrtc.MimeTypeVP9,
		"av1":  webrtc.MimeTypeAV1,
	}
	for codec, want := range tests {
		got, err := videoMimeType(codec)
		require.NoError(t, err, codec)
		assert.Equal(t, want, got)
	}

	_, err := videoMimeType("mjpeg")
	assert.Error(t, err)
}

func TestTrackSink_WriteFrame(t *testing.T) {
	sink, err := NewTrackSink("vp8", "video", "stream-1")
	require.NoError(t, err)
	assert.Equal(t, webrtc.MimeTypeVP8, sink.MimeType())
	assert.Equal(t, "video", sink.Track().ID())
	assert.Equal(t, "stream-1", sink.Track().StreamID())

	// 未绑定 PeerConnection 时写入被静默接受
	err = sink.WriteFrame(scheduler.Frame{PresentationTimeUs: 0, Data: []byte{1, 2, 3}}, 33*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sink.FramesSent())
	assert.Equal(t, int64(3), sink.BytesSent())
}

func TestNewTrackSink_UnsupportedCodec(t *testing.T) {
	_, err := NewTrackSink("theora", "video", "stream-1")
	assert.Error(t, err)
}
