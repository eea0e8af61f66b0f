package webrtc

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/sirupsen/logrus"

	"github.com/open-beagle/bdwind-framerelease/internal/config"
	"github.com/open-beagle/bdwind-framerelease/internal/scheduler"
)

// TrackSink 将调度器释放的帧写入 WebRTC 轨道
type TrackSink struct {
	track  *webrtc.TrackLocalStaticSample
	logger *logrus.Entry

	framesSent atomic.Int64
	bytesSent  atomic.Int64
}

var _ scheduler.Sink = (*TrackSink)(nil)

// NewTrackSink 创建视频轨道输出
func NewTrackSink(codec, trackID, streamID string) (*TrackSink, error) {
	mimeType, err := videoMimeType(codec)
	if err != nil {
		return nil, err
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mimeType},
		trackID,
		streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create video track: %w", err)
	}

	return &TrackSink{
		track:  track,
		logger: config.GetLoggerWithPrefix("webrtc-track").WithField("track", trackID),
	}, nil
}

// Track 底层轨道，用于添加到 PeerConnection
func (s *TrackSink) Track() *webrtc.TrackLocalStaticSample {
	return s.track
}

// MimeType 轨道编码
func (s *TrackSink) MimeType() string {
	return s.track.Codec().MimeType
}

// WriteFrame 实现 scheduler.Sink
func (s *TrackSink) WriteFrame(frame scheduler.Frame, duration time.Duration) error {
	sample := media.Sample{
		Data:     frame.Data,
		Duration: duration,
	}

	if err := s.track.WriteSample(sample); err != nil {
		s.logger.Warnf("Failed to write video sample to track %s: %v", s.track.ID(), err)
		return fmt.Errorf("failed to write video sample: %w", err)
	}

	s.framesSent.Add(1)
	s.bytesSent.Add(int64(len(frame.Data)))
	return nil
}

// FramesSent 已写入帧数
func (s *TrackSink) FramesSent() int64 {
	return s.framesSent.Load()
}

// BytesSent 已写入字节数
func (s *TrackSink) BytesSent() int64 {
	return s.bytesSent.Load()
}

// videoMimeType 根据编码器类型获取视频MIME类型
func videoMimeType(codec string) (string, error) {
	switch codec {
	case "h264":
		return webrtc.MimeTypeH264, nil
	case "vp8":
		return webrtc.MimeTypeVP8, nil
	case "vp9":
		return webrtc.MimeTypeVP9, nil
	case "av1":
		return webrtc.MimeTypeAV1, nil
	default:
		return "", fmt.Errorf("unsupported video codec: %s", codec)
	}
}
