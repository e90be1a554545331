package webrtc

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
)

func TestIsKeyframe(t *testing.T) {
	tests := []struct {
		name    string
		mime    string
		payload []byte
		want    bool
	}{
		{"vp8 keyframe, short descriptor", webrtc.MimeTypeVP8, []byte{0x10, 0x10, 0x02, 0x00}, true},
		{"vp8 interframe", webrtc.MimeTypeVP8, []byte{0x10, 0x11, 0x02, 0x00}, false},
		{"vp8 keyframe, 15-bit picture id", webrtc.MimeTypeVP8, []byte{0x90, 0x80, 0x81, 0x23, 0x10}, true},
		{"vp8 keyframe, picture id and tl0", webrtc.MimeTypeVP8, []byte{0x90, 0xc0, 0x05, 0x01, 0x10}, true},
		{"vp8 continuation packet", webrtc.MimeTypeVP8, []byte{0x00, 0x10}, false},
		{"vp8 later partition", webrtc.MimeTypeVP8, []byte{0x11, 0x10}, false},
		{"vp8 truncated descriptor", webrtc.MimeTypeVP8, []byte{0x90}, false},
		{"h264 idr", webrtc.MimeTypeH264, []byte{0x65, 0x88}, true},
		{"h264 non-idr slice", webrtc.MimeTypeH264, []byte{0x41, 0x9a}, false},
		{"h264 stap-a with sps", webrtc.MimeTypeH264, []byte{0x78, 0x00, 0x02, 0x67, 0x42, 0x00, 0x02, 0x68, 0xce}, true},
		{"h264 stap-a without idr", webrtc.MimeTypeH264, []byte{0x78, 0x00, 0x02, 0x41, 0x9a}, false},
		{"h264 fu-a idr start", webrtc.MimeTypeH264, []byte{0x7c, 0x85, 0x88}, true},
		{"h264 fu-a idr middle", webrtc.MimeTypeH264, []byte{0x7c, 0x05, 0x88}, false},
		{"opus is never a keyframe", webrtc.MimeTypeOpus, []byte{0xf8, 0xff, 0xfe}, false},
		{"empty payload", webrtc.MimeTypeVP8, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isKeyframe(tt.mime, &rtp.Packet{Payload: tt.payload}))
		})
	}
}

func TestSyntheticVP8FrameIsKeyframe(t *testing.T) {
	// the VP8 payloader prefixes a one-byte descriptor with S set
	payload := append([]byte{0x10}, syntheticVP8...)
	assert.True(t, isKeyframe(webrtc.MimeTypeVP8, &rtp.Packet{Payload: payload}))
}
