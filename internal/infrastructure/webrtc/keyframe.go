package webrtc

import (
	"strings"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// isKeyframe reports whether pkt starts a keyframe for the given codec.
// Unknown codecs never report keyframes.
func isKeyframe(mimeType string, pkt *rtp.Packet) bool {
	if pkt == nil || len(pkt.Payload) == 0 {
		return false
	}
	switch {
	case strings.EqualFold(mimeType, webrtc.MimeTypeVP8):
		return isVP8Keyframe(pkt.Payload)
	case strings.EqualFold(mimeType, webrtc.MimeTypeH264):
		return isH264Keyframe(pkt.Payload)
	}
	return false
}

// isVP8Keyframe parses the payload descriptor (RFC 7741 section 4.2) and
// checks the P bit of the first partition's frame tag.
func isVP8Keyframe(p []byte) bool {
	i := 1
	if p[0]&0x80 != 0 {
		if len(p) < 2 {
			return false
		}
		ext := p[1]
		i++
		if ext&0x80 != 0 {
			if len(p) <= i {
				return false
			}
			if p[i]&0x80 != 0 {
				i += 2
			} else {
				i++
			}
		}
		if ext&0x40 != 0 {
			i++
		}
		if ext&0x30 != 0 {
			i++
		}
	}
	// only the start of partition 0 carries the frame tag
	if p[0]&0x10 == 0 || p[0]&0x0f != 0 {
		return false
	}
	if len(p) <= i {
		return false
	}
	return p[i]&0x01 == 0
}

const (
	naluIDR   = 5
	naluSPS   = 7
	naluSTAPA = 24
	naluFUA   = 28
)

func isH264Keyframe(p []byte) bool {
	switch p[0] & 0x1f {
	case naluIDR, naluSPS:
		return true
	case naluSTAPA:
		for i := 1; i+2 < len(p); {
			size := int(p[i])<<8 | int(p[i+1])
			i += 2
			if size == 0 || i+size > len(p) {
				return false
			}
			if t := p[i] & 0x1f; t == naluIDR || t == naluSPS {
				return true
			}
			i += size
		}
	case naluFUA:
		if len(p) < 2 {
			return false
		}
		start := p[1]&0x80 != 0
		return start && p[1]&0x1f == naluIDR
	}
	return false
}
