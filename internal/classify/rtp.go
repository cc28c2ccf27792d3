package classify

import (
	"encoding/binary"
	"fmt"
)

// RTP fixed header (RFC 3550 §5.1) and RTCP PT range (RFC 5761).
const (
	rtpMinLength       = 12
	rtcpPayloadTypeMin = 200
	rtcpPayloadTypeMax = 209
)

// rtpHeader is the parsed fixed header of one RTP datagram.
type rtpHeader struct {
	PayloadType uint8
	Marker      bool
	Seq         uint16
	Timestamp   uint32
	SSRC        uint32
	// PayloadOffset is where the encoded media starts (after CSRCs and
	// any header extension).
	PayloadOffset int
	// PayloadLen excludes trailing padding.
	PayloadLen int
}

// parseRTP parses the RTP fixed header, CSRC list, extension, and padding.
// Returns an error for anything that is not a structurally valid version-2
// RTP datagram; callers treat that as a silent drop, not a failure.
func parseRTP(b []byte) (rtpHeader, error) {
	var h rtpHeader

	if len(b) < rtpMinLength {
		return h, fmt.Errorf("rtp: datagram too short (%d bytes)", len(b))
	}

	// Byte 0: V(2) P(1) X(1) CC(4)
	version := (b[0] >> 6) & 0x3
	if version != 2 {
		return h, fmt.Errorf("rtp: unexpected version %d", version)
	}
	hasPadding := (b[0]>>5)&0x1 == 1
	hasExtension := (b[0]>>4)&0x1 == 1
	csrcCount := int(b[0] & 0x0F)

	// Byte 1: M(1) PT(7)
	h.Marker = (b[1]>>7)&0x1 == 1
	h.PayloadType = b[1] & 0x7F

	h.Seq = binary.BigEndian.Uint16(b[2:4])
	h.Timestamp = binary.BigEndian.Uint32(b[4:8])
	h.SSRC = binary.BigEndian.Uint32(b[8:12])

	offset := rtpMinLength + 4*csrcCount
	if len(b) < offset {
		return h, fmt.Errorf("rtp: truncated CSRC list")
	}

	if hasExtension {
		if len(b) < offset+4 {
			return h, fmt.Errorf("rtp: truncated header extension")
		}
		extWords := int(binary.BigEndian.Uint16(b[offset+2 : offset+4]))
		offset += 4 + 4*extWords
		if len(b) < offset {
			return h, fmt.Errorf("rtp: header extension exceeds datagram")
		}
	}

	end := len(b)
	if hasPadding {
		pad := int(b[end-1])
		if pad == 0 || offset+pad > end {
			return h, fmt.Errorf("rtp: invalid padding length %d", pad)
		}
		end -= pad
	}

	if end < offset {
		return h, fmt.Errorf("rtp: empty payload")
	}

	h.PayloadOffset = offset
	h.PayloadLen = end - offset
	return h, nil
}

// isRTCP reports whether the datagram carries an RTCP packet type.
// RTCP shares the version field with RTP but uses PT 200-209 in the full
// second byte (RFC 3550 §6.4).
func isRTCP(b []byte) bool {
	if len(b) < 2 {
		return false
	}
	return b[1] >= rtcpPayloadTypeMin && b[1] <= rtcpPayloadTypeMax
}
