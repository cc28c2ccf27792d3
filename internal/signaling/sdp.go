package signaling

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// sdpInfo is the subset of an SDP body the flow registry needs.
type sdpInfo struct {
	audio []audioMedia
}

// audioMedia is one m=audio line with its codec attributes.
type audioMedia struct {
	// connIP is the section's connection address: its own c= line when
	// present, otherwise the session-level one.
	connIP netip.Addr
	// rtpPort is the announced RTP receive port.
	rtpPort uint16
	// payloadType and codec come from the first a=rtpmap; static payload
	// types without an rtpmap fall back to well-known names.
	payloadType uint8
	codec       string
	clockRate   int
	inactive    bool
}

// parseSDP extracts the audio media sections from an SDP body. Non-audio
// sections are skipped. Connection addresses are tracked per section: a c=
// inside one media block applies to that block alone, never to its siblings
// or to the session-level fallback.
func parseSDP(body string) (*sdpInfo, error) {
	info := &sdpInfo{}
	var sessionIP netip.Addr
	var cur *audioMedia
	inMedia := false

	flush := func() {
		if cur != nil && !cur.inactive {
			info.audio = append(info.audio, *cur)
		}
		cur = nil
	}

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 2 || line[1] != '=' {
			continue
		}
		value := strings.TrimSpace(line[2:])

		switch line[0] {
		case 'c':
			// c=IN IP4 192.0.2.10
			fields := strings.Fields(value)
			if len(fields) == 3 {
				if ip, err := netip.ParseAddr(fields[2]); err == nil {
					switch {
					case !inMedia:
						sessionIP = ip
					case cur != nil:
						cur.connIP = ip
					}
					// A c= inside a non-audio section is dropped with it.
				}
			}

		case 'm':
			flush()
			inMedia = true
			// m=audio 49170 RTP/AVP 0 101
			fields := strings.Fields(value)
			if len(fields) < 4 || fields[0] != "audio" {
				continue
			}
			port, err := strconv.ParseUint(fields[1], 10, 16)
			if err != nil || port == 0 {
				continue
			}
			pt, err := strconv.ParseUint(fields[3], 10, 7)
			if err != nil {
				continue
			}
			cur = &audioMedia{
				rtpPort:     uint16(port),
				payloadType: uint8(pt),
			}
			cur.codec, cur.clockRate = staticPayloadType(cur.payloadType)

		case 'a':
			if cur == nil {
				continue
			}
			// a=rtpmap:111 opus/48000/2
			if rest, ok := strings.CutPrefix(value, "rtpmap:"); ok {
				fields := strings.SplitN(rest, " ", 2)
				if len(fields) != 2 {
					continue
				}
				pt, err := strconv.ParseUint(fields[0], 10, 7)
				if err != nil || uint8(pt) != cur.payloadType {
					continue
				}
				enc := strings.Split(fields[1], "/")
				cur.codec = strings.ToUpper(enc[0])
				if len(enc) > 1 {
					if rate, err := strconv.Atoi(enc[1]); err == nil {
						cur.clockRate = rate
					}
				}
				continue
			}
			if value == "inactive" {
				cur.inactive = true
			}
		}
	}
	flush()

	kept := info.audio[:0]
	for _, a := range info.audio {
		if !a.connIP.IsValid() {
			a.connIP = sessionIP
		}
		if a.connIP.IsValid() {
			kept = append(kept, a)
		}
	}
	info.audio = kept

	if len(info.audio) == 0 {
		return nil, fmt.Errorf("sdp: no audio media with a connection address")
	}
	return info, nil
}

// staticPayloadType returns the well-known codec name and clock rate for
// static RTP payload type assignments.
func staticPayloadType(pt uint8) (string, int) {
	switch pt {
	case 0:
		return "PCMU", 8000
	case 8:
		return "PCMA", 8000
	case 9:
		return "G722", 8000
	default:
		return "", 0
	}
}
