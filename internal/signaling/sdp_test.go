package signaling

import (
	"testing"
)

func TestParseSDPWithRtpmap(t *testing.T) {
	body := "v=0\r\n" +
		"o=- 123 456 IN IP4 192.0.2.10\r\n" +
		"s=call\r\n" +
		"c=IN IP4 192.0.2.10\r\n" +
		"t=0 0\r\n" +
		"m=audio 49170 RTP/AVP 111 101\r\n" +
		"a=rtpmap:111 opus/48000/2\r\n" +
		"a=rtpmap:101 telephone-event/8000\r\n"

	info, err := parseSDP(body)
	if err != nil {
		t.Fatalf("parseSDP() error: %v", err)
	}
	if len(info.audio) != 1 {
		t.Fatalf("audio sections = %d; want 1", len(info.audio))
	}
	a := info.audio[0]
	if a.rtpPort != 49170 {
		t.Errorf("rtpPort = %d; want 49170", a.rtpPort)
	}
	if a.connIP.String() != "192.0.2.10" {
		t.Errorf("connIP = %s; want session-level 192.0.2.10", a.connIP)
	}
	if a.payloadType != 111 || a.codec != "OPUS" || a.clockRate != 48000 {
		t.Errorf("codec = %s pt=%d rate=%d; want OPUS pt=111 rate=48000", a.codec, a.payloadType, a.clockRate)
	}
}

func TestParseSDPStaticPayloadType(t *testing.T) {
	body := "v=0\r\n" +
		"c=IN IP4 198.51.100.5\r\n" +
		"m=audio 8000 RTP/AVP 0\r\n"

	info, err := parseSDP(body)
	if err != nil {
		t.Fatalf("parseSDP() error: %v", err)
	}
	a := info.audio[0]
	if a.codec != "PCMU" || a.clockRate != 8000 {
		t.Errorf("static PT 0 resolved to %s/%d; want PCMU/8000", a.codec, a.clockRate)
	}
}

func TestParseSDPMediaLevelConnection(t *testing.T) {
	body := "v=0\r\n" +
		"c=IN IP4 192.0.2.1\r\n" +
		"m=audio 6000 RTP/AVP 8\r\n" +
		"c=IN IP4 203.0.113.9\r\n"

	info, err := parseSDP(body)
	if err != nil {
		t.Fatalf("parseSDP() error: %v", err)
	}
	if info.audio[0].connIP.String() != "203.0.113.9" {
		t.Errorf("connIP = %s; want media-level 203.0.113.9", info.audio[0].connIP)
	}
}

func TestParseSDPConnectionPerSection(t *testing.T) {
	body := "v=0\r\n" +
		"c=IN IP4 192.0.2.1\r\n" +
		"m=audio 6000 RTP/AVP 0\r\n" +
		"c=IN IP4 203.0.113.9\r\n" +
		"m=video 7000 RTP/AVP 96\r\n" +
		"c=IN IP4 198.51.100.99\r\n" +
		"m=audio 8000 RTP/AVP 8\r\n"

	info, err := parseSDP(body)
	if err != nil {
		t.Fatalf("parseSDP() error: %v", err)
	}
	if len(info.audio) != 2 {
		t.Fatalf("audio sections = %d; want 2", len(info.audio))
	}
	// First section keeps its own c=; the video section's c= must not leak
	// into the second audio section, which falls back to the session level.
	if got := info.audio[0].connIP.String(); got != "203.0.113.9" {
		t.Errorf("first section connIP = %s; want 203.0.113.9", got)
	}
	if got := info.audio[1].connIP.String(); got != "192.0.2.1" {
		t.Errorf("second section connIP = %s; want session-level 192.0.2.1", got)
	}
}

func TestParseSDPSkipsVideoAndInactive(t *testing.T) {
	body := "v=0\r\n" +
		"c=IN IP4 192.0.2.1\r\n" +
		"m=video 5100 RTP/AVP 96\r\n" +
		"a=rtpmap:96 H264/90000\r\n" +
		"m=audio 5200 RTP/AVP 0\r\n" +
		"a=inactive\r\n" +
		"m=audio 5300 RTP/AVP 8\r\n"

	info, err := parseSDP(body)
	if err != nil {
		t.Fatalf("parseSDP() error: %v", err)
	}
	if len(info.audio) != 1 {
		t.Fatalf("audio sections = %d; want 1 (video and inactive skipped)", len(info.audio))
	}
	if info.audio[0].rtpPort != 5300 {
		t.Errorf("rtpPort = %d; want 5300", info.audio[0].rtpPort)
	}
}

func TestParseSDPErrors(t *testing.T) {
	if _, err := parseSDP("v=0\r\nm=audio 6000 RTP/AVP 0\r\n"); err == nil {
		t.Error("parseSDP() accepted body without connection address")
	}
	if _, err := parseSDP("v=0\r\nc=IN IP4 192.0.2.1\r\n"); err == nil {
		t.Error("parseSDP() accepted body without audio media")
	}
}
