package classify

import (
	"bytes"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/auris/internal/config"
	"firestige.xyz/auris/internal/core"
	"firestige.xyz/auris/internal/flow"
)

func testSignature() config.SignatureConfig {
	return config.SignatureConfig{
		PortMin: 10000,
		PortMax: 20000,
	}
}

func testSignaling() config.SignalingConfig {
	return config.SignalingConfig{
		Enabled: true,
		Ports:   []uint16{5060},
	}
}

// buildFrame serialises an Ethernet/IPv4/UDP frame around the given payload.
func buildFrame(t *testing.T, srcIP, dstIP string, srcPort, dstPort uint16, payload []byte) core.RawFrame {
	t.Helper()

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.ParseIP(srcIP),
		DstIP:    net.ParseIP(dstIP),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(srcPort),
		DstPort: layers.UDPPort(dstPort),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("checksum setup failed: %v", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		t.Fatalf("frame serialisation failed: %v", err)
	}

	return core.RawFrame{Data: buf.Bytes(), Timestamp: time.Now()}
}

func TestClassifyAdmitsHeuristicRTP(t *testing.T) {
	c := New(layers.LinkTypeEthernet, testSignature(), testSignaling(), flow.NewRegistry())

	rtp := makeRTP(0, 42, 8000, 0xCAFE, nil)
	rtp = append(rtp, 0x55, 0x55)
	res := c.Classify(buildFrame(t, "192.0.2.1", "192.0.2.2", 30000, 16000, rtp))

	if res.Verdict != VerdictAudio {
		t.Fatalf("Verdict = %v; want VerdictAudio", res.Verdict)
	}
	if res.Key.SSRC != 0xCAFE {
		t.Errorf("Key.SSRC = %X; want CAFE", res.Key.SSRC)
	}
	if res.Key.DstPort != 16000 {
		t.Errorf("Key.DstPort = %d; want 16000", res.Key.DstPort)
	}
	if res.Unit.Seq != 42 || len(res.Unit.Payload) != 2 {
		t.Errorf("Unit = seq %d payload %d bytes; want seq 42, 2 bytes", res.Unit.Seq, len(res.Unit.Payload))
	}
	if res.Signed {
		t.Error("Signed = true for heuristic-only admission")
	}
}

func TestClassifyRoutesSignalingPorts(t *testing.T) {
	c := New(layers.LinkTypeEthernet, testSignature(), testSignaling(), flow.NewRegistry())

	sip := []byte("INVITE sip:bob@example.com SIP/2.0\r\n\r\n")
	res := c.Classify(buildFrame(t, "192.0.2.1", "192.0.2.2", 5060, 5060, sip))

	if res.Verdict != VerdictSignaling {
		t.Fatalf("Verdict = %v; want VerdictSignaling", res.Verdict)
	}
	if string(res.Payload) != string(sip) {
		t.Error("signaling payload not passed through intact")
	}
	if res.DstPort != 5060 {
		t.Errorf("DstPort = %d; want 5060", res.DstPort)
	}
}

func TestSignalingPayloadNotStale(t *testing.T) {
	c := New(layers.LinkTypeEthernet, testSignature(), testSignaling(), flow.NewRegistry())

	// An audio frame first, so any decode-target state from the previous
	// packet is populated before the SIP datagram arrives.
	rtp := append(makeRTP(0, 100, 16000, 0xCAFE, nil), bytes.Repeat([]byte{0xAA}, 160)...)
	c.Classify(buildFrame(t, "192.0.2.1", "192.0.2.2", 30000, 16000, rtp))

	sip := []byte("BYE sip:bob@example.com SIP/2.0\r\n\r\n")
	res := c.Classify(buildFrame(t, "192.0.2.1", "192.0.2.2", 5060, 5060, sip))

	if res.Verdict != VerdictSignaling {
		t.Fatalf("Verdict = %v; want VerdictSignaling", res.Verdict)
	}
	if !bytes.Equal(res.Payload, sip) {
		t.Errorf("Payload = %q; want the SIP datagram, not leftover bytes", res.Payload)
	}
}

func TestClassifyDropsRTCP(t *testing.T) {
	c := New(layers.LinkTypeEthernet, testSignature(), testSignaling(), flow.NewRegistry())

	rtcp := []byte{0x80, 200, 0x00, 0x01, 0, 0, 0, 0}
	res := c.Classify(buildFrame(t, "192.0.2.1", "192.0.2.2", 30001, 16001, rtcp))

	if res.Verdict != VerdictDrop {
		t.Fatalf("Verdict = %v; want VerdictDrop for RTCP", res.Verdict)
	}
}

func TestClassifyDropsOutOfRangePort(t *testing.T) {
	c := New(layers.LinkTypeEthernet, testSignature(), testSignaling(), flow.NewRegistry())

	rtp := append(makeRTP(0, 1, 0, 1, nil), 0x55)
	res := c.Classify(buildFrame(t, "192.0.2.1", "192.0.2.2", 30000, 40000, rtp))

	if res.Verdict != VerdictDrop {
		t.Fatalf("Verdict = %v; want VerdictDrop for port outside signature range", res.Verdict)
	}
}

func TestClassifyDropsUnadmittedPayloadType(t *testing.T) {
	sig := testSignature()
	sig.PayloadTypes = []int{0, 8}
	c := New(layers.LinkTypeEthernet, sig, testSignaling(), flow.NewRegistry())

	rtp := append(makeRTP(96, 1, 0, 1, nil), 0x55)
	res := c.Classify(buildFrame(t, "192.0.2.1", "192.0.2.2", 30000, 16000, rtp))

	if res.Verdict != VerdictDrop {
		t.Fatalf("Verdict = %v; want VerdictDrop for PT outside admit list", res.Verdict)
	}
}

func TestClassifyRegistryOverridesHeuristics(t *testing.T) {
	registry := flow.NewRegistry()
	sig := testSignature()
	sig.PayloadTypes = []int{0} // PT 111 not admitted heuristically
	c := New(layers.LinkTypeEthernet, sig, testSignaling(), registry)

	dst := netip.MustParseAddr("192.0.2.2")
	registry.Set(flow.Key{Addr: dst, Port: 40000}, flow.MediaFlow{
		CallID:      "call-1",
		Codec:       "OPUS",
		PayloadType: 111,
		ClockRate:   48000,
	})

	// Off-range port and off-list payload type, but the flow is signaled.
	rtp := append(makeRTP(111, 1, 0, 1, nil), 0x55)
	res := c.Classify(buildFrame(t, "192.0.2.1", "192.0.2.2", 30000, 40000, rtp))

	if res.Verdict != VerdictAudio {
		t.Fatalf("Verdict = %v; want VerdictAudio for registered flow", res.Verdict)
	}
	if !res.Signed || res.Flow.Codec != "OPUS" {
		t.Errorf("Flow = %+v signed=%v; want OPUS signed flow", res.Flow, res.Signed)
	}
}

func TestClassifyRequireSignaling(t *testing.T) {
	sig := testSignature()
	sig.RequireSignaling = true
	c := New(layers.LinkTypeEthernet, sig, testSignaling(), flow.NewRegistry())

	rtp := append(makeRTP(0, 1, 0, 1, nil), 0x55)
	res := c.Classify(buildFrame(t, "192.0.2.1", "192.0.2.2", 30000, 16000, rtp))

	if res.Verdict != VerdictDrop {
		t.Fatalf("Verdict = %v; want VerdictDrop when signaling is required", res.Verdict)
	}
}

func TestClassifyDropsNonUDP(t *testing.T) {
	c := New(layers.LinkTypeEthernet, testSignature(), testSignaling(), flow.NewRegistry())

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.ParseIP("192.0.2.1"),
		DstIP:    net.ParseIP("192.0.2.2"),
	}
	tcp := &layers.TCP{SrcPort: 1234, DstPort: 80}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("checksum setup failed: %v", err)
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp); err != nil {
		t.Fatalf("frame serialisation failed: %v", err)
	}

	res := c.Classify(core.RawFrame{Data: buf.Bytes(), Timestamp: time.Now()})
	if res.Verdict != VerdictDrop {
		t.Fatalf("Verdict = %v; want VerdictDrop for TCP", res.Verdict)
	}

	stats := c.Stats()
	if stats.Dropped == 0 {
		t.Error("Stats().Dropped = 0; want at least 1")
	}
}
