// Package classify parses captured frames and extracts audio payload units.
//
// The classifier is a pure per-frame function: it either produces a
// (StreamKey, PayloadUnit) pair for an admitted audio datagram, hands a
// signaling datagram to the SIP watcher, or drops the frame with a counted
// reason. Malformed traffic is the expected operating condition and is never
// surfaced as an error.
package classify

import (
	"net/netip"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/auris/internal/config"
	"firestige.xyz/auris/internal/core"
	"firestige.xyz/auris/internal/flow"
	"firestige.xyz/auris/internal/metrics"
)

// Verdict discriminates classification outcomes.
type Verdict int

const (
	VerdictDrop Verdict = iota
	VerdictAudio
	VerdictSignaling
)

// Result is the outcome of classifying one frame.
type Result struct {
	Verdict Verdict

	// Audio fields, valid when Verdict == VerdictAudio.
	Key  core.StreamKey
	Unit core.PayloadUnit
	// Flow carries the signaling context when the flow registry matched.
	Flow   flow.MediaFlow
	Signed bool

	// Signaling fields, valid when Verdict == VerdictSignaling.
	Payload []byte
	SrcIP   netip.Addr
	SrcPort uint16
	DstIP   netip.Addr
	DstPort uint16
}

// Stats are cumulative classification counters.
type Stats struct {
	Seen      uint64
	Audio     uint64
	Signaling uint64
	Dropped   uint64
}

// Classifier extracts audio payload units from raw frames.
// Not safe for concurrent use: the gopacket layer structs are reused per
// call. The capture loop is the sole caller.
type Classifier struct {
	parser  *gopacket.DecodingLayerParser
	eth     layers.Ethernet
	ip4     layers.IPv4
	ip6     layers.IPv6
	udp     layers.UDP
	payload gopacket.Payload
	decoded []gopacket.LayerType

	sig            config.SignatureConfig
	admitted       [128]bool
	anyPayloadType bool
	sigPorts       map[uint16]bool
	registry       *flow.Registry

	seen      atomic.Uint64
	audio     atomic.Uint64
	signaling atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a classifier for the given link type.
func New(link layers.LinkType, sig config.SignatureConfig, signaling config.SignalingConfig, registry *flow.Registry) *Classifier {
	c := &Classifier{
		sig:      sig,
		sigPorts: make(map[uint16]bool),
		registry: registry,
	}

	first := gopacket.LayerType(layers.LayerTypeEthernet)
	if link == layers.LinkTypeRaw || link == layers.LinkTypeIPv4 {
		first = layers.LayerTypeIPv4
	}
	c.parser = gopacket.NewDecodingLayerParser(
		first,
		&c.eth,
		&c.ip4,
		&c.ip6,
		&c.udp,
		&c.payload,
	)
	c.parser.IgnoreUnsupported = true

	if len(sig.PayloadTypes) == 0 {
		// Default policy: classic audio payload types plus the dynamic range.
		for pt := 0; pt <= 34; pt++ {
			c.admitted[pt] = true
		}
		for pt := 96; pt <= 127; pt++ {
			c.admitted[pt] = true
		}
	} else {
		for _, pt := range sig.PayloadTypes {
			c.admitted[pt] = true
		}
	}

	if signaling.Enabled {
		for _, p := range signaling.Ports {
			c.sigPorts[p] = true
		}
	}

	return c
}

// Classify examines one frame. It never returns an error: undecodable or
// unwanted frames yield VerdictDrop with the reason counted.
func (c *Classifier) Classify(frame core.RawFrame) Result {
	c.seen.Add(1)
	metrics.FramesSeenTotal.Inc()

	c.decoded = c.decoded[:0]
	if err := c.parser.DecodeLayers(frame.Data, &c.decoded); err != nil {
		// DecodeLayers errors when it hits a layer it cannot handle; the
		// layers decoded so far are still usable. Only a frame with no
		// usable transport below is dropped.
		if !c.hasUDP() {
			return c.drop("decode")
		}
	}

	var srcIP, dstIP netip.Addr
	haveIP := false
	for _, lt := range c.decoded {
		switch lt {
		case layers.LayerTypeIPv4:
			srcIP, _ = netip.AddrFromSlice(c.ip4.SrcIP)
			dstIP, _ = netip.AddrFromSlice(c.ip4.DstIP)
			haveIP = true
		case layers.LayerTypeIPv6:
			srcIP, _ = netip.AddrFromSlice(c.ip6.SrcIP)
			dstIP, _ = netip.AddrFromSlice(c.ip6.DstIP)
			haveIP = true
		}
	}
	if !haveIP || !c.hasUDP() {
		return c.drop("not_udp")
	}

	srcPort := uint16(c.udp.SrcPort)
	dstPort := uint16(c.udp.DstPort)
	// Take the datagram from the UDP layer itself. The separate Payload
	// decode target stays empty whenever UDP maps the port to a layer type
	// without a registered decoder (gopacket does this for 5060/SIP), which
	// would hand the watcher nothing.
	payload := c.udp.Payload

	if c.sigPorts[srcPort] || c.sigPorts[dstPort] {
		c.signaling.Add(1)
		return Result{
			Verdict: VerdictSignaling,
			Payload: payload,
			SrcIP:   srcIP,
			SrcPort: srcPort,
			DstIP:   dstIP,
			DstPort: dstPort,
		}
	}

	if isRTCP(payload) {
		return c.drop("rtcp")
	}

	hdr, err := parseRTP(payload)
	if err != nil {
		return c.drop("not_rtp")
	}

	// Registry hit admits the flow regardless of heuristics and carries
	// the negotiated codec for decoder selection.
	mediaFlow, signed := c.registry.Get(flow.Key{Addr: dstIP, Port: dstPort})

	if !signed {
		if c.sig.RequireSignaling {
			return c.drop("unsignaled")
		}
		if dstPort < c.sig.PortMin || dstPort > c.sig.PortMax {
			return c.drop("port_range")
		}
		if !c.admitted[hdr.PayloadType] {
			return c.drop("payload_type")
		}
	}

	c.audio.Add(1)
	return Result{
		Verdict: VerdictAudio,
		Key: core.StreamKey{
			SrcIP:   srcIP,
			DstIP:   dstIP,
			SrcPort: srcPort,
			DstPort: dstPort,
			SSRC:    hdr.SSRC,
		},
		Unit: core.PayloadUnit{
			Seq:         hdr.Seq,
			Timestamp:   hdr.Timestamp,
			PayloadType: hdr.PayloadType,
			Marker:      hdr.Marker,
			Payload:     payload[hdr.PayloadOffset : hdr.PayloadOffset+hdr.PayloadLen],
			ArrivedAt:   frame.Timestamp,
		},
		Flow:   mediaFlow,
		Signed: signed,
	}
}

func (c *Classifier) hasUDP() bool {
	for _, lt := range c.decoded {
		if lt == layers.LayerTypeUDP {
			return true
		}
	}
	return false
}

func (c *Classifier) drop(reason string) Result {
	c.dropped.Add(1)
	metrics.FramesDroppedTotal.WithLabelValues(reason).Inc()
	return Result{Verdict: VerdictDrop}
}

// Stats returns a snapshot of the classification counters.
func (c *Classifier) Stats() Stats {
	return Stats{
		Seen:      c.seen.Load(),
		Audio:     c.audio.Load(),
		Signaling: c.signaling.Load(),
		Dropped:   c.dropped.Load(),
	}
}
