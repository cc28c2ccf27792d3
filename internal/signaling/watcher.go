// Package signaling watches SIP traffic for SDP offer/answer exchanges and
// keeps the media-flow registry current. A completed INVITE / 200 OK pair
// registers the announced audio flows with their negotiated codec; BYE and
// CANCEL tear them down. Media matched through the registry bypasses the
// classifier's heuristics and gets an authoritative decoder choice.
package signaling

import (
	"strings"
	"time"

	"github.com/ghettovoice/gosip/sip"
	"github.com/ghettovoice/gosip/sip/parser"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"firestige.xyz/auris/internal/flow"
	"firestige.xyz/auris/internal/log"
	"firestige.xyz/auris/internal/metrics"
)

const (
	// Dialogs that never complete or never get a BYE age out of the
	// correlation cache.
	dialogTTL     = 4 * time.Hour
	cacheInterval = 10 * time.Minute
)

// dialog tracks one SIP call across the offer/answer exchange.
type dialog struct {
	callID string
	offer  *sdpInfo
	answer *sdpInfo
}

// Watcher consumes signaling datagrams handed over by the classifier.
// Single-consumer: the pipeline's signaling goroutine is the only caller of
// Handle.
type Watcher struct {
	parser   *parser.PacketParser
	registry *flow.Registry
	dialogs  *gocache.Cache
	logger   log.Logger
}

// NewWatcher creates a signaling watcher over the shared flow registry.
func NewWatcher(registry *flow.Registry) *Watcher {
	logger := log.GetLogger()
	return &Watcher{
		parser:   parser.NewPacketParser(&loggerAdapter{logger: logger.GetEntry().(*logrus.Entry)}),
		registry: registry,
		dialogs:  gocache.New(dialogTTL, cacheInterval),
		logger:   logger,
	}
}

// Handle processes one SIP datagram. Unparseable traffic on the signaling
// ports is normal (STUN, fragmented messages) and is dropped quietly.
func (w *Watcher) Handle(payload []byte) {
	msg, err := w.parser.ParseMessage(payload)
	if err != nil {
		if w.logger.IsDebugEnabled() {
			w.logger.WithError(err).Debugf("unparseable signaling datagram (%d bytes)", len(payload))
		}
		return
	}

	callID := callIDOf(msg)
	if callID == "" {
		return
	}

	if req, ok := msg.(sip.Request); ok {
		w.handleRequest(req, callID)
		return
	}
	if res, ok := msg.(sip.Response); ok {
		w.handleResponse(res, callID)
	}
}

func (w *Watcher) handleRequest(req sip.Request, callID string) {
	switch req.Method() {
	case sip.INVITE:
		sdp, err := parseSDP(req.Body())
		if err != nil {
			return
		}
		w.dialogs.Set(callID, &dialog{callID: callID, offer: sdp}, dialogTTL)

	case sip.BYE, sip.CANCEL:
		w.dialogs.Delete(callID)
		if n := w.registry.DeleteByCallID(callID); n > 0 {
			metrics.FlowRegistrySize.Set(float64(w.registry.Count()))
			w.logger.Infof("call %s ended, removed %d flows", callID, n)
		}
	}
}

func (w *Watcher) handleResponse(res sip.Response, callID string) {
	if res.StatusCode() != 200 || !isInviteResponse(res) {
		return
	}

	cached, found := w.dialogs.Get(callID)
	if !found {
		return
	}
	d := cached.(*dialog)

	sdp, err := parseSDP(res.Body())
	if err != nil {
		return
	}
	d.answer = sdp
	w.registerFlows(d)
}

// registerFlows registers both directions of every audio stream the
// offer/answer pair agreed on. Streams are matched by position; the answer
// may accept fewer streams than offered.
func (w *Watcher) registerFlows(d *dialog) {
	n := len(d.offer.audio)
	if len(d.answer.audio) < n {
		n = len(d.answer.audio)
	}

	now := time.Now()
	registered := 0
	for i := 0; i < n; i++ {
		offer := d.offer.audio[i]
		answer := d.answer.audio[i]

		// The answer's codec selection is authoritative.
		codec := answer.codec
		clockRate := answer.clockRate
		if codec == "" {
			codec = offer.codec
			clockRate = offer.clockRate
		}

		mf := flow.MediaFlow{
			CallID:       d.callID,
			Codec:        codec,
			PayloadType:  answer.payloadType,
			ClockRate:    clockRate,
			RegisteredAt: now,
		}

		// Offer side receives on its announced port, answer side on its own.
		w.registry.Set(flow.Key{Addr: offer.connIP, Port: offer.rtpPort}, mf)
		w.registry.Set(flow.Key{Addr: answer.connIP, Port: answer.rtpPort}, mf)
		registered += 2
	}

	if registered > 0 {
		metrics.FlowRegistrySize.Set(float64(w.registry.Count()))
		w.logger.Infof("call %s established, registered %d flows codec=%s",
			d.callID, registered, d.answer.audio[0].codec)
	}
}

func callIDOf(msg sip.Message) string {
	id, ok := msg.CallID()
	if !ok || id == nil {
		return ""
	}
	return id.Value()
}

// isInviteResponse reports whether the response answers an INVITE, per its
// CSeq method.
func isInviteResponse(res sip.Response) bool {
	cseq, ok := res.CSeq()
	if !ok || cseq == nil {
		return false
	}
	return strings.Contains(strings.ToUpper(cseq.Value()), "INVITE")
}
