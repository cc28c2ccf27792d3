// Package flow implements the shared media-flow registry.
//
// The signaling watcher registers flows it learns from SDP offer/answer
// exchange; the classifier consults the registry on its hot path to admit
// traffic and pick the right decoder. Get is lock-cheap (RLock); structural
// mutation comes only from the signaling side.
package flow

import (
	"net/netip"
	"sync"
	"time"
)

// Key identifies a media flow by destination endpoint. RTP flows are
// registered by the receiving side announced in SDP, so only the destination
// is reliable before the first packet arrives.
type Key struct {
	Addr netip.Addr
	Port uint16
}

// MediaFlow is the signaling-derived context for one announced audio flow.
type MediaFlow struct {
	CallID string
	// Codec is the SDP rtpmap encoding name for the announced payload
	// type, upper-cased (e.g. "PCMU", "OPUS").
	Codec string
	// PayloadType is the RTP payload type negotiated for Codec.
	PayloadType  uint8
	ClockRate    int
	RegisteredAt time.Time
}

// Registry is a concurrency-safe Key → MediaFlow table.
type Registry struct {
	mu    sync.RWMutex
	flows map[Key]MediaFlow
}

func NewRegistry() *Registry {
	return &Registry{flows: make(map[Key]MediaFlow)}
}

func (r *Registry) Get(key Key) (MediaFlow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.flows[key]
	return f, ok
}

// Set registers a flow. Re-registration of the same key is idempotent and
// refreshes the context (re-INVITE changes codec or port).
func (r *Registry) Set(key Key, f MediaFlow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows[key] = f
}

func (r *Registry) Delete(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flows, key)
}

// DeleteByCallID removes every flow registered under the given call.
func (r *Registry) DeleteByCallID(callID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, f := range r.flows {
		if f.CallID == callID {
			delete(r.flows, k)
			n++
		}
	}
	return n
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.flows)
}
