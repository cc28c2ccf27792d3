// Package pipeline wires capture, classification, session reconstruction
// and playback into one running unit.
//
// Two clock domains meet here. The capture side runs at network pace: one
// goroutine reads frames, one classifies and dispatches, one consumes
// signaling. The playback side runs at audio pace: every session emits
// decoded blocks on its own frame clock, and the mixer loop gathers at most
// one block per session per tick, mixes, and writes to the sink, which
// blocks at device pace. Bounded channels join the two domains so a slow
// device sheds audio instead of stalling capture.
package pipeline

import (
	"context"
	"errors"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"firestige.xyz/auris/internal/classify"
	"firestige.xyz/auris/internal/codec"
	"firestige.xyz/auris/internal/config"
	"firestige.xyz/auris/internal/core"
	"firestige.xyz/auris/internal/flow"
	"firestige.xyz/auris/internal/log"
	"firestige.xyz/auris/internal/session"
	"firestige.xyz/auris/internal/signaling"
	"firestige.xyz/auris/internal/sink"
	"firestige.xyz/auris/internal/source"
)

const (
	rawChanSize = 1024
	sigChanSize = 64
)

// Pipeline is the assembled capture-to-playback chain.
type Pipeline struct {
	cfg *config.Config

	src        source.Source
	classifier *classify.Classifier
	registry   *flow.Registry
	sigWatcher *signaling.Watcher
	table      *session.Table
	snk        *sink.Sink
	devWatcher *sink.Watcher

	rawCh chan core.RawFrame
	sigCh chan []byte

	logger log.Logger
}

// New assembles a pipeline from configuration. The audio backend is injected
// so tests can run the full chain against a fake device.
func New(cfg *config.Config, be sink.Backend) (*Pipeline, error) {
	src, err := source.New(cfg.Capture)
	if err != nil {
		return nil, err
	}

	registry := flow.NewRegistry()

	return &Pipeline{
		cfg:        cfg,
		src:        src,
		registry:   registry,
		sigWatcher: signaling.NewWatcher(registry),
		table:      session.NewTable(cfg.Jitter, cfg.Session),
		snk:        sink.New(cfg.Output, be),
		devWatcher: sink.NewWatcher(be, cfg.Output.WatchInterval),
		rawCh:      make(chan core.RawFrame, rawChanSize),
		sigCh:      make(chan []byte, sigChanSize),
		logger:     log.GetLogger(),
	}, nil
}

// Run executes the pipeline until the context is cancelled or the source
// fails. A file source reaching EOF keeps the pipeline alive so buffered
// audio drains; cancellation ends the run.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.src.Start(ctx); err != nil {
		return err
	}
	// The link type is only known once the source is open; a pcap file may
	// carry raw IP frames instead of Ethernet.
	p.classifier = classify.New(p.src.LinkType(), p.cfg.Signature, p.cfg.Signaling, p.registry)
	p.table.Start(ctx)
	if err := p.snk.Start(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	// Unblock the source read when the run ends.
	g.Go(func() error {
		<-ctx.Done()
		return p.src.Stop()
	})

	g.Go(func() error { return p.captureLoop(ctx) })
	g.Go(func() error { return p.classifyLoop(ctx) })
	g.Go(func() error { return p.signalingLoop() })
	g.Go(func() error {
		if err := p.devWatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		for ev := range p.devWatcher.Events() {
			p.snk.HandleDeviceEvent(ev)
		}
		return nil
	})
	g.Go(func() error { return p.playbackLoop(ctx) })

	err := g.Wait()

	p.table.Stop()
	if stopErr := p.snk.Stop(); stopErr != nil && err == nil {
		err = stopErr
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// Stats is a point-in-time snapshot of the pipeline.
type Stats struct {
	Classifier classify.Stats
	Sessions   int
	Flows      int
	SinkState  sink.State
	Buffered   time.Duration
}

// Stats returns the current pipeline counters.
func (p *Pipeline) Stats() Stats {
	var cs classify.Stats
	if p.classifier != nil {
		cs = p.classifier.Stats()
	}
	return Stats{
		Classifier: cs,
		Sessions:   p.table.Len(),
		Flows:      p.registry.Count(),
		SinkState:  p.snk.State(),
		Buffered:   p.snk.Buffered(),
	}
}

// captureLoop reads frames from the source into the raw channel. The
// source's buffers are reused across reads, so the frame data is copied
// before crossing the channel.
func (p *Pipeline) captureLoop(ctx context.Context) error {
	defer close(p.rawCh)

	for {
		data, ci, err := p.src.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.logger.Info("capture source exhausted")
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		frame := core.RawFrame{
			Data:       append([]byte(nil), data...),
			Timestamp:  ci.Timestamp,
			CaptureLen: uint32(ci.CaptureLength),
			OrigLen:    uint32(ci.Length),
		}
		if frame.Timestamp.IsZero() {
			frame.Timestamp = time.Now()
		}

		select {
		case p.rawCh <- frame:
		case <-ctx.Done():
			return nil
		}
	}
}

// classifyLoop classifies frames and routes them to sessions or signaling.
func (p *Pipeline) classifyLoop(ctx context.Context) error {
	defer close(p.sigCh)

	for frame := range p.rawCh {
		res := p.classifier.Classify(frame)
		switch res.Verdict {
		case classify.VerdictAudio:
			p.table.Dispatch(res.Key, res.Unit, res.Flow, res.Signed)
		case classify.VerdictSignaling:
			select {
			case p.sigCh <- res.Payload:
			default:
				// Signaling is best-effort under load; media keeps flowing.
				p.logger.Debug("signaling channel full, dropping datagram")
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

func (p *Pipeline) signalingLoop() error {
	for payload := range p.sigCh {
		p.sigWatcher.Handle(payload)
	}
	return nil
}

// playbackLoop gathers one decoded block per session per frame tick, mixes
// them into a single output block at the sink's rate, and writes it out.
func (p *Pipeline) playbackLoop(ctx context.Context) error {
	frameDur := p.cfg.Jitter.FrameDuration
	outRate := p.cfg.Output.SampleRate
	channels := p.cfg.Output.Channels
	frameSamples := int(int64(outRate) * int64(frameDur) / int64(time.Second))

	ticker := time.NewTicker(frameDur)
	defer ticker.Stop()

	acc := make([]int32, frameSamples)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		for i := range acc {
			acc[i] = 0
		}
		mixed := 0

		for _, s := range p.table.Sessions() {
			select {
			case block, ok := <-s.Out():
				if !ok {
					continue
				}
				pcm := block.PCM
				if block.SampleRate != outRate {
					pcm = codec.Resample(pcm, block.SampleRate, outRate)
				}
				n := len(pcm)
				if n > frameSamples {
					n = frameSamples
				}
				for i := 0; i < n; i++ {
					acc[i] += int32(pcm[i])
				}
				mixed++
			default:
				// Session has nothing ready this tick; its jitter buffer is
				// still priming or waiting out a gap.
			}
		}

		if mixed == 0 {
			continue
		}

		out := make([]int16, frameSamples*channels)
		for i, v := range acc {
			if v > 32767 {
				v = 32767
			} else if v < -32768 {
				v = -32768
			}
			for c := 0; c < channels; c++ {
				out[i*channels+c] = int16(v)
			}
		}

		block := core.DecodedBlock{
			PCM:        out,
			SampleRate: outRate,
			Duration:   frameDur,
			PTS:        time.Now(),
		}
		if err := p.snk.Write(block); err != nil && !errors.Is(err, core.ErrOutputUnavailable) {
			return err
		}
	}
}
