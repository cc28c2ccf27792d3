package sink

import (
	"errors"
	"sync"
	"testing"
	"time"

	"firestige.xyz/auris/internal/config"
	"firestige.xyz/auris/internal/core"
)

// fakeBackend simulates the audio system: Open succeeds while a device is
// present, and the test drives the data callback by hand.
type fakeBackend struct {
	mu      sync.Mutex
	devices []DeviceInfo
	onData  func(out []int16)
	opened  int
	closed  bool
}

func (f *fakeBackend) Open(device string, sampleRate, channels int, onData func(out []int16)) (PlaybackHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.devices) == 0 {
		return nil, core.ErrNoDevice
	}
	f.onData = onData
	f.opened++
	return &fakeHandle{be: f}, nil
}

func (f *fakeBackend) Playbacks() ([]DeviceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]DeviceInfo(nil), f.devices...), nil
}

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// pull drives the data callback like the audio thread would.
func (f *fakeBackend) pull(n int) []int16 {
	f.mu.Lock()
	onData := f.onData
	f.mu.Unlock()
	out := make([]int16, n)
	if onData != nil {
		onData(out)
	}
	return out
}

type fakeHandle struct {
	be *fakeBackend
}

func (h *fakeHandle) Close() error { return nil }

func testOutputConfig() config.OutputConfig {
	return config.OutputConfig{
		SampleRate:       8000,
		Channels:         1,
		BufferWindow:     time.Second,
		ReconnectTimeout: 100 * time.Millisecond,
		WatchInterval:    10 * time.Millisecond,
	}
}

func block(samples int, value int16) core.DecodedBlock {
	pcm := make([]int16, samples)
	for i := range pcm {
		pcm[i] = value
	}
	return core.DecodedBlock{PCM: pcm, SampleRate: 8000, Duration: time.Duration(samples) * time.Second / 8000}
}

func TestSinkPlaysThroughDevice(t *testing.T) {
	be := &fakeBackend{devices: []DeviceInfo{{ID: "d1", Name: "Test Speakers"}}}
	s := New(testOutputConfig(), be)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer s.Stop()

	if s.State() != StatePlaying {
		t.Fatalf("State() = %v; want playing", s.State())
	}

	if err := s.Write(block(160, 1234)); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	out := be.pull(160)
	for i, v := range out {
		if v != 1234 {
			t.Fatalf("device sample %d = %d; want 1234", i, v)
		}
	}
}

func TestSinkUnderrunYieldsSilence(t *testing.T) {
	be := &fakeBackend{devices: []DeviceInfo{{ID: "d1", Name: "Test Speakers"}}}
	s := New(testOutputConfig(), be)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer s.Stop()

	if err := s.Write(block(40, 99)); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	out := be.pull(80)
	for i := 0; i < 40; i++ {
		if out[i] != 99 {
			t.Fatalf("sample %d = %d; want 99", i, out[i])
		}
	}
	for i := 40; i < 80; i++ {
		if out[i] != 0 {
			t.Fatalf("underrun sample %d = %d; want 0", i, out[i])
		}
	}
}

func TestSinkBuffersWhenDeviceMissing(t *testing.T) {
	be := &fakeBackend{} // no devices
	s := New(testOutputConfig(), be)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer s.Stop()

	if s.State() != StateBuffering {
		t.Fatalf("State() = %v; want buffering without a device", s.State())
	}

	// Writes are absorbed while buffering.
	if err := s.Write(block(160, 5)); err != nil {
		t.Fatalf("Write() while buffering error: %v", err)
	}
	if s.Buffered() == 0 {
		t.Error("Buffered() = 0 after buffered write")
	}
}

func TestSinkReopensOnDeviceArrival(t *testing.T) {
	be := &fakeBackend{}
	s := New(testOutputConfig(), be)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer s.Stop()

	_ = s.Write(block(160, 7))

	// Device shows up.
	be.mu.Lock()
	be.devices = []DeviceInfo{{ID: "d1", Name: "USB Audio"}}
	be.mu.Unlock()
	s.HandleDeviceEvent(core.DeviceEvent{Kind: core.DeviceAdded, ID: "d1", Name: "USB Audio"})

	if s.State() != StatePlaying {
		t.Fatalf("State() = %v after device arrival; want playing", s.State())
	}

	// Audio buffered during the outage plays out.
	out := be.pull(160)
	if out[0] != 7 {
		t.Errorf("first sample after reopen = %d; want buffered 7", out[0])
	}
}

func TestSinkDeviceRemovalThenUnavailable(t *testing.T) {
	be := &fakeBackend{devices: []DeviceInfo{{ID: "d1", Name: "Speakers"}}}
	s := New(testOutputConfig(), be)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer s.Stop()

	s.HandleDeviceEvent(core.DeviceEvent{Kind: core.DeviceRemoved, ID: "d1", Name: "Speakers"})
	if s.State() != StateBuffering {
		t.Fatalf("State() = %v after removal; want buffering", s.State())
	}

	// Within the reconnect window writes are still absorbed.
	if err := s.Write(block(80, 1)); err != nil {
		t.Fatalf("Write() during reconnect window error: %v", err)
	}

	// After the window the sink reports unavailable.
	time.Sleep(150 * time.Millisecond)
	err := s.Write(block(80, 1))
	if !errors.Is(err, core.ErrOutputUnavailable) {
		t.Fatalf("Write() after reconnect timeout = %v; want ErrOutputUnavailable", err)
	}
	if s.State() != StateUnavailable {
		t.Errorf("State() = %v; want unavailable", s.State())
	}
}

func TestDeviceRemovalUnblocksWriter(t *testing.T) {
	cfg := testOutputConfig()
	cfg.BufferWindow = 10 * time.Millisecond // 80-sample ring
	be := &fakeBackend{devices: []DeviceInfo{{ID: "d1", Name: "Speakers"}}}
	s := New(cfg, be)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer s.Stop()

	// Fill the ring while playing, then park a writer on it. Nothing pulls
	// from the device side, so only a state change can release it.
	if err := s.Write(block(80, 1)); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		done <- s.Write(block(80, 2))
	}()

	time.Sleep(20 * time.Millisecond) // let the writer reach the full ring
	s.HandleDeviceEvent(core.DeviceEvent{Kind: core.DeviceRemoved, ID: "d1", Name: "Speakers"})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Write() after removal = %v; want buffered via drop-oldest", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Write() still blocked after device removal")
	}
	if s.State() != StateBuffering {
		t.Fatalf("State() = %v after removal; want buffering", s.State())
	}

	// With no device back, the reconnect window still runs out.
	time.Sleep(150 * time.Millisecond)
	if err := s.Write(block(80, 3)); !errors.Is(err, core.ErrOutputUnavailable) {
		t.Errorf("Write() after reconnect timeout = %v; want ErrOutputUnavailable", err)
	}
}

func TestSinkBufferingDropsOldest(t *testing.T) {
	cfg := testOutputConfig()
	cfg.BufferWindow = 10 * time.Millisecond // 80-sample ring
	be := &fakeBackend{}
	s := New(cfg, be)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer s.Stop()

	_ = s.Write(block(80, 1))
	_ = s.Write(block(80, 2)) // overruns the ring, evicting the 1s

	// Device arrives, drain the ring: only the newest audio remains.
	be.mu.Lock()
	be.devices = []DeviceInfo{{ID: "d1", Name: "Speakers"}}
	be.mu.Unlock()
	s.HandleDeviceEvent(core.DeviceEvent{Kind: core.DeviceAdded, ID: "d1", Name: "Speakers"})

	out := be.pull(80)
	if out[0] != 2 || out[79] != 2 {
		t.Errorf("ring contents = [%d ... %d]; want all 2 after drop-oldest", out[0], out[79])
	}
}

func TestDuplicateAddIsIdempotent(t *testing.T) {
	be := &fakeBackend{devices: []DeviceInfo{{ID: "d1", Name: "Speakers"}}}
	s := New(testOutputConfig(), be)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer s.Stop()

	s.HandleDeviceEvent(core.DeviceEvent{Kind: core.DeviceAdded, ID: "d1", Name: "Speakers"})
	s.HandleDeviceEvent(core.DeviceEvent{Kind: core.DeviceAdded, ID: "d1", Name: "Speakers"})

	be.mu.Lock()
	opened := be.opened
	be.mu.Unlock()
	if opened != 1 {
		t.Errorf("device opened %d times; want 1 (duplicate adds ignored while playing)", opened)
	}
}
