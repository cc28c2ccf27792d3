// Package config handles static configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/auris/internal/log"
)

// Config is the top-level static configuration.
// Maps to the `auris:` root key in YAML; env vars use the AURIS_ prefix
// (e.g. AURIS_OUTPUT_DEVICE).
type Config struct {
	Capture   CaptureConfig    `mapstructure:"capture"`
	Signature SignatureConfig  `mapstructure:"signature"`
	Signaling SignalingConfig  `mapstructure:"signaling"`
	Jitter    JitterConfig     `mapstructure:"jitter"`
	Session   SessionConfig    `mapstructure:"session"`
	Output    OutputConfig     `mapstructure:"output"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`
	Log       log.LoggerConfig `mapstructure:"log"`
}

// CaptureConfig selects and tunes the packet source.
type CaptureConfig struct {
	// Type is one of "live", "file", "afpacket".
	Type string `mapstructure:"type"`
	// Device is the interface name for live/afpacket sources.
	Device string `mapstructure:"device"`
	// FilePath is the pcap path for the file source.
	FilePath string `mapstructure:"file_path"`
	// BPF is a tcpdump-style filter applied at the source.
	BPF     string `mapstructure:"bpf"`
	SnapLen int    `mapstructure:"snap_len"`
	// Options carries source-specific tuning, decoded by each source
	// implementation via mapstructure (e.g. afpacket ring sizing).
	Options map[string]any `mapstructure:"options"`
}

// SignatureConfig is the audio-stream admission policy for the classifier.
type SignatureConfig struct {
	// PayloadTypes admitted by the heuristic path when no signaling
	// context exists. Empty list admits the standard audio range.
	PayloadTypes []int  `mapstructure:"payload_types"`
	PortMin      uint16 `mapstructure:"port_min"`
	PortMax      uint16 `mapstructure:"port_max"`
	// RequireSignaling drops heuristic-only matches; only flows announced
	// via SIP/SDP are reconstructed.
	RequireSignaling bool `mapstructure:"require_signaling"`
	// RulesFile optionally points to a YAML rules document that overrides
	// the inline fields above.
	RulesFile string `mapstructure:"rules_file"`
}

// SignalingConfig controls the SIP/SDP watcher.
type SignalingConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Ports   []uint16 `mapstructure:"ports"`
}

// JitterConfig tunes the per-session reorder buffer.
type JitterConfig struct {
	// Window is the reorder window size in units; rounded up to a power
	// of two, must stay below half the 16-bit sequence space.
	Window int `mapstructure:"window"`
	// MinDepth/MaxDepth bound the adaptive playout delay, in frames.
	MinDepth int `mapstructure:"min_depth"`
	MaxDepth int `mapstructure:"max_depth"`
	// MaxGapWait caps how long emission stalls on one missing unit.
	MaxGapWait time.Duration `mapstructure:"max_gap_wait"`
	// ShrinkInterval is the minimum stable period between single-frame
	// reductions of the playout depth.
	ShrinkInterval time.Duration `mapstructure:"shrink_interval"`
	// FrameDuration is the nominal duration of one payload unit.
	FrameDuration time.Duration `mapstructure:"frame_duration"`
}

// SessionConfig tunes session table lifecycle.
type SessionConfig struct {
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// QueueDepth is the bounded per-session DecodedBlock channel capacity.
	QueueDepth int `mapstructure:"queue_depth"`
}

// OutputConfig tunes the audio device sink.
type OutputConfig struct {
	// Device is a substring match against enumerated playback device
	// names; empty selects the system default.
	Device     string `mapstructure:"device"`
	SampleRate int    `mapstructure:"sample_rate"`
	Channels   int    `mapstructure:"channels"`
	// BufferWindow bounds how much audio is held while the device is gone.
	BufferWindow time.Duration `mapstructure:"buffer_window"`
	// ReconnectTimeout is how long the sink buffers before reporting
	// OutputUnavailable.
	ReconnectTimeout time.Duration `mapstructure:"reconnect_timeout"`
	// WatchInterval is the device enumeration polling period.
	WatchInterval time.Duration `mapstructure:"watch_interval"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

type configRoot struct {
	Auris Config `mapstructure:"auris"`
}

// Load loads configuration from file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Env overrides: key "auris.output.device" → env "AURIS_OUTPUT_DEVICE".
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Auris

	if cfg.Signature.RulesFile != "" {
		rules, err := LoadRules(cfg.Signature.RulesFile)
		if err != nil {
			return nil, err
		}
		rules.applyTo(&cfg.Signature)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values; all keys use the "auris." prefix to match
// the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Capture defaults
	v.SetDefault("auris.capture.type", "live")
	v.SetDefault("auris.capture.snap_len", 1600)
	v.SetDefault("auris.capture.bpf", "udp")

	// Signature defaults: RTP dynamic + classic audio payload types on the
	// conventional media port range.
	v.SetDefault("auris.signature.port_min", 1024)
	v.SetDefault("auris.signature.port_max", 65535)
	v.SetDefault("auris.signature.require_signaling", false)

	// Signaling defaults
	v.SetDefault("auris.signaling.enabled", true)
	v.SetDefault("auris.signaling.ports", []int{5060})

	// Jitter defaults
	v.SetDefault("auris.jitter.window", 128)
	v.SetDefault("auris.jitter.min_depth", 2)
	v.SetDefault("auris.jitter.max_depth", 16)
	v.SetDefault("auris.jitter.max_gap_wait", "60ms")
	v.SetDefault("auris.jitter.shrink_interval", "5s")
	v.SetDefault("auris.jitter.frame_duration", "20ms")

	// Session defaults
	v.SetDefault("auris.session.idle_timeout", "30s")
	v.SetDefault("auris.session.sweep_interval", "5s")
	v.SetDefault("auris.session.queue_depth", 32)

	// Output defaults
	v.SetDefault("auris.output.sample_rate", 8000)
	v.SetDefault("auris.output.channels", 1)
	v.SetDefault("auris.output.buffer_window", "2s")
	v.SetDefault("auris.output.reconnect_timeout", "10s")
	v.SetDefault("auris.output.watch_interval", "1s")

	// Metrics defaults
	v.SetDefault("auris.metrics.enabled", true)
	v.SetDefault("auris.metrics.listen", ":9094")
	v.SetDefault("auris.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("auris.log.level", "info")
	v.SetDefault("auris.log.pattern", "%time [%level] %caller: %msg\n")
	v.SetDefault("auris.log.time", "2006-01-02 15:04:05")
}

// Validate checks cross-field constraints and fills derived values.
func (cfg *Config) Validate() error {
	switch cfg.Capture.Type {
	case "live", "afpacket":
		// An empty device is allowed: the source auto-selects the first
		// usable non-loopback interface at capture start.
	case "file":
		if cfg.Capture.FilePath == "" {
			return fmt.Errorf("capture.file_path is required for file capture")
		}
	default:
		return fmt.Errorf("unsupported capture.type: %s (must be live/file/afpacket)", cfg.Capture.Type)
	}

	for _, pt := range cfg.Signature.PayloadTypes {
		if pt < 0 || pt > 127 {
			return fmt.Errorf("signature.payload_types: %d out of RTP range 0-127", pt)
		}
	}
	if cfg.Signature.PortMin > cfg.Signature.PortMax {
		return fmt.Errorf("signature.port_min %d exceeds port_max %d", cfg.Signature.PortMin, cfg.Signature.PortMax)
	}

	if cfg.Jitter.Window < 4 || cfg.Jitter.Window > 16384 {
		return fmt.Errorf("jitter.window %d out of range 4-16384", cfg.Jitter.Window)
	}
	if cfg.Jitter.MinDepth < 1 || cfg.Jitter.MinDepth > cfg.Jitter.MaxDepth {
		return fmt.Errorf("jitter depth bounds invalid: min %d max %d", cfg.Jitter.MinDepth, cfg.Jitter.MaxDepth)
	}
	if cfg.Jitter.MaxDepth > cfg.Jitter.Window/2 {
		return fmt.Errorf("jitter.max_depth %d exceeds half the window %d", cfg.Jitter.MaxDepth, cfg.Jitter.Window)
	}
	if cfg.Jitter.FrameDuration <= 0 {
		return fmt.Errorf("jitter.frame_duration must be positive")
	}
	if cfg.Jitter.MaxGapWait <= 0 {
		return fmt.Errorf("jitter.max_gap_wait must be positive")
	}

	if cfg.Session.IdleTimeout <= 0 || cfg.Session.SweepInterval <= 0 {
		return fmt.Errorf("session timeouts must be positive")
	}
	if cfg.Session.QueueDepth < 1 {
		return fmt.Errorf("session.queue_depth must be at least 1")
	}

	if cfg.Output.SampleRate <= 0 {
		return fmt.Errorf("output.sample_rate must be positive")
	}
	if cfg.Output.Channels != 1 && cfg.Output.Channels != 2 {
		return fmt.Errorf("output.channels must be 1 or 2")
	}

	if cfg.Signaling.Enabled && len(cfg.Signaling.Ports) == 0 {
		return fmt.Errorf("signaling.ports must not be empty when signaling is enabled")
	}

	return nil
}
