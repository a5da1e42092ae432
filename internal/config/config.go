// Package config provides the configuration schema, loader, and prober
// registry for hushcut.
package config

import (
	"time"

	"github.com/MrWong99/hushcut/internal/segment"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// FailurePolicy decides what happens when a per-span operation fails.
type FailurePolicy string

const (
	// PolicyHardFail aborts the run on the first failed operation. No output
	// file is produced.
	PolicyHardFail FailurePolicy = "hard_fail"

	// PolicySkipSpan drops the failed span from the concat list and keeps
	// going. The output then has a gap where the span was.
	PolicySkipSpan FailurePolicy = "skip_span"
)

// IsValid reports whether p is a recognised failure policy.
func (p FailurePolicy) IsValid() bool {
	return p == PolicyHardFail || p == PolicySkipSpan
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	VAD      VADConfig      `yaml:"vad"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// ServerConfig holds logging settings and the optional diagnostics listener.
type ServerConfig struct {
	// ListenAddr, when set, serves /metrics, /healthz and /readyz for the
	// duration of a run (e.g. ":9090").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProviderEntry selects a registered implementation by name and carries its
// implementation-specific options.
type ProviderEntry struct {
	// Name selects the registered provider (e.g. "energy", "probfile").
	Name string `yaml:"name"`

	// Options holds provider-specific values.
	Options map[string]any `yaml:"options"`
}

// VADConfig configures probability extraction and segmentation.
type VADConfig struct {
	// Prober selects the speech probability backend. Default: energy.
	Prober ProviderEntry `yaml:"prober"`

	SampleRate int     `yaml:"sample_rate"`
	WindowSize int     `yaml:"window_size"`
	Threshold  float64 `yaml:"threshold"`

	// NegThreshold is the exit threshold. Nil derives it from Threshold
	// (Threshold - 0.15, at least 0.01); an explicit 0 is kept.
	NegThreshold *float64 `yaml:"neg_threshold"`

	MinSpeechMs  int `yaml:"min_speech_ms"`
	MinSilenceMs int `yaml:"min_silence_ms"`
	SpeechPadMs  int `yaml:"speech_pad_ms"`
}

// SegmentParams converts the VAD section into segmenter parameters.
func (v VADConfig) SegmentParams() segment.Params {
	neg := max(v.Threshold-0.15, 0.01)
	if v.NegThreshold != nil {
		neg = *v.NegThreshold
	}
	return segment.Params{
		SampleRate:   v.SampleRate,
		WindowSize:   v.WindowSize,
		Threshold:    v.Threshold,
		NegThreshold: neg,
		MinSpeechMs:  v.MinSpeechMs,
		MinSilenceMs: v.MinSilenceMs,
		SpeechPadMs:  v.SpeechPadMs,
	}
}

// PipelineConfig configures planning and execution.
type PipelineConfig struct {
	// FFmpegPath is the ffmpeg executable. Default: "ffmpeg" (resolved via PATH).
	FFmpegPath string `yaml:"ffmpeg_path"`

	// SpeedFactor is the playback multiplier for non-speech spans. Default: 2.0.
	SpeedFactor float64 `yaml:"speed_factor"`

	// FailurePolicy is hard_fail (default) or skip_span.
	FailurePolicy FailurePolicy `yaml:"failure_policy"`

	// Concurrency bounds how many per-span chains run at once. Default: 4.
	Concurrency int `yaml:"concurrency"`

	// MaxConsecutiveFailures opens the run's circuit breaker under skip_span.
	// Default: 5.
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`

	// OperationTimeout bounds a single external operation. Zero disables it.
	OperationTimeout time.Duration `yaml:"operation_timeout"`

	// KeepTemp keeps the per-run work directory after the run.
	KeepTemp bool `yaml:"keep_temp"`

	// Reencode makes extraction re-encode instead of stream copying. Stream
	// copy cuts on keyframes; re-encoding is exact but slow.
	Reencode bool `yaml:"reencode"`

	// Output is the final output path. Default: <source dir>/tmp/<stem>_fast<ext>.
	Output string `yaml:"output"`
}

// Default returns a Config with every default applied. [LoadFromReader]
// decodes on top of it, so a key left out of the YAML keeps its default while
// an explicit zero is kept as written.
func Default() *Config {
	d := segment.DefaultParams()
	return &Config{
		Server: ServerConfig{LogLevel: LogInfo},
		VAD: VADConfig{
			Prober:       ProviderEntry{Name: "energy"},
			SampleRate:   d.SampleRate,
			WindowSize:   d.WindowSize,
			Threshold:    d.Threshold,
			MinSpeechMs:  d.MinSpeechMs,
			MinSilenceMs: d.MinSilenceMs,
			SpeechPadMs:  d.SpeechPadMs,
		},
		Pipeline: PipelineConfig{
			FFmpegPath:             "ffmpeg",
			SpeedFactor:            2.0,
			FailurePolicy:          PolicyHardFail,
			Concurrency:            4,
			MaxConsecutiveFailures: 5,
		},
	}
}

// ApplyDefaults fills fields whose zero value is never valid, such as an
// empty ffmpeg path or a zero window size. Fields where zero is meaningful
// (durations, NegThreshold, OperationTimeout) are left alone.
func (c *Config) ApplyDefaults() {
	def := Default()
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = def.Server.LogLevel
	}

	v := &c.VAD
	if v.Prober.Name == "" {
		v.Prober.Name = def.VAD.Prober.Name
	}
	if v.SampleRate == 0 {
		v.SampleRate = def.VAD.SampleRate
	}
	if v.WindowSize == 0 {
		v.WindowSize = def.VAD.WindowSize
	}
	if v.Threshold == 0 {
		v.Threshold = def.VAD.Threshold
	}

	p := &c.Pipeline
	if p.FFmpegPath == "" {
		p.FFmpegPath = def.Pipeline.FFmpegPath
	}
	if p.SpeedFactor == 0 {
		p.SpeedFactor = def.Pipeline.SpeedFactor
	}
	if p.FailurePolicy == "" {
		p.FailurePolicy = def.Pipeline.FailurePolicy
	}
	if p.Concurrency == 0 {
		p.Concurrency = def.Pipeline.Concurrency
	}
	if p.MaxConsecutiveFailures == 0 {
		p.MaxConsecutiveFailures = def.Pipeline.MaxConsecutiveFailures
	}
}
