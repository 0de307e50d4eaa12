// Package config provides the configuration schema, loader, and provider
// registry for the Aria server.
package config

import (
	"time"

	"github.com/MrWong99/aria/pkg/provider/content"
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

// Device selects an audio device implementation.
type Device string

const (
	// DevicePortAudio uses the system default device through PortAudio.
	DevicePortAudio Device = "portaudio"

	// DeviceFile reads or writes raw s16le PCM at Path.
	DeviceFile Device = "file"

	// DeviceNone disables the device. A disabled input makes every live open
	// fail; a disabled output discards rendered audio.
	DeviceNone Device = "none"
)

// IsValid reports whether d is a recognised device.
func (d Device) IsValid() bool {
	switch d {
	case DevicePortAudio, DeviceFile, DeviceNone:
		return true
	}
	return false
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr       = "127.0.0.1:8088"
	DefaultFrameSamples     = 4096
	DefaultQueueFrames      = 32
	DefaultInputSampleRate  = 16000
	DefaultOutputSampleRate = 24000
	DefaultLiveProvider     = "gemini-live"
	DefaultServiceName      = "aria"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Audio      AudioConfig      `yaml:"audio"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Persona    content.Persona  `yaml:"persona"`
}

// ServerConfig holds network, logging and telemetry settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the HTTP API. Default: 127.0.0.1:8088.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`

	// ServiceName is reported as the OpenTelemetry service name.
	ServiceName string `yaml:"service_name"`

	// AllowOrigin, when set, enables CORS for that browser origin.
	AllowOrigin string `yaml:"allow_origin"`
}

// ProvidersConfig selects the remote services.
type ProvidersConfig struct {
	// Content lists request/response content providers in failover order.
	// The first entry is the primary.
	Content []ProviderEntry `yaml:"content"`

	// Live selects the duplex voice session provider.
	Live ProviderEntry `yaml:"live"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds. Name selects the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g. "gemini").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects the provider's main model.
	Model string `yaml:"model"`

	// Options holds provider-specific values such as "chat_model",
	// "image_model" or "voice".
	Options map[string]any `yaml:"options"`
}

// Option returns the string option key, or "" if absent or not a string.
func (e ProviderEntry) Option(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// AudioConfig configures the local audio devices.
type AudioConfig struct {
	Input  DeviceConfig `yaml:"input"`
	Output DeviceConfig `yaml:"output"`

	// FrameSamples is the number of input samples per uploaded frame.
	// Default: 4096.
	FrameSamples int `yaml:"frame_samples"`

	// QueueFrames bounds the frames buffered while a session is opening.
	// Default: 32.
	QueueFrames int `yaml:"queue_frames"`
}

// DeviceConfig selects and parameterises one audio device.
type DeviceConfig struct {
	// Device selects the implementation. Default: portaudio.
	Device Device `yaml:"device"`

	// Path is the PCM file for the file device.
	Path string `yaml:"path"`

	// SampleRate in Hz. Defaults: 16000 for input, 24000 for output.
	SampleRate int `yaml:"sample_rate"`
}

// ResilienceConfig tunes the per-provider circuit breakers.
type ResilienceConfig struct {
	// MaxFailures opens a breaker after this many consecutive failures.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long an open breaker rejects calls.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}
