package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "ARIA"

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"content": {"gemini", "openai"},
	"live":    {"gemini-live"},
}

// Env holds the environment overrides, read with the ARIA_ prefix
// (e.g. ARIA_GEMINI_API_KEY).
type Env struct {
	GeminiAPIKey string   `envconfig:"GEMINI_API_KEY"`
	OpenAIAPIKey string   `envconfig:"OPENAI_API_KEY"`
	ListenAddr   string   `envconfig:"LISTEN_ADDR"`
	LogLevel     LogLevel `envconfig:"LOG_LEVEL"`
}

// Load reads the YAML configuration file at path, loads a .env file from the
// working directory if present, applies environment overrides and defaults,
// and returns a validated [Config].
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := fromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// fromBytes decodes data and applies the environment and defaults.
func fromBytes(data []byte) (*Config, error) {
	cfg, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var env Env
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	env.Apply(cfg)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. The environment is not consulted.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// Apply copies the non-empty overrides into cfg. API keys only fill entries
// of the matching provider family that have no key of their own.
func (e Env) Apply(cfg *Config) {
	if e.ListenAddr != "" {
		cfg.Server.ListenAddr = e.ListenAddr
	}
	if e.LogLevel != "" {
		cfg.Server.LogLevel = e.LogLevel
	}
	fill := func(entry *ProviderEntry) {
		if entry.APIKey != "" {
			return
		}
		switch entry.Name {
		case "gemini", "gemini-live":
			entry.APIKey = e.GeminiAPIKey
		case "openai":
			entry.APIKey = e.OpenAIAPIKey
		}
	}
	for i := range cfg.Providers.Content {
		fill(&cfg.Providers.Content[i])
	}
	if cfg.Providers.Live.Name == "" {
		cfg.Providers.Live.Name = DefaultLiveProvider
	}
	fill(&cfg.Providers.Live)
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ServiceName == "" {
		cfg.Server.ServiceName = DefaultServiceName
	}
	if cfg.Providers.Live.Name == "" {
		cfg.Providers.Live.Name = DefaultLiveProvider
	}
	if cfg.Audio.FrameSamples == 0 {
		cfg.Audio.FrameSamples = DefaultFrameSamples
	}
	if cfg.Audio.QueueFrames == 0 {
		cfg.Audio.QueueFrames = DefaultQueueFrames
	}
	if cfg.Audio.Input.Device == "" {
		cfg.Audio.Input.Device = DevicePortAudio
	}
	if cfg.Audio.Input.SampleRate == 0 {
		cfg.Audio.Input.SampleRate = DefaultInputSampleRate
	}
	if cfg.Audio.Output.Device == "" {
		cfg.Audio.Output.Device = DevicePortAudio
	}
	if cfg.Audio.Output.SampleRate == 0 {
		cfg.Audio.Output.SampleRate = DefaultOutputSampleRate
	}
	cfg.Persona = cfg.Persona.WithDefaults()
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}

	if len(cfg.Providers.Content) == 0 {
		slog.Warn("no content provider configured; insights and chat will always degrade")
	}
	seen := make(map[string]int, len(cfg.Providers.Content))
	for i, entry := range cfg.Providers.Content {
		prefix := fmt.Sprintf("providers.content[%d]", i)
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := seen[entry.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of providers.content[%d]", prefix, entry.Name, prev))
		}
		seen[entry.Name] = i
		validateProviderName("content", entry.Name)
	}
	validateProviderName("live", cfg.Providers.Live.Name)

	if cfg.Audio.FrameSamples < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_samples %d must be positive", cfg.Audio.FrameSamples))
	}
	if cfg.Audio.QueueFrames < 0 {
		errs = append(errs, fmt.Errorf("audio.queue_frames %d must be positive", cfg.Audio.QueueFrames))
	}
	errs = append(errs, validateDevice("audio.input", cfg.Audio.Input)...)
	errs = append(errs, validateDevice("audio.output", cfg.Audio.Output)...)

	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures %d must not be negative", cfg.Resilience.MaxFailures))
	}
	if cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("resilience.reset_timeout %s must not be negative", cfg.Resilience.ResetTimeout))
	}

	return errors.Join(errs...)
}

func validateDevice(prefix string, d DeviceConfig) []error {
	var errs []error
	if !d.Device.IsValid() {
		errs = append(errs, fmt.Errorf("%s.device %q is invalid; valid values: portaudio, file, none", prefix, d.Device))
	}
	if d.Device == DeviceFile && d.Path == "" {
		errs = append(errs, fmt.Errorf("%s.path is required when device is file", prefix))
	}
	if d.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("%s.sample_rate %d must be positive", prefix, d.SampleRate))
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	if slices.Contains(ValidProviderNames[kind], name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", ValidProviderNames[kind],
	)
}
