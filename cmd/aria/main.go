// Command aria is the entry point for the Aria Nexus Prime assistant server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/aria/internal/app"
	"github.com/MrWong99/aria/internal/config"
	"github.com/MrWong99/aria/internal/observe"
	"github.com/MrWong99/aria/pkg/audio"
	"github.com/MrWong99/aria/pkg/audio/output"
	"github.com/MrWong99/aria/pkg/audio/pcmfile"
	"github.com/MrWong99/aria/pkg/audio/portaudio"
	"github.com/MrWong99/aria/pkg/provider/content"
	contentgemini "github.com/MrWong99/aria/pkg/provider/content/gemini"
	contentopenai "github.com/MrWong99/aria/pkg/provider/content/openai"
	"github.com/MrWong99/aria/pkg/provider/live"
	livegemini "github.com/MrWong99/aria/pkg/provider/live/gemini"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "aria: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "aria: %v\n", err)
		}
		return 1
	}

	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("aria starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Server.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithMetricsHandler(tel.Handler),
		app.WithCloser(func() error { return tel.Shutdown(context.Background()) }),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	watcher, err := config.NewWatcher(*configPath, func(_, next *config.Config, d config.ConfigDiff) {
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
		}
		application.ApplyConfig(next, d)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires the provider and device factories that
// ship with Aria into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterContent("gemini", func(ctx context.Context, entry config.ProviderEntry, persona content.Persona) (content.Provider, error) {
		opts := []contentgemini.Option{
			contentgemini.WithPersona(persona),
			contentgemini.WithChatModel(entry.Model),
			contentgemini.WithInsightsModel(entry.Option("insights_model")),
			contentgemini.WithImageModel(entry.Option("image_model")),
		}
		if entry.BaseURL != "" {
			opts = append(opts, contentgemini.WithBaseURL(entry.BaseURL))
		}
		return contentgemini.New(ctx, entry.APIKey, opts...)
	})

	reg.RegisterContent("openai", func(_ context.Context, entry config.ProviderEntry, persona content.Persona) (content.Provider, error) {
		opts := []contentopenai.Option{
			contentopenai.WithPersona(persona),
			contentopenai.WithChatModel(entry.Model),
			contentopenai.WithImageModel(entry.Option("image_model")),
		}
		if entry.BaseURL != "" {
			opts = append(opts, contentopenai.WithBaseURL(entry.BaseURL))
		}
		if d, err := time.ParseDuration(entry.Option("timeout")); err == nil {
			opts = append(opts, contentopenai.WithTimeout(d))
		}
		return contentopenai.New(entry.APIKey, opts...)
	})

	reg.RegisterLive("gemini-live", func(entry config.ProviderEntry) (live.Provider, error) {
		var opts []livegemini.Option
		if entry.Model != "" {
			opts = append(opts, livegemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, livegemini.WithBaseURL(entry.BaseURL))
		}
		if voice := entry.Option("voice"); voice != "" {
			opts = append(opts, livegemini.WithVoice(voice))
		}
		return livegemini.New(entry.APIKey, opts...)
	})

	reg.RegisterInput(config.DevicePortAudio, func(_ config.DeviceConfig, frameSamples int) (audio.Microphone, error) {
		return portaudio.NewMicrophone(frameSamples), nil
	})
	reg.RegisterInput(config.DeviceFile, func(dev config.DeviceConfig, _ int) (audio.Microphone, error) {
		return pcmfile.NewMicrophone(dev.Path, pcmfile.WithSampleRate(dev.SampleRate)), nil
	})
	reg.RegisterInput(config.DeviceNone, func(config.DeviceConfig, int) (audio.Microphone, error) {
		return audio.NoMicrophone, nil
	})

	reg.RegisterOutput(config.DevicePortAudio, func(dev config.DeviceConfig) (output.Sink, error) {
		return portaudio.OpenSpeaker(dev.SampleRate, int(int64(dev.SampleRate)*int64(output.DefaultBlock)/int64(time.Second)))
	})
	reg.RegisterOutput(config.DeviceFile, func(dev config.DeviceConfig) (output.Sink, error) {
		return pcmfile.CreateSink(dev.Path)
	})
	reg.RegisterOutput(config.DeviceNone, func(config.DeviceConfig) (output.Sink, error) {
		return output.Discard, nil
	})
}

// buildProviders instantiates every provider and device named in cfg. A
// content provider that fails to build is skipped so the rest of the chain
// still serves; live and device failures are fatal.
func buildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	for _, entry := range cfg.Providers.Content {
		p, err := reg.CreateContent(ctx, entry, cfg.Persona)
		if err != nil {
			slog.Warn("content provider unavailable, skipping", "name", entry.Name, "err", err)
			continue
		}
		ps.Content = append(ps.Content, app.NamedContent{Name: entry.Name, Provider: p})
		slog.Info("provider created", "kind", "content", "name", entry.Name)
	}

	p, err := reg.CreateLive(cfg.Providers.Live)
	if err != nil {
		return nil, fmt.Errorf("create live provider %q: %w", cfg.Providers.Live.Name, err)
	}
	ps.Live = p
	slog.Info("provider created", "kind", "live", "name", cfg.Providers.Live.Name)

	if ps.Microphone, err = reg.CreateInput(cfg.Audio.Input, cfg.Audio.FrameSamples); err != nil {
		return nil, fmt.Errorf("create input device %q: %w", cfg.Audio.Input.Device, err)
	}
	if ps.Sink, err = reg.CreateOutput(cfg.Audio.Output); err != nil {
		return nil, fmt.Errorf("create output device %q: %w", cfg.Audio.Output.Device, err)
	}
	return ps, nil
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      Aria Nexus Prime: startup        ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	for i, entry := range cfg.Providers.Content {
		printRow(fmt.Sprintf("Content #%d", i+1), entry.Name, entry.Model)
	}
	if len(cfg.Providers.Content) == 0 {
		printRow("Content", "", "")
	}
	printRow("Live", cfg.Providers.Live.Name, cfg.Providers.Live.Model)
	printRow("Input", string(cfg.Audio.Input.Device), cfg.Audio.Input.Path)
	printRow("Output", string(cfg.Audio.Output.Device), cfg.Audio.Output.Path)
	printRow("Listen addr", cfg.Server.ListenAddr, "")
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(kind, name, detail string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if detail != "" {
		value = name + " / " + detail
	}
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
