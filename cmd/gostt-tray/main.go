// Command gostt-tray is the dictation daemon: a global hotkey starts and
// stops a recording, the audio is transcribed and optionally rewritten by an
// LLM, and the result is pasted into the focused application. A local HTTP
// API lets a tray or settings UI drive the same session.
//
// Usage:
//
//	gostt-tray [--config path]
//	gostt-tray --text "some text" [--mode email]
//	gostt-tray --url 'gostt://mode/email?text=hello'
//	gostt-tray --download-model base.en
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chaz8081/gostt-tray/internal/audio"
	"github.com/chaz8081/gostt-tray/internal/config"
	"github.com/chaz8081/gostt-tray/internal/history"
	"github.com/chaz8081/gostt-tray/internal/hotkey"
	"github.com/chaz8081/gostt-tray/internal/inject"
	"github.com/chaz8081/gostt-tray/internal/logging"
	"github.com/chaz8081/gostt-tray/internal/models"
	"github.com/chaz8081/gostt-tray/internal/modes"
	"github.com/chaz8081/gostt-tray/internal/notify"
	"github.com/chaz8081/gostt-tray/internal/pipeline"
	"github.com/chaz8081/gostt-tray/internal/provider"
	"github.com/chaz8081/gostt-tray/internal/provider/whispercpp"
	"github.com/chaz8081/gostt-tray/internal/secrets"
	"github.com/chaz8081/gostt-tray/internal/server"
	"github.com/chaz8081/gostt-tray/internal/session"
	"github.com/chaz8081/gostt-tray/internal/settings"
)

type flags struct {
	config        string
	mode          string
	text          string
	url           string
	downloadModel string
	initConfig    bool
}

func main() {
	var f flags
	flag.StringVar(&f.config, "config", "", "path to config file (default: ~/.config/gostt-tray/config.yaml)")
	flag.StringVar(&f.mode, "mode", "", "mode key for --text (default: the active mode)")
	flag.StringVar(&f.text, "text", "", "process this text once, deliver it and exit")
	flag.StringVar(&f.url, "url", "", "handle a gostt://mode/<key>?text=... link and exit")
	flag.StringVar(&f.downloadModel, "download-model", "", "download a whisper model (e.g. base.en) and exit")
	flag.BoolVar(&f.initConfig, "init-config", false, "write the default config file and exit")
	flag.Parse()

	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "gostt-tray: %v\n", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	if f.initConfig {
		path := f.config
		if path == "" {
			path = config.DefaultConfigPath()
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Println("Config written to", path)
		return nil
	}

	cfg, err := loadConfig(f.config)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cfg.LoadEnv()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	_, logCloser, err := logging.Setup(cfg.Log)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	modelStore := models.NewStore(cfg.ModelsDir)
	if f.downloadModel != "" {
		modelStore.Progress = os.Stdout
		path, err := modelStore.Ensure(ctx, f.downloadModel)
		if err != nil {
			return err
		}
		fmt.Println("Model ready at", path)
		return nil
	}

	var oneShot *session.DeepLink
	switch {
	case f.url != "":
		link, err := session.ParseDeepLink(f.url)
		if err != nil {
			return err
		}
		oneShot = &link
	case f.text != "":
		oneShot = &session.DeepLink{ModeKey: f.mode, Text: f.text}
	}

	app, err := newApp(cfg, modelStore, oneShot == nil)
	if err != nil {
		return err
	}
	defer app.close()

	if oneShot != nil {
		return app.processOnce(ctx, *oneShot)
	}

	printBanner(cfg)
	return app.serve(ctx)
}

// app holds the long-lived components.
type app struct {
	cfg      *config.Config
	settings *settings.Store
	modes    *modes.Loader
	history  *history.SQLiteStore
	secrets  *secrets.FileStore
	models   *models.Store
	registry *provider.Registry
	engine   *whispercpp.Engine
	recorder *audio.Recorder
	injector *inject.Injector
	machine  *session.Machine
}

// newApp opens stores and wires the session machine. withRecorder is false
// for one-shot text runs, which never touch the microphone.
func newApp(cfg *config.Config, modelStore *models.Store, withRecorder bool) (*app, error) {
	a := &app{cfg: cfg, models: modelStore}

	var err error
	a.settings, err = settings.Open(cfg.SettingsPath())
	if err != nil {
		return nil, err
	}

	a.modes = modes.NewLoader(cfg.ModesDir())
	if err := a.modes.EnsureDir(); err != nil {
		slog.Warn("[Main] mode directory unavailable, only built-in modes will load", "dir", cfg.ModesDir(), "error", err)
	}

	a.history, err = history.Open(cfg.HistoryPath())
	if err != nil {
		return nil, err
	}

	a.secrets = secrets.NewFileStore(cfg.SecretsPath())
	a.engine = whispercpp.New(modelStore)
	a.registry = newRegistry(cfg, a.settings, a.secrets, a.engine)

	var capture session.Capture = noCapture{}
	if withRecorder {
		a.recorder, err = audio.NewRecorder(cfg.Audio.MinDuration)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("audio: %w (grant microphone access in the OS privacy settings)", err)
		}
		capture = a.recorder
	}

	a.injector = inject.NewInjector(cfg.Inject.Method, cfg.Inject.PasteDelay)

	opts := session.Options{ProcessingTimeout: cfg.Processing.Timeout}
	if cfg.Audio.RetainAudio {
		opts.AudioDir = cfg.AudioDir()
	}
	a.machine = session.New(session.Deps{
		Capture:  capture,
		Modes:    a.modes,
		Pipeline: pipeline.New(a.registry),
		History:  a.history,
		Deliver:  a.injector,
		Context:  a.injector,
		Settings: a.settings,
	}, opts)
	return a, nil
}

// processOnce runs text through a mode and delivers it.
func (a *app) processOnce(ctx context.Context, link session.DeepLink) error {
	a.machine.MarkReady()
	res, err := a.machine.ProcessText(ctx, link.ModeKey, link.Text)
	if err != nil {
		return err
	}
	if res.Warning != "" {
		slog.Warn("[Main] processed with warnings", "warning", res.Warning)
	}
	fmt.Println(res.Output)
	return nil
}

// serve runs the daemon until ctx is cancelled.
func (a *app) serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	watcher := modes.NewWatcher(a.modes.Dir(), 0, func() {
		a.machine.Announce(session.EventModesChanged)
	})
	if err := watcher.Start(); err != nil {
		slog.Warn("[Main] mode hot-reload disabled", "error", err)
	}
	defer watcher.Stop()

	g.Go(func() error {
		a.warmUp(gctx)
		return nil
	})

	if a.cfg.Notify {
		events, unsubscribe := a.machine.Subscribe(16)
		g.Go(func() error {
			defer unsubscribe()
			notify.Run(gctx, events, notify.Desktop{})
			return nil
		})
	}

	if a.cfg.Server.Enabled {
		srv := server.New(server.Deps{
			Session:     a.machine,
			Modes:       a.modes,
			Settings:    a.settings,
			Credentials: a.secrets,
			Devices:     a.recorder,
			History:     a.history,
			Providers:   a.registry,
			Models:      a.models,
		})
		g.Go(func() error { return srv.Run(gctx, a.cfg.Server.Addr) })
	}

	if a.cfg.Hotkey.Enabled {
		listener := hotkey.NewListener(a.cfg.Hotkey.Keys, a.cfg.Hotkey.Mode)
		go listener.Start()
		g.Go(func() error {
			hotkey.Drive(gctx, listener.Events(), a.machine)
			listener.Stop()
			return nil
		})
		slog.Info("[Main] hotkey ready", "keys", strings.Join(a.cfg.Hotkey.Keys, "+"), "mode", a.cfg.Hotkey.Mode)
	}

	err := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if cerr := a.machine.Close(closeCtx); cerr != nil {
		slog.Warn("[Main] sessions still processing at shutdown", "error", cerr)
	}
	slog.Info("[Main] goodbye")

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// warmUp makes sure the default local model is present and loaded, then
// opens the machine for recording. A failed warm-up still marks the machine
// ready since sessions can use other providers.
func (a *app) warmUp(ctx context.Context) {
	defer a.machine.MarkReady()

	s := a.settings.Get()
	if s.DefaultSTTProvider != whispercpp.ProviderName {
		return
	}
	start := time.Now()
	if err := a.engine.Preload(ctx, s.DefaultSTTModel); err != nil {
		slog.Warn("[Main] model warm-up failed", "model", s.DefaultSTTModel, "error", err)
		return
	}
	slog.Info("[Main] model loaded", "model", s.DefaultSTTModel, "took", time.Since(start).Round(time.Millisecond))
}

func (a *app) close() {
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			slog.Warn("[Main] closing recorder", "error", err)
		}
	}
	if a.engine != nil {
		a.engine.Close()
	}
	if a.history != nil {
		a.history.Close()
	}
}

// noCapture backs one-shot runs; recording is never started there.
type noCapture struct{}

func (noCapture) Start(string) error { return audio.ErrDeviceUnavailable }

func (noCapture) Stop() (*audio.Recording, error) { return nil, audio.ErrNotCapturing }

func (noCapture) Abort() {}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}
	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== gostt-tray ===")
	fmt.Printf("  Config:  %s\n", cfg.ConfigDir())
	fmt.Printf("  Data:    %s\n", cfg.DataDir)
	if cfg.Hotkey.Enabled {
		fmt.Printf("  Hotkey:  %s (%s mode)\n", strings.Join(cfg.Hotkey.Keys, "+"), cfg.Hotkey.Mode)
	}
	fmt.Printf("  Inject:  %s\n", cfg.Inject.Method)
	if cfg.Server.Enabled {
		fmt.Printf("  API:     http://%s\n", cfg.Server.Addr)
	}
	fmt.Printf("  Log:     %s\n", cfg.Log.Level)
	fmt.Println("==================")
}
