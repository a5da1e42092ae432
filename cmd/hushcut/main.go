// Command hushcut shortens a recording by playing its non-speech parts
// faster. It detects speech with a VAD prober, builds a speech/non-speech
// timeline and drives ffmpeg to cut, re-time and join the pieces.
//
// Usage:
//
//	hushcut [flags] -i input.mp4
//	hushcut [flags] a.mp4 b.mkv ...
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/hushcut/internal/app"
	"github.com/MrWong99/hushcut/internal/config"
	"github.com/MrWong99/hushcut/internal/health"
	"github.com/MrWong99/hushcut/internal/observe"
	"github.com/MrWong99/hushcut/pkg/audio"
	"github.com/MrWong99/hushcut/pkg/provider/vad"
	"github.com/MrWong99/hushcut/pkg/provider/vad/energy"
	"github.com/MrWong99/hushcut/pkg/provider/vad/probfile"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

// errUsage marks command-line mistakes; run exits with status 2 for them.
var errUsage = errors.New("usage error")

// cliOptions is the parsed command line.
type cliOptions struct {
	configPath string
	inputs     []string
	output     string
	probsPath  string
	speed      float64
	listenAddr string
	dryRun     bool
	keepTemp   bool
}

// parseArgs parses args (without the program name). Flag diagnostics and
// usage text go to stderr. -h returns [flag.ErrHelp]; every other mistake
// wraps errUsage.
func parseArgs(args []string, stderr io.Writer) (*cliOptions, error) {
	var (
		o     cliOptions
		input string
	)
	fs := flag.NewFlagSet("hushcut", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "path to the YAML configuration file (defaults apply when empty)")
	fs.StringVar(&input, "input", "", "media file to process (more may follow as arguments)")
	fs.StringVar(&input, "i", "", "shorthand for -input")
	fs.StringVar(&o.output, "output", "", "output path, only valid with a single input")
	fs.StringVar(&o.output, "o", "", "shorthand for -output")
	fs.StringVar(&o.probsPath, "probs", "", "precomputed speech probabilities; selects the probfile prober")
	fs.Float64Var(&o.speed, "speed", 0, "speed factor for non-speech spans (overrides pipeline.speed_factor)")
	fs.StringVar(&o.listenAddr, "listen", "", "diagnostics listen address (overrides server.listen_addr)")
	fs.BoolVar(&o.dryRun, "dry-run", false, "plan only, do not run ffmpeg")
	fs.BoolVar(&o.keepTemp, "keep-temp", false, "keep intermediate segment files")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}

	o.inputs = fs.Args()
	if input != "" {
		o.inputs = append([]string{input}, o.inputs...)
	}
	if len(o.inputs) == 0 {
		fs.Usage()
		return nil, fmt.Errorf("%w: no input file given", errUsage)
	}
	if o.output != "" && len(o.inputs) > 1 {
		return nil, fmt.Errorf("%w: -output cannot be used with more than one input", errUsage)
	}
	if o.speed < 0 {
		return nil, fmt.Errorf("%w: -speed %v must not be negative", errUsage, o.speed)
	}
	return &o, nil
}

func run(args []string) int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	opts, err := parseArgs(args, os.Stderr)
	switch {
	case errors.Is(err, flag.ErrHelp):
		return 0
	case err != nil:
		fmt.Fprintf(os.Stderr, "hushcut: %v\n", err)
		return 2
	}
	inputs := opts.inputs

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "hushcut: config file %q not found\n", opts.configPath)
		} else {
			fmt.Fprintf(os.Stderr, "hushcut: %v\n", err)
		}
		return 1
	}
	if opts.probsPath != "" {
		cfg.VAD.Prober = config.ProviderEntry{Name: "probfile", Options: map[string]any{"path": opts.probsPath}}
	}
	if opts.speed != 0 {
		cfg.Pipeline.SpeedFactor = opts.speed
	}
	if opts.listenAddr != "" {
		cfg.Server.ListenAddr = opts.listenAddr
	}
	if opts.keepTemp {
		cfg.Pipeline.KeepTemp = true
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "hushcut: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Debug("hushcut starting",
		"version", version,
		"config", opts.configPath,
		"inputs", len(inputs),
		"prober", cfg.VAD.Prober.Name,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Diagnostics listener (optional) ───────────────────────────────────────
	if cfg.Server.ListenAddr != "" {
		srv := newDiagnosticsServer(cfg, inputs[0])
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("diagnostics server error", "err", err)
			}
		}()
		slog.Info("diagnostics listening", "addr", cfg.Server.ListenAddr)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	// ── Prober registry ───────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProbers(reg, cfg.VAD.WindowSize)
	prober, err := reg.CreateProber(cfg.VAD.Prober)
	if err != nil {
		slog.Error("failed to create VAD prober", "name", cfg.VAD.Prober.Name, "err", err)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────────
	ffmpegDecoder := audio.NewFFmpegDecoder(
		audio.WithFFmpegPath(cfg.Pipeline.FFmpegPath),
		audio.WithSampleRate(cfg.VAD.SampleRate),
	)
	decoder := audio.ByExtension{
		WAV:   &audio.WAVDecoder{SampleRate: cfg.VAD.SampleRate},
		Other: ffmpegDecoder,
	}
	application, err := app.New(cfg, prober,
		app.WithDecoder(decoder),
		app.WithDryRun(opts.dryRun),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	code := 0
	for _, src := range inputs {
		report, err := application.Run(ctx, app.Input{SourcePath: src, OutputPath: opts.output})
		if err != nil {
			slog.Error("run failed", "source", src, "stage", app.StageOf(err), "err", err)
			code = 1
			if ctx.Err() != nil {
				break
			}
			continue
		}
		printSummary(report)
	}
	return code
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProbers wires the prober factories that ship with hushcut.
// window is vad.window_size; a prober's own window_size option overrides it.
func registerBuiltinProbers(reg *config.Registry, window int) {
	reg.RegisterProber("energy", func(entry config.ProviderEntry) (vad.Prober, error) {
		opts := []energy.Option{energy.WithWindowSize(optInt(entry.Options, "window_size", window))}
		if v, ok := optFloat(entry.Options, "midpoint_db"); ok {
			opts = append(opts, energy.WithMidpoint(v))
		}
		if v, ok := optFloat(entry.Options, "slope"); ok {
			opts = append(opts, energy.WithSlope(v))
		}
		return energy.New(opts...)
	})

	reg.RegisterProber("probfile", func(entry config.ProviderEntry) (vad.Prober, error) {
		path := optString(entry.Options, "path")
		if path == "" {
			return nil, errors.New("probfile prober requires options.path")
		}
		return probfile.New(path, probfile.WithWindowSize(optInt(entry.Options, "window_size", window)))
	})

	for _, name := range reg.ProberNames() {
		slog.Debug("registered prober", "name", name)
	}
}

// ── Diagnostics ───────────────────────────────────────────────────────────────

func newDiagnosticsServer(cfg *config.Config, firstInput string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(
		health.BinaryChecker(cfg.Pipeline.FFmpegPath),
		health.DirChecker("source_dir", filepath.Dir(firstInput)),
	).Register(mux)

	return &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ── Summary ───────────────────────────────────────────────────────────────────

func printSummary(r *app.Report) {
	speech := 0
	for _, s := range r.Spans {
		if s.Speech {
			speech++
		}
	}
	fmt.Printf("%s\n", r.Source)
	fmt.Printf("  spans      : %d (%d speech, %d non-speech)\n", len(r.Spans), speech, len(r.Spans)-speech)
	fmt.Printf("  speech     : %.2fs\n", r.SpeechSeconds())
	fmt.Printf("  non-speech : %.2fs\n", r.SilenceSeconds())
	extracts, speedAdjusts, _ := r.Plan.Counts()
	fmt.Printf("  operations : %d (%d extract, %d speed adjust, 1 concat)\n", len(r.Plan.Ops), extracts, speedAdjusts)
	if r.DryRun {
		fmt.Printf("  plan dir   : %s (dry run, nothing written)\n", r.Plan.WorkDir)
		for _, op := range r.Plan.Ops {
			fmt.Printf("    %s -> %s\n", op, op.Output)
		}
		return
	}
	if len(r.Result.Skipped) > 0 {
		fmt.Printf("  skipped    : spans %v\n", r.Result.Skipped)
	}
	fmt.Printf("  output     : %s\n", r.Result.Output)
	fmt.Printf("  elapsed    : %s\n", r.Elapsed.Round(time.Millisecond))
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map.
// Returns "" if the key is absent or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optFloat extracts a number from a provider Options map. YAML decodes
// integers as int, so both are accepted.
func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// optInt extracts an integer from a provider Options map, or returns def.
func optInt(opts map[string]any, key string, def int) int {
	if v, ok := opts[key].(int); ok {
		return v
	}
	return def
}
