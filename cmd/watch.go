package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/andresmejia3/hush/internal/capture"
	"github.com/andresmejia3/hush/internal/config"
	"github.com/andresmejia3/hush/internal/monitor"
	"github.com/andresmejia3/hush/internal/mute"
	"github.com/andresmejia3/hush/internal/pool"
	"github.com/andresmejia3/hush/internal/region"
	"github.com/andresmejia3/hush/internal/types"
	"github.com/andresmejia3/hush/internal/utils"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var watchOpts Options

var watchCmd = &cobra.Command{
	Use:         "watch",
	Short:       "Watch the game and mute it while the target name is on screen",
	Annotations: map[string]string{dbAnnotation: "optional"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runWatch(cmd.Context(), cmd, watchOpts)
	},
}

func init() {
	addEngineFlags(watchCmd, &watchOpts)
	addWatchFlags(watchCmd, &watchOpts)
	rootCmd.AddCommand(watchCmd)
}

// addWatchFlags registers the capture, timing and mute flags.
func addWatchFlags(cmd *cobra.Command, opts *Options) {
	cmd.Flags().StringVar(&opts.Interval, "interval", "", "Time between detection passes (default 33ms)")
	cmd.Flags().StringVar(&opts.UnmuteDelay, "unmute-delay", "", "Pause before unmuting once the name is gone (default 250ms)")
	cmd.Flags().StringVarP(&opts.Window, "window", "w", "", "Window title to capture (Windows)")
	cmd.Flags().StringVar(&opts.Input, "input", "", "ffmpeg input device, overrides --window")
	cmd.Flags().StringVar(&opts.Format, "format", "", "ffmpeg input format (gdigrab, x11grab, avfoundation, ...)")
	cmd.Flags().StringVarP(&opts.ImagePath, "image", "i", "", "Watch a still image instead of the screen (reloaded when it changes)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Log mute changes instead of running the mute command")
	cmd.Flags().BoolVar(&opts.MuteOverworld, "mute-overworld", false, "Also watch the overworld name plate")
}

// addEngineFlags registers the flags shared by every command that runs OCR.
func addEngineFlags(cmd *cobra.Command, opts *Options) {
	cmd.Flags().StringVarP(&opts.Language, "language", "l", "", "Tesseract language (default from settings, eng)")
	cmd.Flags().StringVarP(&opts.Target, "target", "t", "", "Name to listen for (default from settings, Paimon)")
	cmd.Flags().IntVarP(&opts.NumEngines, "engines", "e", 0, "Number of parallel OCR engines (0 = one per CPU)")
	cmd.Flags().StringVar(&opts.Library, "lib", "", "Path to the libtesseract shared library")
	cmd.Flags().StringVar(&opts.DataPath, "tessdata", "", "Path to the tessdata directory")
	cmd.Flags().IntVar(&opts.Scale, "scale", 0, "Enlarge masked regions by this factor before OCR")
	cmd.Flags().StringVarP(&opts.DebugDir, "debug-dir", "d", "", "Save every masked region as a PNG in this directory")
	cmd.Flags().StringSliceVarP(&opts.Regions, "region", "r", nil, "Only use these regions (repeatable)")
}

// applyFlags copies every flag the user actually set onto cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config, opts *Options) {
	set := cmd.Flags().Changed
	if set("language") {
		cfg.Language = opts.Language
	}
	if set("target") {
		cfg.Target = opts.Target
		// An explicit target wins over per-region ones.
		for i := range cfg.Regions {
			cfg.Regions[i].Target = opts.Target
		}
	}
	if set("engines") {
		cfg.Engines = opts.NumEngines
	}
	if set("lib") {
		cfg.Tesseract.Library = opts.Library
	}
	if set("tessdata") {
		cfg.Tesseract.Data = opts.DataPath
	}
	if set("scale") {
		cfg.Scale = opts.Scale
	}
	if set("debug-dir") {
		cfg.DebugDir = opts.DebugDir
	}
	if set("interval") {
		cfg.Interval = opts.Interval
	}
	if set("unmute-delay") {
		cfg.UnmuteDelay = opts.UnmuteDelay
	}
	if set("window") {
		cfg.Capture.Window = opts.Window
	}
	if set("input") {
		cfg.Capture.Input = opts.Input
	}
	if set("format") {
		cfg.Capture.Format = opts.Format
	}
	if set("image") {
		cfg.Capture.Mode = config.CaptureFile
		cfg.Capture.File = opts.ImagePath
	}
	if set("dry-run") {
		cfg.Mute.DryRun = opts.DryRun
	}
	if set("mute-overworld") {
		cfg.MuteOverworld = opts.MuteOverworld
	}
}

// validateWatchFlags merges the flags into cfg, validates the result and
// returns the regions to watch.
func validateWatchFlags(cmd *cobra.Command, cfg *config.Config, opts *Options) ([]types.MatchRegion, error) {
	applyFlags(cmd, cfg, opts)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Capture.Mode == config.CaptureFile {
		if _, err := os.Stat(cfg.Capture.File); err != nil {
			return nil, fmt.Errorf("image not readable: %w", err)
		}
	}
	if cfg.DebugDir != "" {
		if err := os.MkdirAll(cfg.DebugDir, 0755); err != nil {
			return nil, fmt.Errorf("cannot create debug dir: %w", err)
		}
	}
	return selectRegions(cfg, opts.Regions)
}

// selectRegions returns the named regions, or the configured active ones when names is empty.
func selectRegions(cfg *config.Config, names []string) ([]types.MatchRegion, error) {
	if len(names) == 0 {
		return cfg.ActiveRegions(), nil
	}
	var out []types.MatchRegion
	for _, name := range names {
		i := slices.IndexFunc(cfg.Regions, func(r types.MatchRegion) bool { return r.Name == name })
		if i < 0 {
			return nil, fmt.Errorf("unknown region %q", name)
		}
		out = append(out, cfg.Regions[i])
	}
	return out, nil
}

// startPool opens the engines behind a progress bar.
func startPool(ctx context.Context, cfg *config.Config) (*pool.Pool, error) {
	factory, where, err := engineFactory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	size := cfg.Engines
	if size <= 0 {
		size = runtime.NumCPU()
	}
	fmt.Fprintf(os.Stderr, "📚 Tesseract: %s, language %q, %s colour mask\n", where, cfg.Language, region.MaskBackend)
	fmt.Fprintf(os.Stderr, "⚙️  Starting %d OCR Engines...\n", size)

	bar := progressbar.NewOptions(size,
		progressbar.OptionSetDescription("🧠 Loading engines"),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	p, err := pool.New(ctx, size, factory,
		pool.WithReadyHook(func(int) { bar.Add(1) }),
		pool.WithLogger(logger),
	)
	bar.Finish()
	return p, err
}

// startSource opens the configured frame source. The returned SafeCommand is
// the ffmpeg process, if any, for error reports.
func startSource(ctx context.Context, cfg *config.Config) (monitor.Source, *utils.SafeCommand, error) {
	if cfg.Capture.Mode == config.CaptureFile {
		fmt.Fprintf(os.Stderr, "🖼️  Watching image %s\n", cfg.Capture.File)
		return &capture.File{Path: cfg.Capture.File}, nil, nil
	}

	spec := utils.CaptureSpec{
		Format: cfg.Capture.Format,
		Input:  cfg.Capture.Input,
		Window: cfg.Capture.Window,
		FPS:    cfg.Capture.FPS,
	}
	format, input := utils.CaptureInput(runtime.GOOS, spec)
	fmt.Fprintf(os.Stderr, "📺 Capturing %s via %s at %d fps\n", input, format, spec.FPS)

	src, err := capture.StartFFmpeg(ctx, spec, logger)
	if err != nil {
		return nil, nil, err
	}
	fmt.Fprintln(os.Stderr, "⏳ Waiting for the game window. ffmpeg is restarted until it shows up.")
	return src, src.Command(), nil
}

// newMuter picks the mute controller.
func newMuter(cfg *config.Config) (monitor.Muter, error) {
	if cfg.Mute.DryRun {
		return mute.DryRun{Logger: logger}, nil
	}
	if len(cfg.Mute.Command) == 0 {
		fmt.Fprintf(os.Stderr, "⚠️  No mute command configured for %s. Running dry (set mute.command in the settings file).\n", runtime.GOOS)
		return mute.DryRun{Logger: logger}, nil
	}
	c, err := mute.NewCommand(cfg.Mute.Command, logger)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// consoleSink prints transitions for the user.
func consoleSink() monitor.Sink {
	return monitor.SinkFunc(func(ctx context.Context, ev types.Event) error {
		fmt.Fprintln(os.Stderr, describeEvent(ev))
		return nil
	})
}

func describeEvent(ev types.Event) string {
	switch {
	case ev.Kind == types.CueAppeared:
		return fmt.Sprintf("🔇 %s Muting: %q in %s", ev.At.Format("15:04:05"), ev.Text, ev.Region)
	case ev.Forced:
		return fmt.Sprintf("🔊 %s Unmuting on exit.", ev.At.Format("15:04:05"))
	default:
		return fmt.Sprintf("🔊 %s Unmuting the game.", ev.At.Format("15:04:05"))
	}
}

// newMonitor wires the detection chain: matcher -> detector -> monitor.
func newMonitor(cfg *config.Config, rec region.Recognizer, src monitor.Source, regions []types.MatchRegion, sinks []monitor.Sink) *monitor.Monitor {
	matcher := &region.Matcher{
		Pool:     rec,
		Scale:    cfg.Scale,
		DebugDir: cfg.DebugDir,
		Logger:   logger,
	}
	return &monitor.Monitor{
		Source:      src,
		Detector:    &monitor.RegionDetector{Extractor: matcher, Regions: regions},
		Sinks:       sinks,
		Interval:    cfg.IntervalDuration(),
		UnmuteDelay: cfg.UnmuteDelayDuration(),
		Logger:      logger,
	}
}

// runWatch loads the engines, starts capturing and runs the monitor until interrupted.
func runWatch(ctx context.Context, cmd *cobra.Command, opts Options) error {
	// 1. Settings
	regions, err := validateWatchFlags(cmd, Cfg, &opts)
	if err != nil {
		utils.ShowError("Invalid settings", err, nil)
		return err
	}

	// 2. Engine Pool
	p, err := startPool(ctx, Cfg)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		utils.ShowError("Failed to start OCR engines", err, nil)
		return err
	}
	defer p.Close()

	// 3. Frame Source
	src, proc, err := startSource(ctx, Cfg)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		utils.ShowError("Failed to start capture", err, proc)
		return err
	}

	// 4. Sinks
	muter, err := newMuter(Cfg)
	if err != nil {
		utils.ShowError("Invalid mute command", err, nil)
		return err
	}
	sinks := []monitor.Sink{monitor.MuteSink{Muter: muter}, consoleSink()}

	var sessionID int64
	if DB != nil {
		names := make([]string, len(regions))
		for i, r := range regions {
			names[i] = r.Name
		}
		sessionID, err = DB.StartSession(ctx, Cfg.Language, names, p.Size())
		if err != nil {
			utils.ShowError("Failed to register watch session", err, nil)
			return err
		}
		sinks = append(sinks, monitor.StoreSink{Recorder: DB, SessionID: sessionID})
		fmt.Fprintf(os.Stderr, "🗄️  Logging events to session %d\n", sessionID)
	}

	// 5. Detection Loop
	targets := make([]string, len(regions))
	for i, r := range regions {
		targets[i] = fmt.Sprintf("%s=%q", r.Name, r.Target)
	}
	fmt.Fprintf(os.Stderr, "👂 Listening for %s. Press Ctrl+C to stop.\n", strings.Join(targets, ", "))

	mon := newMonitor(Cfg, p, src, regions, sinks)
	if err := mon.Run(ctx); err != nil {
		utils.ShowError("Monitor stopped", err, nil)
		return err
	}

	// 6. Cleanup & Summary
	if DB != nil {
		if err := DB.EndSession(context.Background(), sessionID, mon.Stats().Ticks); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Failed to close session %d: %v\n", sessionID, err)
		}
	}
	printSummary(p.Stats(), mon.Stats())
	return nil
}

func printSummary(engines []pool.InstanceStats, st monitor.Stats) {
	fmt.Fprintf(os.Stderr, "\n🏁 Stopped after %d passes (%d without a frame). Muted %d times.\n",
		st.Ticks, st.FrameErrors, st.Appeared)

	w := tabwriter.NewWriter(os.Stderr, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ENGINE\tJOBS\tEMPTY")
	fmt.Fprintln(w, "------\t----\t-----")
	for _, e := range engines {
		fmt.Fprintf(w, "%d\t%d\t%d\n", e.ID, e.Jobs, e.Empty)
	}
	w.Flush()
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
