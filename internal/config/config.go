// Package config loads hush's settings file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/andresmejia3/hush/internal/fuzzy"
	"github.com/andresmejia3/hush/internal/types"
)

// DefaultDataURL serves the fast LSTM models understood by Tesseract 4 and 5.
const DefaultDataURL = "https://github.com/tesseract-ocr/tessdata_fast/raw/main"

// Capture modes.
const (
	CaptureFFmpeg = "ffmpeg"
	CaptureFile   = "file"
)

// Config is the content of settings.yaml. Fields left out of the file keep
// the values from Default.
type Config struct {
	// Language is the Tesseract language tag, e.g. "eng".
	Language string `yaml:"language"`
	// Target is the text whose presence mutes the audio. Regions without a
	// target of their own use it.
	Target string `yaml:"target"`
	// Tolerance is the default fuzzy match tolerance for regions.
	Tolerance float64 `yaml:"tolerance"`
	// Engines is the engine pool size; 0 means one per CPU.
	Engines int `yaml:"engines"`

	Tesseract Tesseract `yaml:"tesseract"`

	Interval    string `yaml:"interval"`
	UnmuteDelay string `yaml:"unmute_delay"`

	// Scale enlarges masked regions before recognition.
	Scale    int    `yaml:"scale"`
	DebugDir string `yaml:"debug_dir,omitempty"`

	// MuteOverworld keeps the "overworld" region active.
	MuteOverworld bool                `yaml:"mute_overworld"`
	Regions       []types.MatchRegion `yaml:"regions"`

	Capture Capture `yaml:"capture"`
	Mute    Mute    `yaml:"mute"`

	interval    time.Duration
	unmuteDelay time.Duration
}

// Tesseract locates the native library and its language data. Empty values
// are discovered at startup.
type Tesseract struct {
	Library string `yaml:"library,omitempty"`
	Data    string `yaml:"data,omitempty"`
	// DownloadURL is where missing <language>.traineddata files are fetched
	// from. An empty value disables downloads.
	DownloadURL string `yaml:"download_url"`
}

// Capture selects the frame source.
type Capture struct {
	Mode string `yaml:"mode"`
	// Window is the title of the window to grab (Windows only).
	Window string `yaml:"window"`
	// Input overrides the ffmpeg input device or URL.
	Input  string `yaml:"input,omitempty"`
	Format string `yaml:"format,omitempty"`
	FPS    int    `yaml:"fps"`
	// File is the still image used by the "file" mode.
	File string `yaml:"file,omitempty"`
}

// Mute holds the commands that switch the audio. "{mute}" in any argument is
// replaced by 1 or 0, "{bool}" by true or false.
type Mute struct {
	Command []string `yaml:"command,omitempty"`
	DryRun  bool     `yaml:"dry_run"`
}

// Default returns the built-in settings: English, the dialogue and overworld
// name plates at 16:9 with 16:10 variants, and the name plate's gold colour.
func Default() *Config {
	gold := [2]types.Color{{R: 230, G: 170, B: 0}, {R: 255, G: 210, B: 10}}
	return &Config{
		Language:    "eng",
		Target:      "Paimon",
		Tolerance:   fuzzy.DefaultTolerance,
		Interval:    "33ms",
		UnmuteDelay: "250ms",
		Scale:       1,
		Tesseract:   Tesseract{DownloadURL: DefaultDataURL},
		Regions: []types.MatchRegion{
			{
				Name: "dialogue",
				Rect: types.Rect{X1: 0.463, Y1: 0.787, X2: 0.537, Y2: 0.829},
				Variants: []types.AspectRect{
					{Aspect: "16:10", Rect: types.Rect{X1: 0.461, Y1: 0.809, X2: 0.538, Y2: 0.841}},
				},
				Lower: gold[0],
				Upper: gold[1],
			},
			{
				Name: "overworld",
				Rect: types.Rect{X1: 0.465, Y1: 0.758, X2: 0.533, Y2: 0.802},
				Variants: []types.AspectRect{
					{Aspect: "16:10", Rect: types.Rect{X1: 0.462, Y1: 0.780, X2: 0.538, Y2: 0.815}},
				},
				Lower: gold[0],
				Upper: gold[1],
			},
		},
		Capture: Capture{
			Mode:   CaptureFFmpeg,
			Window: "Genshin Impact",
			FPS:    30,
		},
		Mute: Mute{Command: defaultMuteCommand()},
	}
}

func defaultMuteCommand() []string {
	switch runtime.GOOS {
	case "linux":
		return []string{"pactl", "set-sink-mute", "@DEFAULT_SINK@", "{mute}"}
	case "darwin":
		return []string{"osascript", "-e", "set volume output muted {bool}"}
	default:
		return nil
	}
}

// DefaultPath is settings.yaml under the user's config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "hush", "settings.yaml"), nil
}

// Load reads path over the defaults. A missing file is not an error.
// The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the settings, fills per-region defaults and parses durations.
func (c *Config) Validate() error {
	if c.Language == "" {
		return errors.New("language must not be empty")
	}
	if c.Engines < 0 {
		return fmt.Errorf("engines must be >= 0, got %d", c.Engines)
	}
	if c.Tolerance < 0 {
		return fmt.Errorf("tolerance must be >= 0, got %v", c.Tolerance)
	}
	if c.Scale < 1 {
		return fmt.Errorf("scale must be >= 1, got %d", c.Scale)
	}

	var err error
	if c.interval, err = time.ParseDuration(c.Interval); err != nil {
		return fmt.Errorf("invalid interval: %w", err)
	}
	if c.interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	if c.unmuteDelay, err = time.ParseDuration(c.UnmuteDelay); err != nil {
		return fmt.Errorf("invalid unmute_delay: %w", err)
	}
	if c.unmuteDelay < 0 {
		return fmt.Errorf("unmute_delay must not be negative, got %s", c.UnmuteDelay)
	}

	if len(c.Regions) == 0 {
		return errors.New("at least one region is required")
	}
	seen := make(map[string]bool)
	for i := range c.Regions {
		r := &c.Regions[i]
		if r.Name == "" {
			return fmt.Errorf("region %d has no name", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate region %q", r.Name)
		}
		seen[r.Name] = true

		if r.Target == "" {
			r.Target = c.Target
		}
		if r.Target == "" {
			return fmt.Errorf("region %q has no target", r.Name)
		}
		if r.Tolerance == nil {
			tol := c.Tolerance
			r.Tolerance = &tol
		} else if *r.Tolerance < 0 {
			return fmt.Errorf("region %q: tolerance must be >= 0, got %v", r.Name, *r.Tolerance)
		}
		if err := validateRect(r.Rect); err != nil {
			return fmt.Errorf("region %q: %w", r.Name, err)
		}
		for _, v := range r.Variants {
			if err := validateRect(v.Rect); err != nil {
				return fmt.Errorf("region %q variant %s: %w", r.Name, v.Aspect, err)
			}
		}
		if r.Lower.R > r.Upper.R || r.Lower.G > r.Upper.G || r.Lower.B > r.Upper.B {
			return fmt.Errorf("region %q: lower colour %v exceeds upper %v", r.Name, r.Lower, r.Upper)
		}
	}

	switch c.Capture.Mode {
	case CaptureFFmpeg:
		if c.Capture.FPS <= 0 {
			return fmt.Errorf("capture fps must be positive, got %d", c.Capture.FPS)
		}
	case CaptureFile:
		if c.Capture.File == "" {
			return errors.New("capture mode \"file\" needs capture.file")
		}
	default:
		return fmt.Errorf("unknown capture mode %q", c.Capture.Mode)
	}
	return nil
}

func validateRect(r types.Rect) error {
	for _, v := range []float64{r.X1, r.Y1, r.X2, r.Y2} {
		if v < 0 || v > 1 {
			return fmt.Errorf("coordinate %v outside [0,1]", v)
		}
	}
	if r.X2 <= r.X1 || r.Y2 <= r.Y1 {
		return errors.New("rectangle is inverted or empty")
	}
	return nil
}

// ActiveRegions returns the regions the monitor should check, dropping the
// overworld region unless MuteOverworld is set.
func (c *Config) ActiveRegions() []types.MatchRegion {
	out := make([]types.MatchRegion, 0, len(c.Regions))
	for _, r := range c.Regions {
		if r.Name == "overworld" && !c.MuteOverworld {
			continue
		}
		out = append(out, r)
	}
	return out
}

// IntervalDuration is the parsed Interval. Valid after Validate.
func (c *Config) IntervalDuration() time.Duration { return c.interval }

// UnmuteDelayDuration is the parsed UnmuteDelay. Valid after Validate.
func (c *Config) UnmuteDelayDuration() time.Duration { return c.unmuteDelay }

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
