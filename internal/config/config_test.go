package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config invalid: %v", err)
	}
	if cfg.IntervalDuration() != 33*time.Millisecond || cfg.UnmuteDelayDuration() != 250*time.Millisecond {
		t.Errorf("Unexpected durations %v / %v", cfg.IntervalDuration(), cfg.UnmuteDelayDuration())
	}
	for _, r := range cfg.Regions {
		if r.Target != "Paimon" || r.Tolerance == nil || *r.Tolerance != 0.4 {
			t.Errorf("region %q did not inherit defaults: target %q tolerance %v", r.Name, r.Target, r.Tolerance)
		}
	}
}

func TestActiveRegions(t *testing.T) {
	cfg := Default()
	if got := cfg.ActiveRegions(); len(got) != 1 || got[0].Name != "dialogue" {
		t.Errorf("Expected only the dialogue region, got %+v", got)
	}
	cfg.MuteOverworld = true
	if got := cfg.ActiveRegions(); len(got) != 2 {
		t.Errorf("Expected both regions, got %d", len(got))
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Language != "eng" || len(cfg.Regions) != 2 {
		t.Errorf("Expected defaults, got %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	data := `
language: chi_sim
target: 派蒙
engines: 2
unmute_delay: 500ms
regions:
  - name: plate
    rect: {x1: 0.4, y1: 0.7, x2: 0.6, y2: 0.8}
    lower: {r: 200, g: 150, b: 0}
    upper: {r: 255, g: 220, b: 40}
    tolerance: 0.2
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Language != "chi_sim" || cfg.Engines != 2 {
		t.Errorf("Top-level overrides lost: %+v", cfg)
	}
	if cfg.Interval != "33ms" {
		t.Errorf("Unset interval should keep its default, got %q", cfg.Interval)
	}
	if cfg.UnmuteDelayDuration() != 500*time.Millisecond {
		t.Errorf("unmute_delay = %v", cfg.UnmuteDelayDuration())
	}
	if len(cfg.Regions) != 1 {
		t.Fatalf("Expected the file's single region, got %d", len(cfg.Regions))
	}
	r := cfg.Regions[0]
	if r.Target != "派蒙" || r.Tolerance == nil || *r.Tolerance != 0.2 || r.Upper.B != 40 {
		t.Errorf("Region not decoded as expected: %+v", r)
	}
}

func TestRegionToleranceZeroMeansExact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	data := `
regions:
  - name: exact
    rect: {x1: 0.4, y1: 0.7, x2: 0.6, y2: 0.8}
    tolerance: 0
  - name: inherited
    rect: {x1: 0.4, y1: 0.7, x2: 0.6, y2: 0.8}
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if got := cfg.Regions[0].MaxDistance(-1); got != 0 {
		t.Errorf("Explicit tolerance 0 became %v", got)
	}
	if got := cfg.Regions[1].MaxDistance(-1); got != cfg.Tolerance {
		t.Errorf("Missing tolerance = %v, want the global %v", got, cfg.Tolerance)
	}
}

func TestDownloadURL(t *testing.T) {
	if got := Default().Tesseract.DownloadURL; got != DefaultDataURL {
		t.Errorf("Default download URL = %q", got)
	}

	path := filepath.Join(t.TempDir(), "settings.yaml")
	data := `
tesseract:
  data: /opt/tessdata
  download_url: ""
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Tesseract.DownloadURL != "" || cfg.Tesseract.Data != "/opt/tessdata" {
		t.Errorf("Expected downloads disabled, got %+v", cfg.Tesseract)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	os.WriteFile(path, []byte("engines: [not a number"), 0644)
	if _, err := Load(path); err == nil {
		t.Error("Expected a parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"Empty language", func(c *Config) { c.Language = "" }, "language"},
		{"Negative engines", func(c *Config) { c.Engines = -1 }, "engines"},
		{"Bad interval", func(c *Config) { c.Interval = "soon" }, "interval"},
		{"Zero interval", func(c *Config) { c.Interval = "0s" }, "interval"},
		{"Negative delay", func(c *Config) { c.UnmuteDelay = "-1s" }, "unmute_delay"},
		{"No regions", func(c *Config) { c.Regions = nil }, "region"},
		{"Empty target", func(c *Config) { c.Target = "" }, "target"},
		{"Duplicate region", func(c *Config) { c.Regions[1].Name = "dialogue" }, "duplicate"},
		{"Rect outside frame", func(c *Config) { c.Regions[0].Rect.X2 = 1.5 }, "outside"},
		{"Inverted variant", func(c *Config) { c.Regions[0].Variants[0].Rect.Y2 = 0 }, "inverted"},
		{"Colour bounds swapped", func(c *Config) { c.Regions[0].Lower.R = 255; c.Regions[0].Upper.R = 10 }, "colour"},
		{"Zero scale", func(c *Config) { c.Scale = 0 }, "scale"},
		{"Negative region tolerance", func(c *Config) { tol := -0.1; c.Regions[0].Tolerance = &tol }, "tolerance"},
		{"Unknown capture", func(c *Config) { c.Capture.Mode = "vnc" }, "capture mode"},
		{"File mode without file", func(c *Config) { c.Capture.Mode = CaptureFile }, "capture.file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	out, err := Default().Marshal()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, out, 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Reloading marshalled defaults failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Reloaded defaults invalid: %v", err)
	}
}
