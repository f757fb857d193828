package monitor

import (
	"context"
	"image"

	"github.com/andresmejia3/hush/internal/fuzzy"
	"github.com/andresmejia3/hush/internal/types"
)

// Extractor reads the text inside one region of a frame.
type Extractor interface {
	Extract(ctx context.Context, frame image.Image, region types.MatchRegion) string
}

// RegionDetector reports the cue as present when any region's text is close
// enough to that region's target. Regions are tried in order and the first
// hit wins.
type RegionDetector struct {
	Extractor Extractor
	Regions   []types.MatchRegion
}

func (d *RegionDetector) Detect(ctx context.Context, frame image.Image) Detection {
	for _, r := range d.Regions {
		text := d.Extractor.Extract(ctx, frame, r)
		if text == "" {
			continue
		}
		if fuzzy.Similar(text, r.Target, r.MaxDistance(fuzzy.DefaultTolerance)) {
			return Detection{Present: true, Region: r.Name, Text: text}
		}
	}
	return Detection{}
}
