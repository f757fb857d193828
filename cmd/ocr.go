package cmd

import (
	"context"
	"fmt"
	"image"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/hush/internal/capture"
	"github.com/andresmejia3/hush/internal/fuzzy"
	"github.com/andresmejia3/hush/internal/pool"
	"github.com/andresmejia3/hush/internal/region"
	"github.com/andresmejia3/hush/internal/tesseract"
	"github.com/andresmejia3/hush/internal/types"
	"github.com/andresmejia3/hush/internal/utils"
	"github.com/spf13/cobra"
	"golang.org/x/image/draw"
)

var (
	ocrOpts Options
	ocrRaw  bool
)

var ocrCmd = &cobra.Command{
	Use:   "ocr <image_path>",
	Short: "Run the match regions over a screenshot and show what was read",
	Long: "Reads every configured region of a PNG or JPEG screenshot and reports the text, " +
		"its distance from the target and whether it would mute. Use it to tune regions and colours.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runOCR(cmd.Context(), cmd, args[0], ocrOpts)
	},
}

func init() {
	addEngineFlags(ocrCmd, &ocrOpts)
	ocrCmd.Flags().BoolVar(&ocrRaw, "raw", false, "Recognize the whole image without masks or whitelist")
	rootCmd.AddCommand(ocrCmd)
}

// ocrResult is one row of the ocr report.
type ocrResult struct {
	Region   string
	Text     string
	Distance float64
	Match    bool
}

// readRegions extracts every region from img and scores it against the region's target.
func readRegions(ctx context.Context, m *region.Matcher, img image.Image, regions []types.MatchRegion) []ocrResult {
	out := make([]ocrResult, 0, len(regions))
	for _, r := range regions {
		text := m.Extract(ctx, img, r)
		res := ocrResult{Region: r.Name, Text: text, Distance: fuzzy.Ratio(text, r.Target)}
		res.Match = text != "" && res.Distance <= r.MaxDistance(fuzzy.DefaultTolerance)
		out = append(out, res)
	}
	return out
}

// grayBitmap converts a whole image into an engine bitmap.
func grayBitmap(img image.Image) types.Bitmap {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return types.BitmapFromGray(gray)
}

func runOCR(ctx context.Context, cmd *cobra.Command, imagePath string, opts Options) error {
	// Screenshots are read with every region unless --region narrows them down.
	if !cmd.Flags().Changed("region") {
		for _, r := range Cfg.Regions {
			opts.Regions = append(opts.Regions, r.Name)
		}
	}
	// A single image needs a single engine unless asked otherwise.
	if !cmd.Flags().Changed("engines") && Cfg.Engines == 0 {
		Cfg.Engines = 1
	}
	regions, err := validateWatchFlags(cmd, Cfg, &opts)
	if err != nil {
		utils.ShowError("Invalid settings", err, nil)
		return err
	}

	img, err := capture.DecodeFile(imagePath)
	if err != nil {
		utils.ShowError("Failed to read image file", err, nil)
		return err
	}

	p, err := startPool(ctx, Cfg)
	if err != nil {
		utils.ShowError("Failed to start OCR engines", err, nil)
		return err
	}
	defer p.Close()

	if ocrRaw {
		fmt.Fprintln(os.Stderr, "🔍 Reading the whole image...")
		text, err := p.Recognize(ctx, pool.Job{Bitmap: grayBitmap(img), Mode: tesseract.PSMAuto})
		if err != nil {
			utils.ShowError("Recognition failed", err, nil)
			return err
		}
		fmt.Println(text)
		return nil
	}

	fmt.Fprintf(os.Stderr, "🔍 Reading %d regions of a %dx%d image...\n", len(regions), img.Bounds().Dx(), img.Bounds().Dy())
	matcher := &region.Matcher{Pool: p, Scale: Cfg.Scale, DebugDir: Cfg.DebugDir, Logger: logger}
	results := readRegions(ctx, matcher, img, regions)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "REGION\tTEXT\tDISTANCE\tMATCH")
	fmt.Fprintln(w, "------\t----\t--------\t-----")
	for _, r := range results {
		match := "-"
		if r.Match {
			match = "✅"
		}
		fmt.Fprintf(w, "%s\t%q\t%.2f\t%s\n", r.Region, r.Text, r.Distance, match)
	}
	w.Flush()
	return nil
}
