package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/menta2k/waste-sorter/internal/utils"
	"github.com/menta2k/waste-sorter/pkg/cropper"
	"github.com/menta2k/waste-sorter/pkg/processing"
	"github.com/menta2k/waste-sorter/pkg/sorter"
)

type imageReport struct {
	Source string              `json:"source"`
	Result *sorter.ImageResult `json:"result,omitempty"`
	Output string              `json:"annotated,omitempty"`
	Crops  []string            `json:"crops,omitempty"`
	Error  string              `json:"error,omitempty"`
}

func newClassifyImageCmd(a *app) *cobra.Command {
	var (
		outDir    string
		outFormat string
		backend   string
		url       string
		model     string
		threshold float64
		harvest   string
		cropSize  int
	)

	cmd := &cobra.Command{
		Use:   "classify-image [path|URL|directory]...",
		Short: "Detect waste in images with the hosted vision model",
		Long: `Sends each image to the configured vision backend, keeps detections above the
confidence threshold and resolves the most confident label against the catalog.
Directories are searched recursively for jpg, png and webp files. With
--harvest, confident detections are cropped into one folder per label, ready
for the augment command.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if backend != "" {
				a.cfg.Vision.Backend = backend
			}
			if url != "" {
				a.cfg.Vision.URL = url
			}
			if model != "" {
				a.cfg.Vision.Model = model
			}
			if cmd.Flags().Changed("threshold") {
				a.cfg.Vision.Threshold = threshold
			}
			if err := a.cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			s, err := a.newSorter(true)
			if err != nil {
				return err
			}
			if outDir != "" {
				if err := utils.EnsureDir(outDir); err != nil {
					return fmt.Errorf("failed to create output directory: %w", err)
				}
			}

			sources, err := expandSources(args)
			if err != nil {
				return err
			}

			processor := processing.NewProcessor()
			crops := cropper.New()
			if cropSize > 0 {
				crops = cropper.NewWithConfig(cropper.CropConfig{PaddingRatio: 0.1, Size: cropSize, MinSide: 16, Quality: 95})
			}
			var reports []imageReport
			failed := 0
			for _, src := range sources {
				rep := imageReport{Source: src}
				img, err := processor.LoadImageSmart(cmd.Context(), src)
				if err == nil {
					rep.Result, err = s.ClassifyImage(cmd.Context(), img)
				}
				if err != nil {
					failed++
					rep.Error = err.Error()
					a.logger.Warn("classification failed", zap.String("source", src), zap.Error(err))
					reports = append(reports, rep)
					continue
				}

				if outDir != "" {
					out := utils.GenerateOutputFilename(src, outDir, "_annotated", outFormat)
					if err := processor.SaveImage(s.Annotate(img, rep.Result), out, outFormat, 92, false); err != nil {
						a.logger.Warn("annotated image save failed", zap.String("path", out), zap.Error(err))
					} else {
						rep.Output = out
					}
				}
				if harvest != "" {
					rep.Crops, err = crops.SaveCrops(harvest, src, crops.CropDetections(img, rep.Result.Detections))
					if err != nil {
						a.logger.Warn("saving crops failed", zap.String("source", src), zap.Error(err))
					}
				}
				reports = append(reports, rep)
			}

			if err := printJSON(cmd.OutOrStdout(), reports); err != nil {
				return err
			}
			if failed == len(sources) {
				return fmt.Errorf("all %d images failed", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "write annotated images to this directory")
	cmd.Flags().StringVar(&outFormat, "ext", "png", "annotated image format: png|jpg|webp")
	cmd.Flags().StringVar(&harvest, "harvest", "", "save each confident detection as a crop under <dir>/<label>/")
	cmd.Flags().IntVar(&cropSize, "crop-size", 0, "resize harvested crops to a square of this side (0 keeps native size)")
	cmd.Flags().StringVar(&backend, "backend", "", "vision backend: ollama or llamacpp (overrides config)")
	cmd.Flags().StringVar(&url, "url", "", "vision server URL (overrides config)")
	cmd.Flags().StringVar(&model, "model", "", "vision model name (overrides config)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "detections must score above this, in (0, 1] (overrides config)")
	return cmd
}

// expandSources replaces directories with the image files they contain.
func expandSources(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		if !utils.DirExists(arg) {
			out = append(out, arg)
			continue
		}
		files, err := utils.ListImageFiles(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", arg, err)
		}
		out = append(out, files...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no images found")
	}
	return out, nil
}
