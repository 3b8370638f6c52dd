package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gulubao/GOT-OCR2.0/internal/config"
	"github.com/gulubao/GOT-OCR2.0/internal/domain"
	"github.com/gulubao/GOT-OCR2.0/internal/server"
	"github.com/gulubao/GOT-OCR2.0/pkg/logger"
)

type recognizeFlags struct {
	image   string
	ocrType string
	box     string
	color   string
	render  bool
}

// newRecognizeCmd runs one local image through the same pipeline the
// servers use and prints the JSON response.
func newRecognizeCmd() *cobra.Command {
	var f recognizeFlags

	cmd := &cobra.Command{
		Use:   "recognize",
		Short: "Recognize a single local image and print the JSON response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request()
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			log, err := logger.New(cfg.App.LogLevel)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer log.Sync()

			pipeline, err := server.NewPipeline(cfg, log)
			if err != nil {
				return err
			}

			resp, runErr := pipeline.Service.Recognize(cmd.Context(), req)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			enc.SetIndent("", "  ")
			if err := enc.Encode(resp); err != nil {
				return err
			}
			if runErr != nil {
				return fmt.Errorf("recognition failed: %w", runErr)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.image, "image", "i", "", "image file to recognize")
	cmd.Flags().StringVarP(&f.ocrType, "type", "t", string(domain.OCRTypePlain), "recognition mode: ocr or format")
	cmd.Flags().StringVar(&f.box, "box", "", "region x1,y1,x2,y2")
	cmd.Flags().StringVar(&f.color, "color", "", "color filter: red, green or blue")
	cmd.Flags().BoolVar(&f.render, "render", false, "render formatted output")
	_ = cmd.MarkFlagRequired("image")

	return cmd
}

func (f recognizeFlags) request() (domain.OCRRequest, error) {
	ocrType, err := domain.ParseOCRType(f.ocrType)
	if err != nil {
		return domain.OCRRequest{}, err
	}
	color, err := domain.ParseColor(f.color)
	if err != nil {
		return domain.OCRRequest{}, err
	}
	box, err := domain.ParseBox(f.box)
	if err != nil {
		return domain.OCRRequest{}, err
	}

	data, err := os.ReadFile(f.image)
	if err != nil {
		return domain.OCRRequest{}, fmt.Errorf("failed to read image: %w", err)
	}

	return domain.OCRRequest{
		Image:  domain.Image{Name: filepath.Base(f.image), Data: data},
		Type:   ocrType,
		Box:    box,
		Color:  color,
		Render: f.render,
	}, nil
}
