package utils

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrImageTooLarge = errors.New("image dimensions too large")

type ImageProcessor struct {
	maxPixels int64
	log       *zap.Logger
}

// A maxPixels of zero disables the dimension check.
func NewImageProcessor(maxPixels int64, log *zap.Logger) *ImageProcessor {
	return &ImageProcessor{maxPixels: maxPixels, log: log}
}

func (p *ImageProcessor) ToPNG(data []byte) ([]byte, error) {
	// The header alone is enough to size the decode buffer.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); p.maxPixels > 0 && pixels > p.maxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, p.maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}

	p.log.Debug("Image converted to png",
		zap.String("source_format", format),
		zap.Int("input_size", len(data)),
		zap.Int("size", buf.Len()))

	return buf.Bytes(), nil
}

// An empty allow list accepts everything.
func AllowedExtension(filename string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(filename))
	for _, a := range allowed {
		if strings.ToLower(a) == ext {
			return true
		}
	}
	return false
}
