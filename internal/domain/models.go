package domain

import (
	"fmt"
	"time"
)

type OCRType string

const (
	OCRTypePlain     OCRType = "ocr"
	OCRTypeFormatted OCRType = "format"
)

func ParseOCRType(s string) (OCRType, error) {
	switch OCRType(s) {
	case "":
		return OCRTypePlain, nil
	case OCRTypePlain, OCRTypeFormatted:
		return OCRType(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidOCRType, s)
}

// Color restricts recognition to text of one color. The zero value means no filter.
type Color string

const (
	ColorNone  Color = ""
	ColorRed   Color = "red"
	ColorGreen Color = "green"
	ColorBlue  Color = "blue"
)

func ParseColor(s string) (Color, error) {
	switch Color(s) {
	case ColorNone, ColorRed, ColorGreen, ColorBlue:
		return Color(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidColor, s)
}

type Image struct {
	Name string
	Data []byte
}

type OCRRequest struct {
	ID     string
	Image  Image
	Type   OCRType
	Box    string
	Color  Color
	Render bool
}

type BatchRequest struct {
	ID     string
	Images []Image
	Type   OCRType
}

type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

type OCRResponse struct {
	Success bool    `json:"success"`
	Result  string  `json:"result"`
	Error   *string `json:"error"`
}

func Failure(msg string) OCRResponse {
	return OCRResponse{Success: false, Result: "", Error: &msg}
}

func Success(text string) OCRResponse {
	return OCRResponse{Success: true, Result: text}
}
