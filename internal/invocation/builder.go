package invocation

import "github.com/gulubao/GOT-OCR2.0/internal/domain"

// Builder turns request fields into the recognizer's command line:
//
//	<program> [args...] --model-name <model> --image-file <path> --type <ocr|format>
//	    [--box <box>] [--color <color>] [--render] [--multi-page]
type Builder struct {
	Program     string
	ProgramArgs []string
	ModelPath   string
}

type Options struct {
	Type      domain.OCRType
	Box       string
	Color     domain.Color
	Render    bool
	MultiPage bool
}

func NewBuilder(program string, programArgs []string, modelPath string) *Builder {
	return &Builder{
		Program:     program,
		ProgramArgs: append([]string(nil), programArgs...),
		ModelPath:   modelPath,
	}
}

// imagePath is a directory when opts.MultiPage is set.
func (b *Builder) Build(imagePath string, opts Options) []string {
	ocrType := opts.Type
	if ocrType == "" {
		ocrType = domain.OCRTypePlain
	}

	argv := make([]string, 0, len(b.ProgramArgs)+12)
	argv = append(argv, b.Program)
	argv = append(argv, b.ProgramArgs...)
	argv = append(argv,
		"--model-name", b.ModelPath,
		"--image-file", imagePath,
		"--type", string(ocrType),
	)

	if opts.Box != "" {
		argv = append(argv, "--box", opts.Box)
	}
	if opts.Color != domain.ColorNone {
		argv = append(argv, "--color", string(opts.Color))
	}
	if opts.Render {
		argv = append(argv, "--render")
	}
	if opts.MultiPage {
		argv = append(argv, "--multi-page")
	}

	return argv
}
