package invocation

import (
	"reflect"
	"testing"

	"github.com/gulubao/GOT-OCR2.0/internal/domain"
)

func newTestBuilder() *Builder {
	return NewBuilder("python3", []string{"/app/GOT/demo/run_ocr_2.0.py"}, "/app/GOT_weights")
}

func count(argv []string, token string) int {
	n := 0
	for _, a := range argv {
		if a == token {
			n++
		}
	}
	return n
}

func valueAfter(argv []string, flag string) string {
	for i, a := range argv {
		if a == flag && i+1 < len(argv) {
			return argv[i+1]
		}
	}
	return ""
}

func TestBuildPlain(t *testing.T) {
	argv := newTestBuilder().Build("/data/uploads/abc/example.png", Options{Type: domain.OCRTypePlain})

	want := []string{
		"python3", "/app/GOT/demo/run_ocr_2.0.py",
		"--model-name", "/app/GOT_weights",
		"--image-file", "/data/uploads/abc/example.png",
		"--type", "ocr",
	}
	if !reflect.DeepEqual(argv, want) {
		t.Fatalf("Build() = %v, want %v", argv, want)
	}
}

func TestBuildDefaultsType(t *testing.T) {
	argv := newTestBuilder().Build("/x.png", Options{})
	if valueAfter(argv, "--type") != "ocr" {
		t.Fatalf("expected default type ocr, got %v", argv)
	}
}

func TestBuildBox(t *testing.T) {
	for _, box := range []string{"[100,100,500,500]", "100,100,500,500", "not validated here"} {
		argv := newTestBuilder().Build("/x.png", Options{Type: domain.OCRTypeFormatted, Box: box})
		if count(argv, "--box") != 1 {
			t.Fatalf("expected exactly one --box in %v", argv)
		}
		if got := valueAfter(argv, "--box"); got != box {
			t.Fatalf("box = %q, want %q", got, box)
		}
		if count(argv, "--multi-page") != 0 {
			t.Fatalf("unexpected --multi-page in %v", argv)
		}
	}
}

func TestBuildColor(t *testing.T) {
	argv := newTestBuilder().Build("/x.png", Options{Type: domain.OCRTypePlain})
	if count(argv, "--color") != 0 {
		t.Fatalf("unexpected --color in %v", argv)
	}

	argv = newTestBuilder().Build("/x.png", Options{Type: domain.OCRTypePlain, Color: domain.ColorRed})
	if count(argv, "--color") != 1 || valueAfter(argv, "--color") != "red" {
		t.Fatalf("expected one --color red in %v", argv)
	}
}

func TestBuildFlags(t *testing.T) {
	argv := newTestBuilder().Build("/batch", Options{Type: domain.OCRTypeFormatted, Render: true, MultiPage: true})

	want := []string{
		"python3", "/app/GOT/demo/run_ocr_2.0.py",
		"--model-name", "/app/GOT_weights",
		"--image-file", "/batch",
		"--type", "format",
		"--render",
		"--multi-page",
	}
	if !reflect.DeepEqual(argv, want) {
		t.Fatalf("Build() = %v, want %v", argv, want)
	}
}

func TestBuilderCopiesProgramArgs(t *testing.T) {
	args := []string{"script.py"}
	b := NewBuilder("python3", args, "/m")
	args[0] = "other.py"
	if argv := b.Build("/x.png", Options{}); argv[1] != "script.py" {
		t.Fatalf("program args were not copied: %v", argv)
	}
}
