package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/gulubao/GOT-OCR2.0/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gotocr",
		Short:        "HTTP and web front-ends for the GOT-OCR 2.0 recognizer",
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd("api", "Serve the JSON API (POST /ocr, POST /batch-ocr)", server.SurfaceAPI),
		newServeCmd("webui", "Serve the upload form UI", server.SurfaceUI),
		newRecognizeCmd(),
	)

	return root
}
