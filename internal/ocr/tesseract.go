package ocr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Extractor pulls text out of images by shelling out to the tesseract
// binary. The feature is optional: when the binary is missing the extractor
// reports itself unavailable and callers degrade to empty text.
type Extractor struct {
	bin    string
	logger *slog.Logger
}

// New probes for tesseract on PATH. It never fails; absence is recorded and
// surfaced through Available.
func New(logger *slog.Logger) *Extractor {
	bin, err := exec.LookPath("tesseract")
	if err != nil {
		logger.Warn("tesseract not found, OCR disabled")
		bin = ""
	}

	return &Extractor{
		bin:    bin,
		logger: logger,
	}
}

// Available reports whether text extraction can run.
func (e *Extractor) Available() bool {
	return e != nil && e.bin != ""
}

// ExtractText runs OCR over the image bytes. When unavailable it returns
// empty text and no error.
func (e *Extractor) ExtractText(ctx context.Context, image []byte) (string, error) {
	if !e.Available() {
		return "", nil
	}

	cmd := exec.CommandContext(ctx, e.bin, "stdin", "stdout")
	cmd.Stdin = bytes.NewReader(image)

	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}

	return strings.TrimSpace(out.String()), nil
}
