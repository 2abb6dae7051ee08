// Package ocr is the boundary to the text-extraction capability. The
// server only depends on the Extractor interface; the default wiring runs
// a fixed extraction prompt through the vision-language model.
package ocr

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aidelabs/aide/ml"
	"github.com/aidelabs/aide/vision"
)

// Extractor extracts the readable text from an image. An empty result with
// a nil error means the image contained no extractable text.
type Extractor interface {
	Extract(ctx context.Context, img *vision.Image) (string, error)
}

const extractionPrompt = "<|im_start|>user\n[img]Extract all readable text from this image. " +
	"Output only the text, nothing else.<|im_end|>\n<|im_start|>assistant\n"

// EngineExtractor extracts text by prompting the vision-language model.
type EngineExtractor struct {
	Runner ml.Runner
}

func (e *EngineExtractor) Extract(ctx context.Context, img *vision.Image) (string, error) {
	inputs, err := e.Runner.BuildInputs(extractionPrompt, img, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := inputs.Release(); err != nil {
			slog.Error("releasing ocr tensors", "error", err)
		}
	}()

	var sb strings.Builder
	if err := e.Runner.Generate(ctx, inputs, func(fragment string) {
		sb.WriteString(fragment)
	}); err != nil {
		return "", err
	}

	return strings.TrimSpace(sb.String()), nil
}
