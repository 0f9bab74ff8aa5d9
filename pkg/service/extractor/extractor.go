package extractor

import (
	"context"
	"errors"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/utils/logging"
)

// Input is one extraction request
type Input struct {
	Image []byte
	// Language is the OCR language hint. Empty falls back to model.DefaultLanguage.
	Language string
	// VisionModel selects a multimodal model. Empty or model.VisionModelLocalOnly
	// goes straight to local OCR.
	VisionModel string
}

// Service turns an image into text. A configured vision model is tried first;
// local OCR is the fallback when the vision call fails or returns nothing.
type Service struct {
	catalog interfaces.ModelCatalog
	vision  interfaces.VisionModel
	ocr     interfaces.OCR
}

func New(catalog interfaces.ModelCatalog, vision interfaces.VisionModel, ocr interfaces.OCR) *Service {
	return &Service{
		catalog: catalog,
		vision:  vision,
		ocr:     ocr,
	}
}

// VisionPrompt is the instruction sent to vision models
func VisionPrompt(language string) string {
	if language == "" {
		language = "unknown"
	}
	return "Extract all readable text from this image. Language is " + language
}

// Extract returns the text of the image.
//
// A vision model that is not installed is a hard failure (model.ErrModelNotFound)
// and never falls back to local OCR, so a misconfiguration is surfaced to the
// user. Any other vision failure, or empty vision output, falls back to local
// OCR. When local OCR is the last resort and fails, model.ErrOCRFailed is returned.
func (s *Service) Extract(ctx context.Context, input Input) (string, error) {
	logger := logging.From(ctx)
	visionModel := strings.TrimSpace(input.VisionModel)

	if visionModel != "" && !strings.EqualFold(visionModel, model.VisionModelLocalOnly) {
		installed, err := s.catalog.ListModels(ctx)
		if err != nil {
			return "", goerr.Wrap(err, "failed to list installed models")
		}
		if !model.ContainsModel(installed, visionModel) {
			return "", goerr.Wrap(model.ErrModelNotFound, "vision model is not installed",
				goerr.V(model.ModelKey, visionModel),
				goerr.V("installed", installed),
			)
		}

		text, err := s.vision.ReadImage(ctx, visionModel, VisionPrompt(input.Language), input.Image)
		switch {
		case err != nil && errors.Is(err, model.ErrModelNotFound):
			return "", goerr.Wrap(err, "vision model disappeared", goerr.V(model.ModelKey, visionModel))
		case err != nil:
			logger.Warn("vision extraction failed, falling back to local OCR",
				"model", visionModel,
				"error", err,
			)
		case strings.TrimSpace(text) != "":
			return strings.TrimSpace(text), nil
		default:
			logger.Info("vision model returned no text, falling back to local OCR", "model", visionModel)
		}
	}

	language := input.Language
	if language == "" {
		language = model.DefaultLanguage
	}

	text, err := s.ocr.Recognize(ctx, input.Image, language)
	if err != nil {
		return "", goerr.Wrap(errors.Join(model.ErrOCRFailed, err), "text extraction failed",
			goerr.V("language", language),
		)
	}
	return strings.TrimSpace(text), nil
}
