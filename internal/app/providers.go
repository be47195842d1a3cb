package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"image-discerner/internal/config"
	"image-discerner/internal/fusion"
	"image-discerner/internal/vision"
	"image-discerner/internal/vision/gcp"
	"image-discerner/internal/vision/tesseract"
)

// NewProviders builds the classifier and text extractor named in cfg. A
// single GCP client serves both branches when both select it.
func NewProviders(cfg config.VisionConfig, log zerolog.Logger) (vision.Classifier, vision.TextExtractor, error) {
	mock := vision.NewMockProvider()

	var gcpClient *gcp.Client
	if cfg.Classifier == "gcp" || cfg.TextExtractor == "gcp" {
		var err error
		gcpClient, err = gcp.NewFromFile(context.Background(), cfg.GCPCredentialsFile)
		if err != nil {
			return nil, nil, err
		}
	}

	var classifier vision.Classifier
	switch cfg.Classifier {
	case "mock":
		classifier = mock
	case "gcp":
		classifier = gcpClient
	default:
		return nil, nil, fmt.Errorf("unknown classifier %q", cfg.Classifier)
	}

	var extractor vision.TextExtractor
	switch cfg.TextExtractor {
	case "mock":
		extractor = mock
	case "gcp":
		extractor = gcpClient
	case "tesseract":
		extractor = tesseract.NewExtractor(log, cfg.Languages...)
	default:
		return nil, nil, fmt.Errorf("unknown text extractor %q", cfg.TextExtractor)
	}

	return classifier, extractor, nil
}

// NewEngine compiles the configured vehicle patterns, falling back to the
// built-in table when none are configured.
func NewEngine(cfg config.FusionConfig) (*fusion.Engine, error) {
	if len(cfg.Patterns) == 0 {
		return fusion.Default(), nil
	}
	defs := make([]fusion.VehiclePattern, 0, len(cfg.Patterns))
	for _, p := range cfg.Patterns {
		defs = append(defs, fusion.VehiclePattern{
			Name:               p.Name,
			VisualRequirements: p.VisualRequirements,
			TextPatterns:       p.TextPatterns,
			ConfidenceBase:     p.ConfidenceBase,
		})
	}
	return fusion.NewEngine(defs)
}
