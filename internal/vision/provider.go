package vision

import (
	"context"
	"strings"

	"image-discerner/internal/domain/discern"
)

// Classifier detects objects in an image.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, img Image) (*discern.ClassificationBranch, error)
}

// TextExtractor runs OCR over an image.
type TextExtractor interface {
	Name() string
	ExtractText(ctx context.Context, img Image) (*discern.TextBranch, error)
}

// CategorizeObject maps a provider object label onto a classification category.
func CategorizeObject(name string) discern.Category {
	name = strings.ToLower(name)
	switch {
	// Container words go first: "cargo" contains "car".
	case containsAny(name, "container", "cargo"):
		return discern.CategoryContainer
	case containsAny(name, "truck", "van", "car", "vehicle"):
		return discern.CategoryVehicle
	case containsAny(name, "building", "warehouse", "structure"):
		return discern.CategoryInfrastructure
	default:
		return discern.CategoryOther
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
