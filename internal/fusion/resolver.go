package fusion

import (
	"strings"

	"image-discerner/internal/domain/discern"
)

const (
	EntityUnknown           = "unknown"
	EntityCommercialVan     = "commercial_vehicle:van"
	EntityCargoContainer    = "cargo_container"
	EntityEmergencyResponse = "emergency_vehicle:response"
)

// Inferences at or below this confidence do not become entities.
const minEntityConfidence = 0.3

var entityTypes = map[string]string{
	PatternPostalDelivery:     EntityCommercialVan,
	PatternCommercialDelivery: EntityCommercialVan,
	PatternShippingContainer:  EntityCargoContainer,
	PatternEmergencyVehicle:   EntityEmergencyResponse,
}

// Resolve turns ranked inferences into entities. When no inference is
// confident enough it falls back to the strongest classification, and
// failing that to a single unknown entity. The result is never empty.
func Resolve(classifications []discern.Classification, text discern.TextAnalysis, inferences []discern.Inference) []discern.Entity {
	operator, _ := ExtractOperator(text.ExtractedText)
	entities := make([]discern.Entity, 0, len(inferences))

	for _, inf := range inferences {
		if inf.Confidence <= minEntityConfidence {
			continue
		}
		entityType, ok := entityTypes[inf.VehicleType]
		if !ok {
			entityType = EntityUnknown
		}
		entities = append(entities, newEntity(entityType, operator, inf.StructuredIdentifiers, inf.Confidence))
	}
	if len(entities) > 0 {
		return entities
	}

	if best, ok := strongest(classifications); ok {
		return []discern.Entity{
			newEntity(classificationType(best), operator, text.StructuredIdentifiers, best.Confidence),
		}
	}

	return []discern.Entity{newEntity(EntityUnknown, "", text.StructuredIdentifiers, 0)}
}

func newEntity(entityType, operator string, ids []discern.StructuredIdentifier, confidence float64) discern.Entity {
	return discern.Entity{
		Type:        entityType,
		Operator:    operator,
		Identifiers: DedupeIdentifiers(ids),
		Confidence:  confidence,
		Properties:  map[string]any{},
	}
}

// strongest returns the highest-confidence classification; the first one
// wins ties.
func strongest(classifications []discern.Classification) (discern.Classification, bool) {
	if len(classifications) == 0 {
		return discern.Classification{}, false
	}
	best := classifications[0]
	for _, c := range classifications[1:] {
		if c.Confidence > best.Confidence {
			best = c
		}
	}
	return best, true
}

func classificationType(c discern.Classification) string {
	sub := strings.ToLower(c.Subcategory)
	switch c.Category {
	case discern.CategoryVehicle:
		if sub == "van" || sub == "truck" {
			return EntityCommercialVan
		}
		return "commercial_vehicle:" + sub
	case discern.CategoryContainer:
		return EntityCargoContainer
	default:
		return EntityUnknown
	}
}
