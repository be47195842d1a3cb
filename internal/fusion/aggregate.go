package fusion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"image-discerner/internal/domain/discern"
)

const (
	classificationShare = 0.7
	textShare           = 0.3
	// Applied to the text confidence when there is no visual evidence.
	textOnlyShare = 0.5
)

// Aggregate fuses the two branch results into the final response. Both
// branches must be present; they are treated as complete and immutable.
func (e *Engine) Aggregate(cls *discern.ClassificationBranch, txt *discern.TextBranch) (*discern.AggregatedResult, error) {
	if cls == nil {
		return nil, &ValidationError{Reason: "classification branch result is missing"}
	}
	if txt == nil {
		return nil, &ValidationError{Reason: "text extraction branch result is missing"}
	}

	identifiers := txt.StructuredIdentifiers
	if identifiers == nil {
		identifiers = ExtractIdentifiers(txt.ExtractedText)
	}

	textAnalysis := discern.TextAnalysis{
		ExtractedText:         txt.ExtractedText,
		StructuredIdentifiers: identifiers,
		TextBlocks:            nonNil(txt.TextBlocks),
	}
	inferences := e.Rank(cls.Classifications, txt.ExtractedText, txt.TextBlocks)
	entities := Resolve(cls.Classifications, textAnalysis, inferences)

	imageKey := cls.ImageKey
	if imageKey == "" {
		imageKey = txt.ImageKey
	}

	return &discern.AggregatedResult{
		AnalysisComplete: true,
		Timestamp:        e.now().UTC(),
		ImageClassification: discern.ImageClassification{
			DetectedItems:      EnhanceClassifications(cls.Classifications, identifiers),
			RawClassifications: nonNil(cls.Classifications),
			DetectedObjects:    nonNil(cls.DetectedObjects),
		},
		TextAnalysis:         textAnalysis,
		ContextualInferences: inferences,
		Entities:             entities,
		ConfidenceScore:      OverallConfidence(cls.ConfidenceScores, txt.ProcessingMetadata.TextConfidence),
		ProcessingMetadata: discern.ResultMetadata{
			TotalProcessingTimeMs:  cls.ProcessingMetadata.ProcessingTimeMs + txt.ProcessingMetadata.ProcessingTimeMs,
			ClassificationProvider: cls.ProcessingMetadata.APIProvider,
			TextProvider:           txt.ProcessingMetadata.APIProvider,
			ImageKey:               imageKey,
		},
	}, nil
}

// EnhanceClassifications attaches identifier values to the classifications
// they plausibly belong to: fleet numbers and plates to trucks, container
// ids to containers. This view is independent of entity resolution.
func EnhanceClassifications(classifications []discern.Classification, ids []discern.StructuredIdentifier) []discern.EnhancedClassification {
	out := make([]discern.EnhancedClassification, 0, len(classifications))
	for _, c := range classifications {
		item := discern.EnhancedClassification{Classification: c}
		switch c.Category {
		case discern.CategoryVehicle:
			if strings.Contains(strings.ToLower(c.Subcategory), "truck") {
				item.FleetNumbers = identifierValues(ids, discern.KindFleetNumber)
				item.LicensePlates = identifierValues(ids, discern.KindLicensePlate)
			}
		case discern.CategoryContainer:
			item.ContainerIDs = identifierValues(ids, discern.KindContainerID)
		}
		out = append(out, item)
	}
	return out
}

// OverallConfidence weighs the mean classification confidence against the
// OCR confidence. Without classification scores only half of the text
// confidence is credited.
func OverallConfidence(scores map[string]float64, textConfidence float64) float64 {
	if len(scores) == 0 {
		return textConfidence * textOnlyShare
	}
	var sum float64
	for _, v := range scores {
		sum += v
	}
	return sum/float64(len(scores))*classificationShare + textConfidence*textShare
}

// DecodeBranches sorts two raw branch bodies into the classification and
// text results by their distinguishing key. Bodies wrapped in a {"body": ...}
// envelope are unwrapped first.
func DecodeBranches(bodies ...json.RawMessage) (*discern.ClassificationBranch, *discern.TextBranch, error) {
	if len(bodies) != 2 {
		return nil, nil, &ValidationError{Reason: fmt.Sprintf("expected 2 branch results, got %d", len(bodies))}
	}

	var (
		cls *discern.ClassificationBranch
		txt *discern.TextBranch
	)
	for i, body := range bodies {
		fields, err := objectFields(body)
		if err != nil {
			return nil, nil, &ValidationError{Reason: fmt.Sprintf("branch %d is not an object", i), Err: err}
		}
		if inner, ok := fields["body"]; ok {
			if _, cOK := fields["classifications"]; !cOK {
				if _, tOK := fields["extracted_text"]; !tOK {
					body = inner
					if fields, err = objectFields(inner); err != nil {
						return nil, nil, &ValidationError{Reason: fmt.Sprintf("branch %d body is not an object", i), Err: err}
					}
				}
			}
		}

		switch {
		case has(fields, "classifications"):
			var b discern.ClassificationBranch
			if err := json.Unmarshal(body, &b); err != nil {
				return nil, nil, &ValidationError{Reason: "malformed classification branch", Err: err}
			}
			cls = &b
		case has(fields, "extracted_text"):
			b, err := decodeTextBranch(body)
			if err != nil {
				return nil, nil, &ValidationError{Reason: "malformed text extraction branch", Err: err}
			}
			txt = b
		}
	}

	if cls == nil || txt == nil {
		return nil, nil, &ValidationError{Reason: "could not parse classification and text extraction results"}
	}
	return cls, txt, nil
}

func objectFields(raw json.RawMessage) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, fmt.Errorf("null object")
	}
	return fields, nil
}

func has(fields map[string]json.RawMessage, key string) bool {
	_, ok := fields[key]
	return ok
}

// decodeTextBranch accepts structured identifiers either as a list of typed
// identifiers or in the older grouped form
// {"license_plates": [...], "fleet_numbers": [...], "container_ids": [...]}.
func decodeTextBranch(raw json.RawMessage) (*discern.TextBranch, error) {
	var wire struct {
		discern.TextBranch
		StructuredIdentifiers json.RawMessage `json:"structured_identifiers"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}
	b := wire.TextBranch

	ids := bytes.TrimSpace(wire.StructuredIdentifiers)
	switch {
	case len(ids) == 0 || bytes.Equal(ids, []byte("null")):
	case ids[0] == '[':
		if err := json.Unmarshal(ids, &b.StructuredIdentifiers); err != nil {
			return nil, err
		}
	case ids[0] == '{':
		var grouped map[string][]string
		if err := json.Unmarshal(ids, &grouped); err != nil {
			return nil, err
		}
		b.StructuredIdentifiers = ungroup(grouped)
	default:
		return nil, fmt.Errorf("structured_identifiers must be a list or an object")
	}
	return &b, nil
}

var groupedKinds = []struct {
	key  string
	kind discern.IdentifierKind
}{
	{"license_plates", discern.KindLicensePlate},
	{"fleet_numbers", discern.KindFleetNumber},
	{"container_ids", discern.KindContainerID},
}

func ungroup(grouped map[string][]string) []discern.StructuredIdentifier {
	ids := make([]discern.StructuredIdentifier, 0)
	for _, g := range groupedKinds {
		for _, v := range grouped[g.key] {
			id := discern.StructuredIdentifier{Kind: g.kind, Value: v}
			if g.kind == discern.KindLicensePlate {
				id.Jurisdiction = discern.JurisdictionUnknown
			}
			ids = append(ids, id)
		}
	}
	return DedupeIdentifiers(ids)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
