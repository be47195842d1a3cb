package discern

import (
	"errors"
	"time"
)

// ErrValidation marks branch input that is missing or malformed.
var ErrValidation = errors.New("validation error")

type Category string

const (
	CategoryVehicle        Category = "vehicle"
	CategoryContainer      Category = "container"
	CategoryInfrastructure Category = "infrastructure"
	CategoryOther          Category = "other"
)

type IdentifierKind string

const (
	KindLicensePlate IdentifierKind = "license_plate"
	KindFleetNumber  IdentifierKind = "fleet_number"
	KindContainerID  IdentifierKind = "container_id"
)

// JurisdictionUnknown is the only jurisdiction attached to license plates.
const JurisdictionUnknown = "unknown"

type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Classification struct {
	Category    Category    `json:"category"`
	Subcategory string      `json:"subcategory"`
	Confidence  float64     `json:"confidence"`
	Brand       string      `json:"brand,omitempty"`
	BoundingBox BoundingBox `json:"bounding_box"`
}

type DetectedObject struct {
	Name        string      `json:"name"`
	Confidence  float64     `json:"confidence"`
	BoundingBox BoundingBox `json:"bounding_box"`
}

type TextBlock struct {
	Text        string      `json:"text"`
	Confidence  float64     `json:"confidence"`
	BoundingBox BoundingBox `json:"bounding_box"`
}

type StructuredIdentifier struct {
	Kind         IdentifierKind `json:"kind"`
	Value        string         `json:"value"`
	Jurisdiction string         `json:"jurisdiction,omitempty"`
}

// ProcessingMetadata is reported by a vision provider for one branch.
type ProcessingMetadata struct {
	APIProvider      string  `json:"api_provider,omitempty"`
	ModelVersion     string  `json:"model_version,omitempty"`
	TextConfidence   float64 `json:"text_confidence,omitempty"`
	ProcessingTimeMs int64   `json:"processing_time_ms"`
}

// ClassificationBranch is the result of the object classification step.
type ClassificationBranch struct {
	ImageKey           string             `json:"image_key,omitempty"`
	Classifications    []Classification   `json:"classifications"`
	DetectedObjects    []DetectedObject   `json:"detected_objects"`
	ConfidenceScores   map[string]float64 `json:"confidence_scores"`
	ProcessingMetadata ProcessingMetadata `json:"processing_metadata"`
}

// TextBranch is the result of the text extraction step.
type TextBranch struct {
	ImageKey              string                 `json:"image_key,omitempty"`
	ExtractedText         string                 `json:"extracted_text"`
	TextBlocks            []TextBlock            `json:"text_blocks"`
	StructuredIdentifiers []StructuredIdentifier `json:"structured_identifiers"`
	ProcessingMetadata    ProcessingMetadata     `json:"processing_metadata"`
}

type Inference struct {
	VehicleType           string                 `json:"vehicle_type"`
	Confidence            float64                `json:"confidence"`
	Evidence              []string               `json:"evidence"`
	StructuredIdentifiers []StructuredIdentifier `json:"structured_identifiers"`
	Description           string                 `json:"description"`
}

type Entity struct {
	Type        string                 `json:"type"`
	Operator    string                 `json:"operator,omitempty"`
	Identifiers []StructuredIdentifier `json:"identifiers"`
	Confidence  float64                `json:"confidence"`
	Properties  map[string]any         `json:"properties"`
}

// EnhancedClassification is a classification annotated with the identifier
// values that are plausible for its category. A list that does not apply to
// the category is nil and encodes as null; an applicable list with no
// values encodes as [].
type EnhancedClassification struct {
	Classification
	FleetNumbers  []string `json:"fleet_numbers"`
	LicensePlates []string `json:"license_plates"`
	ContainerIDs  []string `json:"container_ids"`
}

type ImageClassification struct {
	DetectedItems      []EnhancedClassification `json:"detected_items"`
	RawClassifications []Classification         `json:"raw_classifications"`
	DetectedObjects    []DetectedObject         `json:"detected_objects"`
}

type TextAnalysis struct {
	ExtractedText         string                 `json:"extracted_text"`
	StructuredIdentifiers []StructuredIdentifier `json:"structured_identifiers"`
	TextBlocks            []TextBlock            `json:"text_blocks"`
}

type ResultMetadata struct {
	TotalProcessingTimeMs  int64  `json:"total_processing_time_ms"`
	ClassificationProvider string `json:"classification_provider,omitempty"`
	TextProvider           string `json:"text_provider,omitempty"`
	ImageKey               string `json:"image_key,omitempty"`
}

type AggregatedResult struct {
	AnalysisComplete     bool                `json:"analysis_complete"`
	Timestamp            time.Time           `json:"timestamp"`
	ImageClassification  ImageClassification `json:"image_classification"`
	TextAnalysis         TextAnalysis        `json:"text_analysis"`
	ContextualInferences []Inference         `json:"contextual_inferences"`
	Entities             []Entity            `json:"entities"`
	ConfidenceScore      float64             `json:"confidence_score"`
	ProcessingMetadata   ResultMetadata      `json:"processing_metadata"`
}

type ListHit struct {
	ListID          int64          `json:"list_id"`
	ListName        string         `json:"list_name"`
	ListType        string         `json:"list_type"`
	IdentifierKind  IdentifierKind `json:"identifier_kind"`
	IdentifierValue string         `json:"identifier_value"`
}
