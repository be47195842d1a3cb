package fusion

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"image-discerner/internal/domain/discern"
)

const (
	PatternPostalDelivery     = "postal_delivery"
	PatternCommercialDelivery = "commercial_delivery"
	PatternShippingContainer  = "shipping_container"
	PatternEmergencyVehicle   = "emergency_vehicle"
)

const (
	visualWeight       = 0.4
	textWeight         = 0.3
	corroborationBonus = 0.1
)

// VehiclePattern is a named rule combining visual requirements with text
// regexes. Text patterns are matched case-insensitively anywhere in the text.
type VehiclePattern struct {
	Name               string
	VisualRequirements []string
	TextPatterns       []string
	ConfidenceBase     float64
}

var defaultPatterns = []VehiclePattern{
	{
		Name:               PatternPostalDelivery,
		VisualRequirements: []string{"van", "truck", "car"},
		TextPatterns:       []string{`usps\.com`, `\d{7}`, `priority`, `express`, `mail`},
		ConfidenceBase:     0.8,
	},
	{
		Name:               PatternCommercialDelivery,
		VisualRequirements: []string{"truck", "van"},
		TextPatterns:       []string{`fedex`, `ups`, `amazon`, `dhl`, `\d{4}-\d{4}`, `delivery`},
		ConfidenceBase:     0.7,
	},
	{
		Name:               PatternShippingContainer,
		VisualRequirements: []string{"container", "truck"},
		TextPatterns:       []string{`[A-Z]{4}\s?\d{6}\s?\d`, `maersk`, `evergreen`, `cosco`, `msc`},
		ConfidenceBase:     0.9,
	},
	{
		Name:               PatternEmergencyVehicle,
		VisualRequirements: []string{"car", "truck", "van"},
		TextPatterns:       []string{`police`, `fire`, `ambulance`, `ems`, `sheriff`, `\d{3}`},
		ConfidenceBase:     0.85,
	},
}

// DefaultPatterns returns a copy of the built-in pattern table.
func DefaultPatterns() []VehiclePattern {
	out := make([]VehiclePattern, len(defaultPatterns))
	for i, p := range defaultPatterns {
		out[i] = VehiclePattern{
			Name:               p.Name,
			VisualRequirements: append([]string(nil), p.VisualRequirements...),
			TextPatterns:       append([]string(nil), p.TextPatterns...),
			ConfidenceBase:     p.ConfidenceBase,
		}
	}
	return out
}

// Pattern is a compiled VehiclePattern.
type Pattern struct {
	def    VehiclePattern
	visual map[string]struct{}
	text   []*regexp.Regexp
}

// Compile validates p and compiles its text patterns.
func Compile(p VehiclePattern) (*Pattern, error) {
	if strings.TrimSpace(p.Name) == "" {
		return nil, &PatternConfigError{Field: "name", Err: errors.New("name is required")}
	}
	if p.ConfidenceBase <= 0 || p.ConfidenceBase > 1 {
		return nil, &PatternConfigError{
			Pattern: p.Name,
			Field:   "confidence_base",
			Err:     fmt.Errorf("%v is outside (0, 1]", p.ConfidenceBase),
		}
	}
	if len(p.VisualRequirements) == 0 {
		return nil, &PatternConfigError{Pattern: p.Name, Field: "visual_requirements", Err: errors.New("at least one requirement is needed")}
	}

	compiled := &Pattern{
		def: VehiclePattern{
			Name:               p.Name,
			VisualRequirements: append([]string(nil), p.VisualRequirements...),
			TextPatterns:       append([]string(nil), p.TextPatterns...),
			ConfidenceBase:     p.ConfidenceBase,
		},
		visual: make(map[string]struct{}, len(p.VisualRequirements)),
		text:   make([]*regexp.Regexp, 0, len(p.TextPatterns)),
	}
	for _, v := range p.VisualRequirements {
		compiled.visual[strings.ToLower(v)] = struct{}{}
	}
	for _, expr := range p.TextPatterns {
		re, err := regexp.Compile(`(?i)` + expr)
		if err != nil {
			return nil, &PatternConfigError{Pattern: p.Name, Field: "text_patterns", Err: err}
		}
		compiled.text = append(compiled.text, re)
	}
	return compiled, nil
}

func (p *Pattern) Name() string { return p.def.Name }

func (p *Pattern) ConfidenceBase() float64 { return p.def.ConfidenceBase }

// Definition returns the source definition of the pattern.
func (p *Pattern) Definition() VehiclePattern { return p.def }

type match struct {
	score  float64
	visual []string // matching subcategories, input order
	text   []string // matching text patterns, declaration order
}

func (p *Pattern) match(classifications []discern.Classification, text string) match {
	var m match

	for _, c := range classifications {
		sub := strings.ToLower(c.Subcategory)
		if _, ok := p.visual[sub]; !ok {
			continue
		}
		m.visual = append(m.visual, sub)
		m.score += c.Confidence * visualWeight
	}
	if len(m.visual) == 0 {
		m.score = 0
		return m
	}

	for i, re := range p.text {
		if re.MatchString(text) {
			m.text = append(m.text, p.def.TextPatterns[i])
			m.score += textWeight
		}
	}
	if len(m.text) > 1 {
		m.score += corroborationBonus
	}

	m.score /= float64(len(m.visual) + len(m.text))
	m.score = clamp01(m.score)
	return m
}

// Score rates how well the evidence fits the pattern, in [0, 1]. Visual
// evidence is mandatory: without it the score is 0 whatever the text says.
func (p *Pattern) Score(classifications []discern.Classification, text string) float64 {
	return p.match(classifications, text).score
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
