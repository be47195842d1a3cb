package fusion

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"image-discerner/internal/domain/discern"
)

func vehicle(sub string, conf float64) discern.Classification {
	return discern.Classification{Category: discern.CategoryVehicle, Subcategory: sub, Confidence: conf}
}

func mustPattern(t *testing.T, name string) *Pattern {
	t.Helper()
	for _, p := range Default().Patterns() {
		if p.Name() == name {
			return p
		}
	}
	t.Fatalf("pattern %s not found", name)
	return nil
}

func TestScoreRequiresVisualEvidence(t *testing.T) {
	text := "POLICE FIRE AMBULANCE 911 USPS.COM PRIORITY MAIL MAERSK"
	for _, p := range Default().Patterns() {
		assert.Zero(t, p.Score(nil, text), p.Name())
		assert.Zero(t, p.Score([]discern.Classification{vehicle("bus", 0.99)}, text), p.Name())
	}
}

func TestScorePostalScenario(t *testing.T) {
	p := mustPattern(t, PatternPostalDelivery)
	got := p.Score([]discern.Classification{vehicle("truck", 0.9)}, "USPS 1234567 PRIORITY MAIL")
	assert.InDelta(t, (0.9*0.4+3*0.3+0.1)/4, got, 1e-9)
}

func TestScoreSingleTextMatchHasNoBonus(t *testing.T) {
	p := mustPattern(t, PatternEmergencyVehicle)
	got := p.Score([]discern.Classification{vehicle("truck", 0.9)}, "unit 512")
	assert.InDelta(t, (0.9*0.4+0.3)/2, got, 1e-9)
}

func TestScoreIsCaseInsensitive(t *testing.T) {
	p := mustPattern(t, PatternCommercialDelivery)
	upper := p.Score([]discern.Classification{vehicle("TRUCK", 0.8)}, "FEDEX DELIVERY 1234-5678")
	lower := p.Score([]discern.Classification{vehicle("truck", 0.8)}, "fedex delivery 1234-5678")
	assert.InDelta(t, 0.33, upper, 1e-9)
	assert.Equal(t, upper, lower)
}

func TestScoreStaysWithinUnitInterval(t *testing.T) {
	inputs := [][]discern.Classification{
		{vehicle("truck", 1)},
		{vehicle("truck", 1), vehicle("van", 1), vehicle("car", 1)},
		{{Category: discern.CategoryContainer, Subcategory: "container", Confidence: 1}},
		{vehicle("van", 0)},
	}
	texts := []string{"", "usps.com 1234567 priority express mail", "fedex ups amazon dhl 1234-5678 delivery", "police fire ambulance ems sheriff 123"}
	for _, p := range Default().Patterns() {
		for _, cls := range inputs {
			for _, text := range texts {
				s := p.Score(cls, text)
				assert.GreaterOrEqual(t, s, 0.0)
				assert.LessOrEqual(t, s, 1.0)
			}
		}
	}
}

func TestCompileRejectsBadPatterns(t *testing.T) {
	tests := []struct {
		name  string
		def   VehiclePattern
		field string
	}{
		{"missing name", VehiclePattern{VisualRequirements: []string{"van"}, ConfidenceBase: 0.5}, "name"},
		{"zero base", VehiclePattern{Name: "x", VisualRequirements: []string{"van"}}, "confidence_base"},
		{"base above one", VehiclePattern{Name: "x", VisualRequirements: []string{"van"}, ConfidenceBase: 1.5}, "confidence_base"},
		{"no visual", VehiclePattern{Name: "x", ConfidenceBase: 0.5}, "visual_requirements"},
		{"bad regex", VehiclePattern{Name: "x", VisualRequirements: []string{"van"}, TextPatterns: []string{"("}, ConfidenceBase: 0.5}, "text_patterns"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.def)
			var cfgErr *PatternConfigError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestDefaultPatternsReturnsCopy(t *testing.T) {
	defs := DefaultPatterns()
	require.Len(t, defs, 4)
	defs[0].TextPatterns[0] = "changed"
	assert.Equal(t, `usps\.com`, DefaultPatterns()[0].TextPatterns[0])
}

func TestNewEngineFailsOnInvalidTable(t *testing.T) {
	_, err := NewEngine([]VehiclePattern{{Name: "broken", VisualRequirements: []string{"van"}, TextPatterns: []string{"[a-"}, ConfidenceBase: 0.5}})
	var cfgErr *PatternConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "broken", cfgErr.Pattern)
}
