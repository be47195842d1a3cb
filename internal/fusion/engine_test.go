package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"image-discerner/internal/domain/discern"
)

func findInference(infs []discern.Inference, vehicleType string) (discern.Inference, bool) {
	for _, inf := range infs {
		if inf.VehicleType == vehicleType {
			return inf, true
		}
	}
	return discern.Inference{}, false
}

func TestRankPostalScenario(t *testing.T) {
	infs := Default().Rank([]discern.Classification{vehicle("truck", 0.9)}, "USPS 1234567 PRIORITY MAIL", nil)

	postal, ok := findInference(infs, PatternPostalDelivery)
	require.True(t, ok, "postal_delivery inference missing: %+v", infs)
	assert.InDelta(t, min((0.9*0.4+3*0.3+0.1)/(1+3), 1.0)*0.8, postal.Confidence, 1e-9)
	assert.Contains(t, postal.StructuredIdentifiers, fleet("1234567"))
	assert.Contains(t, postal.StructuredIdentifiers, plate("1234567"))
	assert.Equal(t, []string{
		"detected_truck",
		`text_pattern_\d{7}`,
		"text_pattern_priority",
		"text_pattern_mail",
	}, postal.Evidence)
	assert.Equal(t, "Postal delivery vehicle with fleet ID 1234567", postal.Description)

	commercial, ok := findInference(infs, PatternCommercialDelivery)
	require.True(t, ok)
	for _, id := range commercial.StructuredIdentifiers {
		assert.Equal(t, discern.KindLicensePlate, id.Kind)
	}
}

func TestRankWithoutVisualEvidenceIsEmpty(t *testing.T) {
	infs := Default().Rank(nil, "MAERSK CONTAINER MSCU7654321", nil)
	assert.Empty(t, infs)
	assert.NotNil(t, infs)
}

func TestRankShippingContainer(t *testing.T) {
	cls := []discern.Classification{{Category: discern.CategoryContainer, Subcategory: "container", Confidence: 0.95}}
	infs := Default().Rank(cls, "MAERSK MSCU7654321", nil)

	require.Len(t, infs, 1)
	inf := infs[0]
	assert.Equal(t, PatternShippingContainer, inf.VehicleType)
	assert.InDelta(t, (0.95*0.4+3*0.3+0.1)/4*0.9, inf.Confidence, 1e-9)
	assert.Equal(t, []string{
		"detected_container",
		`text_pattern_[A-Z]{4}\s?\d{6}\s?\d`,
		"text_pattern_maersk",
		"text_pattern_msc",
	}, inf.Evidence)
	assert.Contains(t, inf.StructuredIdentifiers, container("MSCU7654321"))
	assert.Equal(t, "Shipping container MSCU7654321", inf.Description)
}

func TestRankDropsWeakMatches(t *testing.T) {
	// 0.5*0.4 = 0.2 alone is under the evidence gate for every pattern.
	infs := Default().Rank([]discern.Classification{vehicle("van", 0.5)}, "", nil)
	assert.Empty(t, infs)
}

func TestRankIsSortedByConfidence(t *testing.T) {
	inputs := []struct {
		cls  []discern.Classification
		text string
	}{
		{[]discern.Classification{vehicle("truck", 0.9)}, "USPS 1234567 PRIORITY MAIL"},
		{[]discern.Classification{vehicle("car", 0.95)}, "POLICE UNIT 512"},
		{[]discern.Classification{vehicle("van", 0.99), vehicle("truck", 0.8)}, "FEDEX DELIVERY 1234-5678 AMAZON"},
		{[]discern.Classification{vehicle("truck", 1), {Category: discern.CategoryContainer, Subcategory: "container", Confidence: 1}}, "MSCU7654321 EVERGREEN 555"},
	}
	for _, in := range inputs {
		infs := Default().Rank(in.cls, in.text, nil)
		for i := 1; i < len(infs); i++ {
			assert.GreaterOrEqual(t, infs[i-1].Confidence, infs[i].Confidence, "text %q", in.text)
		}
		for _, inf := range infs {
			assert.LessOrEqual(t, inf.Confidence, 0.95)
		}
	}
}

func TestRankEmergencyBeforePostal(t *testing.T) {
	infs := Default().Rank([]discern.Classification{vehicle("car", 0.95)}, "POLICE UNIT 512", nil)
	require.Len(t, infs, 2)
	assert.Equal(t, PatternEmergencyVehicle, infs[0].VehicleType)
	assert.InDelta(t, 0.306, infs[0].Confidence, 1e-9)
	assert.Equal(t, PatternPostalDelivery, infs[1].VehicleType)
	assert.InDelta(t, 0.304, infs[1].Confidence, 1e-9)
}

func TestRankCustomPattern(t *testing.T) {
	e, err := NewEngine([]VehiclePattern{{
		Name:               "tow_truck",
		VisualRequirements: []string{"truck"},
		TextPatterns:       []string{"towing"},
		ConfidenceBase:     1,
	}})
	require.NoError(t, err)

	infs := e.Rank([]discern.Classification{vehicle("truck", 1)}, "TOWING", nil)
	require.Len(t, infs, 1)
	assert.InDelta(t, 0.35, infs[0].Confidence, 1e-9)
	// A six-letter word is plate shaped and is reported as one.
	assert.Equal(t, []discern.StructuredIdentifier{plate("TOWING")}, infs[0].StructuredIdentifiers)
	assert.Equal(t, "tow_truck vehicle with license plate TOWING", infs[0].Description)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Emergency vehicle", describe(PatternEmergencyVehicle, nil))
	assert.Equal(t, "Emergency vehicle with license plate ABC123", describe(PatternEmergencyVehicle, []discern.StructuredIdentifier{plate("ABC123")}))
	assert.Equal(t, "Postal delivery vehicle with fleet ID 1234567",
		describe(PatternPostalDelivery, []discern.StructuredIdentifier{plate("ABC123"), fleet("1234567")}))
	assert.Equal(t, "bus vehicle", describe("bus", nil))
}
