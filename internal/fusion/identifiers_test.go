package fusion

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"image-discerner/internal/domain/discern"
)

func plate(v string) discern.StructuredIdentifier {
	return discern.StructuredIdentifier{Kind: discern.KindLicensePlate, Value: v, Jurisdiction: discern.JurisdictionUnknown}
}

func fleet(v string) discern.StructuredIdentifier {
	return discern.StructuredIdentifier{Kind: discern.KindFleetNumber, Value: v}
}

func container(v string) discern.StructuredIdentifier {
	return discern.StructuredIdentifier{Kind: discern.KindContainerID, Value: v}
}

func ofKind(ids []discern.StructuredIdentifier, kind discern.IdentifierKind) []discern.StructuredIdentifier {
	var out []discern.StructuredIdentifier
	for _, id := range ids {
		if id.Kind == kind {
			out = append(out, id)
		}
	}
	return out
}

func TestExtractIdentifiersPlates(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []discern.StructuredIdentifier
	}{
		{
			name: "letters then digits matches two families",
			text: "abc 123",
			want: []discern.StructuredIdentifier{plate("ABC123"), plate("ABC123")},
		},
		{
			name: "digits then letters",
			text: "123 ABC",
			want: []discern.StructuredIdentifier{plate("123ABC"), plate("123ABC")},
		},
		{
			name: "empty text",
			text: "",
			want: []discern.StructuredIdentifier{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractIdentifiers(tt.text)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ExtractIdentifiers(%q) mismatch (-want +got):\n%s", tt.text, diff)
			}
		})
	}
}

func TestExtractIdentifiersFleetNumbers(t *testing.T) {
	got := ofKind(ExtractIdentifiers("FLEET 1234567 UNIT 1234-5678 VH-9876 AB123456"), discern.KindFleetNumber)
	want := []discern.StructuredIdentifier{
		fleet("1234567"),
		fleet("1234-5678"),
		fleet("VH-9876"),
		fleet("AB123456"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("fleet numbers mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractIdentifiersContainersSkipCarrierCodes(t *testing.T) {
	got := ofKind(ExtractIdentifiers("USPS1234567 FEDX 123456 7 UPSX1234567 mscu 765432 1"), discern.KindContainerID)
	require.Len(t, got, 1)
	assert.Equal(t, container("MSCU7654321"), got[0])

	for _, id := range ExtractIdentifiers("USPS 1234567 PRIORITY MAIL") {
		assert.NotEqual(t, discern.KindContainerID, id.Kind, "carrier code reported as container: %v", id)
	}
}

func TestExtractIdentifiersScenario(t *testing.T) {
	got := ExtractIdentifiers("USPS 1234567 PRIORITY MAIL")
	want := []discern.StructuredIdentifier{plate("1234567"), fleet("1234567")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractIdentifiersIsIdempotent(t *testing.T) {
	texts := []string{
		"UPS 1Z999AA1234567890 FLEET 12345",
		"CONTAINER MSCU7654321 LICENSE ABC123",
		"FEDEX 7777 8888 9999 TRUCK #T-4567",
		"",
	}
	for _, text := range texts {
		first := ExtractIdentifiers(text)
		second := ExtractIdentifiers(text)
		assert.Equal(t, first, second, "text %q", text)
	}
}

func TestDedupeIdentifiers(t *testing.T) {
	in := []discern.StructuredIdentifier{
		plate("ABC123"),
		plate("abc 123"),
		fleet("ABC123"),
		container("MSCU7654321"),
		container("MSCU7654321"),
	}
	want := []discern.StructuredIdentifier{plate("ABC123"), fleet("ABC123"), container("MSCU7654321")}
	if diff := cmp.Diff(want, DedupeIdentifiers(in)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
