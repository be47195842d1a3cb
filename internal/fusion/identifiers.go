package fusion

import (
	"regexp"
	"strings"

	"image-discerner/internal/domain/discern"
	"image-discerner/internal/utils"
)

var (
	plateFamilies = []*regexp.Regexp{
		regexp.MustCompile(`\b[A-Z0-9]{2,3}\s*[A-Z0-9]{3,4}\b`),
		regexp.MustCompile(`\b[A-Z]{3}\s*[0-9]{3,4}\b`),
		regexp.MustCompile(`\b[0-9]{3}\s*[A-Z]{3}\b`),
	}

	fleetFamilies = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{7}\b`),
		regexp.MustCompile(`\b\d{4}-\d{4}\b`),
		regexp.MustCompile(`\b[A-Z]{2}-?\d{4,6}\b`),
	}

	containerPattern = regexp.MustCompile(`\b[A-Z]{4}\s?\d{6}\s?\d\b`)

	// Carrier codes that look like ISO 6346 owner prefixes.
	carrierPrefixes = map[string]struct{}{
		"USPS": {},
		"FEDX": {},
		"UPSX": {},
	}
)

// ExtractIdentifiers parses OCR text into license plates, fleet numbers and
// container ids, in that order. A span may satisfy several families and is
// then reported once per family; relevance filtering is left to callers.
func ExtractIdentifiers(text string) []discern.StructuredIdentifier {
	upper := strings.ToUpper(text)
	ids := make([]discern.StructuredIdentifier, 0)

	for _, re := range plateFamilies {
		for _, m := range re.FindAllString(upper, -1) {
			ids = append(ids, discern.StructuredIdentifier{
				Kind:         discern.KindLicensePlate,
				Value:        utils.NormalizeIdentifier(m),
				Jurisdiction: discern.JurisdictionUnknown,
			})
		}
	}

	for _, re := range fleetFamilies {
		for _, m := range re.FindAllString(upper, -1) {
			ids = append(ids, discern.StructuredIdentifier{
				Kind:  discern.KindFleetNumber,
				Value: utils.NormalizeIdentifier(m),
			})
		}
	}

	for _, m := range containerPattern.FindAllString(upper, -1) {
		value := utils.NormalizeIdentifier(m)
		if _, carrier := carrierPrefixes[value[:4]]; carrier {
			continue
		}
		ids = append(ids, discern.StructuredIdentifier{
			Kind:  discern.KindContainerID,
			Value: value,
		})
	}

	return ids
}

// DedupeIdentifiers keeps the first occurrence of every kind+value pair.
func DedupeIdentifiers(ids []discern.StructuredIdentifier) []discern.StructuredIdentifier {
	out := make([]discern.StructuredIdentifier, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id.Value = utils.NormalizeIdentifier(id.Value)
		key := string(id.Kind) + "|" + id.Value
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, id)
	}
	return out
}

// identifierValues returns the values of ids with the given kind, never nil.
func identifierValues(ids []discern.StructuredIdentifier, kind discern.IdentifierKind) []string {
	values := make([]string, 0)
	for _, id := range ids {
		if id.Kind == kind {
			values = append(values, id.Value)
		}
	}
	return values
}
