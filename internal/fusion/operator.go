package fusion

import "regexp"

type operatorRule struct {
	name     string
	patterns []*regexp.Regexp
}

func rule(name string, patterns ...string) operatorRule {
	r := operatorRule{name: name}
	for _, p := range patterns {
		r.patterns = append(r.patterns, regexp.MustCompile(`(?i)`+p))
	}
	return r
}

// Declaration order decides which operator wins when several match.
var operators = []operatorRule{
	rule("UPS", `\bups\b`, `united parcel`),
	rule("FedEx", `fed\s?ex`),
	rule("USPS", `usps`, `postal service`, `u\.s\. mail`),
	rule("Amazon", `amazon`, `\bprime\b`),
	rule("DHL", `\bdhl\b`),
	rule("Maersk", `maersk`),
	rule("Evergreen", `evergreen`),
	rule("COSCO", `cosco`),
	rule("MSC", `\bmsc`),
	rule("Police", `police`, `sheriff`),
	rule("Fire", `\bfire\b`, `fire dep`),
	rule("Ambulance", `ambulance`, `\bems\b`, `paramedic`),
}

// ExtractOperator returns the first operator whose patterns match text.
func ExtractOperator(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	for _, op := range operators {
		for _, re := range op.patterns {
			if re.MatchString(text) {
				return op.name, true
			}
		}
	}
	return "", false
}
