package fusion

import (
	"sort"
	"time"

	"image-discerner/internal/domain/discern"
)

const (
	// Patterns scoring at or below this produce no inference.
	minMatchScore = 0.3
	// Inferences never claim more than this.
	confidenceCeiling = 0.95
)

var descriptions = map[string]string{
	PatternPostalDelivery:     "Postal delivery vehicle",
	PatternCommercialDelivery: "Commercial delivery vehicle",
	PatternShippingContainer:  "Shipping container",
	PatternEmergencyVehicle:   "Emergency vehicle",
}

// Engine ranks vehicle patterns against request evidence and assembles the
// aggregated result. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	patterns []*Pattern
	now      func() time.Time
}

var defaultEngine = mustEngine(defaultPatterns)

func mustEngine(defs []VehiclePattern) *Engine {
	e, err := NewEngine(defs)
	if err != nil {
		panic(err)
	}
	return e
}

// Default returns an engine over the built-in pattern table.
func Default() *Engine {
	return defaultEngine
}

// NewEngine compiles defs in order. An empty table selects the defaults.
func NewEngine(defs []VehiclePattern) (*Engine, error) {
	if len(defs) == 0 {
		defs = defaultPatterns
	}
	e := &Engine{
		patterns: make([]*Pattern, 0, len(defs)),
		now:      time.Now,
	}
	for _, def := range defs {
		p, err := Compile(def)
		if err != nil {
			return nil, err
		}
		e.patterns = append(e.patterns, p)
	}
	return e, nil
}

// WithClock returns a copy of e that stamps results using now.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	cp := *e
	cp.now = now
	return &cp
}

func (e *Engine) Patterns() []*Pattern {
	return append([]*Pattern(nil), e.patterns...)
}

// Rank scores every pattern and returns the inferences that pass the
// minimum-evidence gate, highest confidence first. Ties keep table order.
func (e *Engine) Rank(classifications []discern.Classification, text string, _ []discern.TextBlock) []discern.Inference {
	identifiers := ExtractIdentifiers(text)
	inferences := make([]discern.Inference, 0, len(e.patterns))

	for _, p := range e.patterns {
		m := p.match(classifications, text)
		if m.score <= minMatchScore {
			continue
		}

		evidence := make([]string, 0, len(m.visual)+len(m.text))
		for _, sub := range m.visual {
			evidence = append(evidence, "detected_"+sub)
		}
		for _, expr := range m.text {
			evidence = append(evidence, "text_pattern_"+expr)
		}

		relevant := relevantIdentifiers(p.Name(), identifiers)
		inferences = append(inferences, discern.Inference{
			VehicleType:           p.Name(),
			Confidence:            min(m.score*p.ConfidenceBase(), confidenceCeiling),
			Evidence:              evidence,
			StructuredIdentifiers: relevant,
			Description:           describe(p.Name(), relevant),
		})
	}

	sort.SliceStable(inferences, func(i, j int) bool {
		return inferences[i].Confidence > inferences[j].Confidence
	})
	return inferences
}

// relevantIdentifiers keeps license plates for every pattern, fleet numbers
// for postal delivery and container ids for shipping containers.
func relevantIdentifiers(pattern string, ids []discern.StructuredIdentifier) []discern.StructuredIdentifier {
	out := make([]discern.StructuredIdentifier, 0)
	for _, id := range ids {
		switch {
		case id.Kind == discern.KindLicensePlate:
		case pattern == PatternPostalDelivery && id.Kind == discern.KindFleetNumber:
		case pattern == PatternShippingContainer && id.Kind == discern.KindContainerID:
		default:
			continue
		}
		out = append(out, id)
	}
	return out
}

func describe(vehicleType string, ids []discern.StructuredIdentifier) string {
	base, ok := descriptions[vehicleType]
	if !ok {
		base = vehicleType + " vehicle"
	}

	if v := identifierValues(ids, discern.KindFleetNumber); len(v) > 0 {
		return base + " with fleet ID " + v[0]
	}
	if v := identifierValues(ids, discern.KindContainerID); len(v) > 0 {
		return base + " " + v[0]
	}
	if v := identifierValues(ids, discern.KindLicensePlate); len(v) > 0 {
		return base + " with license plate " + v[0]
	}
	return base
}
