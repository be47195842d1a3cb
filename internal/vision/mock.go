package vision

import (
	"context"
	"hash/fnv"
	"math/rand/v2"
	"strings"
	"time"

	"image-discerner/internal/domain/discern"
	"image-discerner/internal/fusion"
)

const mockProviderName = "mock_backend"

var mockClassifications = []discern.Classification{
	{
		Category:    discern.CategoryVehicle,
		Subcategory: "truck",
		Confidence:  0.92,
		Brand:       "UPS",
		BoundingBox: discern.BoundingBox{X: 100, Y: 50, Width: 300, Height: 200},
	},
	{
		Category:    discern.CategoryVehicle,
		Subcategory: "delivery_truck",
		Confidence:  0.87,
		Brand:       "FedEx",
		BoundingBox: discern.BoundingBox{X: 80, Y: 60, Width: 320, Height: 180},
	},
	{
		Category:    discern.CategoryContainer,
		Subcategory: "shipping_container",
		Confidence:  0.95,
		BoundingBox: discern.BoundingBox{X: 0, Y: 100, Width: 400, Height: 150},
	},
	{
		Category:    discern.CategoryInfrastructure,
		Subcategory: "warehouse",
		Confidence:  0.78,
		BoundingBox: discern.BoundingBox{X: 200, Y: 0, Width: 600, Height: 300},
	},
}

var mockTexts = []string{
	"UPS 1Z999AA1234567890",
	"FLEET 12345",
	"CONTAINER MSCU7654321",
	"LICENSE ABC123",
	"VEHICLE ID VH-9876",
	"FEDEX 7777 8888 9999",
	"TRUCK #T-4567",
}

// MockProvider serves canned classifications and text. The selection is
// derived from the image bytes, so the same image always yields the same
// result.
type MockProvider struct{}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (m *MockProvider) Name() string { return mockProviderName }

func (m *MockProvider) Classify(ctx context.Context, img Image) (*discern.ClassificationBranch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	rng := seeded(img.Data, 1)

	n := 1 + rng.IntN(3)
	picked := rng.Perm(len(mockClassifications))[:n]

	branch := &discern.ClassificationBranch{
		ImageKey:         img.Key,
		Classifications:  make([]discern.Classification, 0, n),
		DetectedObjects:  make([]discern.DetectedObject, 0, n),
		ConfidenceScores: make(map[string]float64, n),
	}
	for _, i := range picked {
		c := mockClassifications[i]
		c.Confidence = max(0.5, min(1.0, c.Confidence+(rng.Float64()*0.2-0.1)))
		branch.Classifications = append(branch.Classifications, c)
		branch.DetectedObjects = append(branch.DetectedObjects, discern.DetectedObject{
			Name:        c.Subcategory,
			Confidence:  c.Confidence,
			BoundingBox: c.BoundingBox,
		})
		branch.ConfidenceScores[c.Subcategory] = c.Confidence
	}
	branch.ProcessingMetadata = discern.ProcessingMetadata{
		APIProvider:      mockProviderName,
		ModelVersion:     "mock-v1.0",
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
	return branch, nil
}

func (m *MockProvider) ExtractText(ctx context.Context, img Image) (*discern.TextBranch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	rng := seeded(img.Data, 2)

	n := 1 + rng.IntN(4)
	picked := rng.Perm(len(mockTexts))[:n]

	texts := make([]string, 0, n)
	blocks := make([]discern.TextBlock, 0, n)
	var confSum float64
	for i, idx := range picked {
		text := mockTexts[idx]
		conf := 0.85 + rng.Float64()*0.13
		confSum += conf
		texts = append(texts, text)
		blocks = append(blocks, discern.TextBlock{
			Text:       text,
			Confidence: conf,
			BoundingBox: discern.BoundingBox{
				X:      float64(50 + rng.IntN(151)),
				Y:      float64(50 + i*40),
				Width:  float64(len(text) * 8),
				Height: 25,
			},
		})
	}
	extracted := strings.Join(texts, " ")

	return &discern.TextBranch{
		ImageKey:              img.Key,
		ExtractedText:         extracted,
		TextBlocks:            blocks,
		StructuredIdentifiers: fusion.ExtractIdentifiers(extracted),
		ProcessingMetadata: discern.ProcessingMetadata{
			APIProvider:      mockProviderName,
			TextConfidence:   confSum / float64(len(blocks)),
			ProcessingTimeMs: time.Since(start).Milliseconds(),
		},
	}, nil
}

func seeded(data []byte, stream uint64) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write(data)
	return rand.New(rand.NewPCG(h.Sum64(), stream))
}
