package tesseract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog"

	"image-discerner/internal/domain/discern"
	"image-discerner/internal/fusion"
	"image-discerner/internal/vision"
)

const providerName = "tesseract"

// Extractor runs the local tesseract engine as a text extractor.
type Extractor struct {
	languages     []string
	clientFactory func() *gosseract.Client
	log           zerolog.Logger
}

func NewExtractor(log zerolog.Logger, languages ...string) *Extractor {
	return &Extractor{languages: languages, clientFactory: gosseract.NewClient, log: log}
}

func (e *Extractor) Name() string { return providerName }

func (e *Extractor) ExtractText(ctx context.Context, img vision.Image) (*discern.TextBranch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	c := e.clientFactory()
	defer c.Close()

	if len(e.languages) > 0 {
		if err := c.SetLanguage(e.languages...); err != nil {
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	if err := c.SetImageFromBytes(img.Data); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	blocks, avg := e.wordBlocks(img.Key, boxes, err)

	extracted := strings.Join(strings.Fields(text), " ")
	return &discern.TextBranch{
		ImageKey:              img.Key,
		ExtractedText:         extracted,
		TextBlocks:            blocks,
		StructuredIdentifiers: fusion.ExtractIdentifiers(extracted),
		ProcessingMetadata: discern.ProcessingMetadata{
			APIProvider:      providerName,
			ModelVersion:     gosseract.Version(),
			TextConfidence:   avg,
			ProcessingTimeMs: time.Since(start).Milliseconds(),
		},
	}, nil
}

// wordBlocks turns the word boxes into text blocks. Without boxes the text
// is still returned, with no blocks and a zero text confidence.
func (e *Extractor) wordBlocks(key string, boxes []gosseract.BoundingBox, err error) ([]discern.TextBlock, float64) {
	if err != nil {
		e.log.Warn().Err(err).Str("image_key", key).Msg("tesseract word boxes unavailable")
		return []discern.TextBlock{}, 0
	}
	return textBlocks(boxes)
}

// textBlocks converts word boxes into text blocks with confidence in [0,1]
// and returns their mean confidence.
func textBlocks(boxes []gosseract.BoundingBox) ([]discern.TextBlock, float64) {
	blocks := make([]discern.TextBlock, 0, len(boxes))
	var sum float64
	for _, b := range boxes {
		word := strings.TrimSpace(b.Word)
		if word == "" {
			continue
		}
		conf := b.Confidence / 100.0
		sum += conf
		blocks = append(blocks, discern.TextBlock{
			Text:       word,
			Confidence: conf,
			BoundingBox: discern.BoundingBox{
				X:      float64(b.Box.Min.X),
				Y:      float64(b.Box.Min.Y),
				Width:  float64(b.Box.Dx()),
				Height: float64(b.Box.Dy()),
			},
		})
	}
	if len(blocks) == 0 {
		return blocks, 0
	}
	return blocks, sum / float64(len(blocks))
}
