package vision

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"image-discerner/internal/fusion"
)

func TestMockProviderIsDeterministic(t *testing.T) {
	m := NewMockProvider()
	img := Image{Key: "a.png", Data: []byte("image-bytes-1")}

	first, err := m.Classify(context.Background(), img)
	require.NoError(t, err)
	second, err := m.Classify(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, first.Classifications, second.Classifications)
	assert.Equal(t, first.ConfidenceScores, second.ConfidenceScores)

	t1, err := m.ExtractText(context.Background(), img)
	require.NoError(t, err)
	t2, err := m.ExtractText(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, t1.ExtractedText, t2.ExtractedText)
}

func TestMockProviderClassify(t *testing.T) {
	m := NewMockProvider()
	for _, seed := range []string{"one", "two", "three", "four", "five"} {
		branch, err := m.Classify(context.Background(), Image{Key: seed, Data: []byte(seed)})
		require.NoError(t, err)

		assert.Equal(t, seed, branch.ImageKey)
		assert.GreaterOrEqual(t, len(branch.Classifications), 1)
		assert.LessOrEqual(t, len(branch.Classifications), 3)
		assert.Len(t, branch.DetectedObjects, len(branch.Classifications))
		assert.Len(t, branch.ConfidenceScores, len(branch.Classifications))
		assert.Equal(t, "mock_backend", branch.ProcessingMetadata.APIProvider)
		for _, c := range branch.Classifications {
			assert.GreaterOrEqual(t, c.Confidence, 0.5)
			assert.LessOrEqual(t, c.Confidence, 1.0)
			assert.Equal(t, c.Confidence, branch.ConfidenceScores[c.Subcategory])
		}
	}
}

func TestMockProviderExtractText(t *testing.T) {
	m := NewMockProvider()
	for _, seed := range []string{"one", "two", "three", "four", "five"} {
		branch, err := m.ExtractText(context.Background(), Image{Data: []byte(seed)})
		require.NoError(t, err)

		assert.GreaterOrEqual(t, len(branch.TextBlocks), 1)
		assert.LessOrEqual(t, len(branch.TextBlocks), 4)
		assert.Equal(t, fusion.ExtractIdentifiers(branch.ExtractedText), branch.StructuredIdentifiers)
		assert.GreaterOrEqual(t, branch.ProcessingMetadata.TextConfidence, 0.85)
		assert.LessOrEqual(t, branch.ProcessingMetadata.TextConfidence, 0.98)
	}
}

func TestMockProviderHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMockProvider()
	_, err := m.Classify(ctx, Image{Data: []byte("x")})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = m.ExtractText(ctx, Image{Data: []byte("x")})
	assert.ErrorIs(t, err, context.Canceled)
}
