package ranker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgc-labs/docquery/internal/models"
)

func TestCosineSimilaritySelfIsOne(t *testing.T) {
	v := []float32{0.3, -0.5, 0.8, 0.1}
	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-6)
}

func TestCosineSimilaritySymmetricAndBounded(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{-3, 0.5, 2}
	ab := CosineSimilarity(a, b)
	ba := CosineSimilarity(b, a)
	assert.InDelta(t, float64(ab), float64(ba), 1e-6)
	assert.LessOrEqual(t, float64(ab), 1.0)
	assert.GreaterOrEqual(t, float64(ab), -1.0)
}

func TestCosineSimilarityDegenerateInputs(t *testing.T) {
	assert.Equal(t, float32(0), CosineSimilarity(nil, []float32{1}))
	assert.Equal(t, float32(0), CosineSimilarity([]float32{1}, nil))
	assert.Equal(t, float32(0), CosineSimilarity([]float32{1, 2}, []float32{1}))
	assert.Equal(t, float32(0), CosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}

func chunk(text string, embedding []float32) models.Chunk {
	return models.Chunk{Text: text, Embedding: embedding, ContentType: models.ContentText}
}

func TestRankByEmbeddingFiltersAndSorts(t *testing.T) {
	r := New(3, 0.7)
	query := []float32{1, 0}
	chunks := []models.Chunk{
		chunk("orthogonal", []float32{0, 1}),
		chunk("aligned", []float32{1, 0}),
		chunk("close", []float32{0.9, 0.1}),
	}
	ranked := r.RankByEmbedding(chunks, query, 5, 0.3)
	require.Len(t, ranked, 2)
	assert.Equal(t, "aligned", ranked[0].Chunk.Text)
	assert.Equal(t, "close", ranked[1].Chunk.Text)
}

func TestRankByEmbeddingStableOnTies(t *testing.T) {
	r := New(3, 0.7)
	query := []float32{1, 0}
	same := []float32{1, 0}
	chunks := []models.Chunk{
		chunk("first", same), chunk("second", same), chunk("third", same),
	}
	ranked := r.RankByEmbedding(chunks, query, 5, 0)
	require.Len(t, ranked, 3)
	assert.Equal(t, "first", ranked[0].Chunk.Text)
	assert.Equal(t, "second", ranked[1].Chunk.Text)
	assert.Equal(t, "third", ranked[2].Chunk.Text)
}

func TestRankByEmbeddingTruncatesToOverfetch(t *testing.T) {
	r := New(3, 0.7)
	query := []float32{1, 0}
	var chunks []models.Chunk
	for i := 0; i < 10; i++ {
		chunks = append(chunks, chunk("c", []float32{1, 0}))
	}
	ranked := r.RankByEmbedding(chunks, query, 2, 0)
	assert.Len(t, ranked, 6) // k=2, overfetch 3x
}

func TestRankByKeywordsScoresByOverlap(t *testing.T) {
	r := New(3, 0.7)
	chunks := []models.Chunk{
		chunk("The warranty covers the engine and transmission.", nil),
		chunk("The warranty excludes tires.", nil),
		chunk("Completely unrelated content.", nil),
	}
	ranked := r.RankByKeywords(chunks, "What does the warranty cover for the engine?", 5)
	require.Len(t, ranked, 2)
	assert.Equal(t, "The warranty covers the engine and transmission.", ranked[0].Chunk.Text)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
}

func TestRankByKeywordsIgnoresStopWords(t *testing.T) {
	r := New(3, 0.7)
	chunks := []models.Chunk{chunk("the and or but in on at", nil)}
	ranked := r.RankByKeywords(chunks, "the and or but", 5)
	assert.Empty(t, ranked)
}

func TestSelectDiverseSuppressesNearDuplicates(t *testing.T) {
	r := New(3, 0.7)
	ranked := []models.RankedChunk{
		{Chunk: chunk("alpha beta gamma delta", nil), Score: 0.9},
		{Chunk: chunk("alpha beta gamma delta extra", nil), Score: 0.8},
		{Chunk: chunk("totally different words here", nil), Score: 0.7},
	}
	// Sanity: the pool really contains a pair above the threshold.
	require.Greater(t, jaccard(
		normalizeText(ranked[0].Chunk.Text),
		normalizeText(ranked[1].Chunk.Text)), 0.7)

	selected := r.SelectDiverse(ranked, 3)
	require.Len(t, selected, 2)
	assert.Equal(t, "alpha beta gamma delta", selected[0].Text)
	assert.Equal(t, "totally different words here", selected[1].Text)

	for i := range selected {
		for j := i + 1; j < len(selected); j++ {
			sim := jaccard(normalizeText(selected[i].Text), normalizeText(selected[j].Text))
			assert.LessOrEqual(t, sim, 0.7)
		}
	}
}

func TestSelectDiverseAlwaysTakesTopResult(t *testing.T) {
	r := New(3, 0.7)
	ranked := []models.RankedChunk{
		{Chunk: chunk("only candidate text", nil), Score: 0.4},
	}
	selected := r.SelectDiverse(ranked, 5)
	require.Len(t, selected, 1)
	assert.Equal(t, "only candidate text", selected[0].Text)
}

func TestSelectDiverseStopsAtK(t *testing.T) {
	r := New(3, 0.7)
	ranked := []models.RankedChunk{
		{Chunk: chunk("first unique passage", nil), Score: 0.9},
		{Chunk: chunk("second distinct wording", nil), Score: 0.8},
		{Chunk: chunk("third separate phrasing", nil), Score: 0.7},
	}
	selected := r.SelectDiverse(ranked, 2)
	assert.Len(t, selected, 2)
}

func TestAverageScore(t *testing.T) {
	assert.Equal(t, float32(0), AverageScore(nil))
	ranked := []models.RankedChunk{{Score: 0.2}, {Score: 0.8}}
	assert.InDelta(t, 0.5, float64(AverageScore(ranked)), 1e-6)
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "hello world 42", normalizeText("  Hello,\n  WORLD!  42  "))
}

func TestKeywords(t *testing.T) {
	// Stop words and single characters drop out; output is sorted.
	assert.Equal(t, []string{"salary", "what"}, Keywords("What is the salary payment?"))
	assert.Empty(t, Keywords("is the a"))
}
