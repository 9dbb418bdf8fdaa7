// Package ranker scores passages against a query embedding, falls back to
// keyword overlap when similarity finds nothing, and greedily filters
// near-duplicate passages out of the final selection.
package ranker

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/cgc-labs/docquery/internal/models"
)

var (
	nonWord     = regexp.MustCompile(`\W+`)
	spaceRun    = regexp.MustCompile(`\s+`)
	nonAlphaNum = regexp.MustCompile(`[^a-z0-9 ]`)
)

// stopWords are excluded from keyword matching.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "being": {}, "in": {}, "on": {}, "at": {}, "to": {},
	"for": {}, "with": {}, "by": {}, "about": {}, "like": {}, "through": {},
	"over": {}, "before": {}, "after": {}, "between": {}, "under": {},
	"above": {}, "of": {}, "and": {}, "or": {}, "not": {}, "no": {}, "but": {},
	"pay": {}, "payment": {}, "paying": {},
}

// Ranker holds the tuning knobs for candidate selection.
type Ranker struct {
	overfetch          int
	diversityThreshold float64
}

// New returns a ranker. overfetch is the multiple of k retained before
// diversity filtering; diversityThreshold is the maximum Jaccard similarity
// tolerated between two selected passages.
func New(overfetch int, diversityThreshold float64) *Ranker {
	return &Ranker{overfetch: overfetch, diversityThreshold: diversityThreshold}
}

// CosineSimilarity returns the cosine of the angle between two vectors, or 0
// when either vector is nil, zero-length, mismatched in length, or zero-norm.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// RankByEmbedding scores every chunk against the query embedding, keeps those
// at or above minScore, and returns up to k*overfetch results sorted by score
// descending. The sort is stable: equal scores keep their input order.
func (r *Ranker) RankByEmbedding(chunks []models.Chunk, query []float32, k int, minScore float32) []models.RankedChunk {
	ranked := make([]models.RankedChunk, 0, len(chunks))
	for _, c := range chunks {
		score := CosineSimilarity(c.Embedding, query)
		if score >= minScore {
			ranked = append(ranked, models.RankedChunk{Chunk: c, Score: score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return truncate(ranked, k*r.overfetch)
}

// RankByKeywords is the fallback when embedding similarity yields nothing.
// It tokenizes the question, drops stop words and single characters, and
// scores each chunk as matched keywords over total distinct keywords.
func (r *Ranker) RankByKeywords(chunks []models.Chunk, question string, k int) []models.RankedChunk {
	keywords := extractKeywords(strings.ToLower(question))
	if len(keywords) == 0 {
		return nil
	}
	ranked := make([]models.RankedChunk, 0)
	for _, c := range chunks {
		lower := strings.ToLower(c.Text)
		matches := 0
		for kw := range keywords {
			if strings.Contains(lower, kw) {
				matches++
			}
		}
		if matches > 0 {
			score := float32(matches) / float32(len(keywords))
			ranked = append(ranked, models.RankedChunk{Chunk: c, Score: score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return truncate(ranked, k*r.overfetch)
}

// SelectDiverse walks the ranked list greedily: the top result is always
// taken; each later candidate is accepted only when its normalized word-set
// Jaccard similarity against every accepted passage stays at or below the
// diversity threshold. Stops after k acceptances.
func (r *Ranker) SelectDiverse(ranked []models.RankedChunk, k int) []models.Chunk {
	if len(ranked) == 0 || k <= 0 {
		return nil
	}
	selected := []models.Chunk{ranked[0].Chunk}
	seen := []string{normalizeText(ranked[0].Chunk.Text)}
	for i := 1; i < len(ranked) && len(selected) < k; i++ {
		normalized := normalizeText(ranked[i].Chunk.Text)
		diverse := true
		for _, existing := range seen {
			if jaccard(normalized, existing) > r.diversityThreshold {
				diverse = false
				break
			}
		}
		if diverse {
			selected = append(selected, ranked[i].Chunk)
			seen = append(seen, normalized)
		}
	}
	return selected
}

// AverageScore is the mean score of a ranked list, 0 when empty. Used as the
// confidence value attached to answers.
func AverageScore(ranked []models.RankedChunk) float32 {
	if len(ranked) == 0 {
		return 0
	}
	var sum float64
	for _, rc := range ranked {
		sum += float64(rc.Score)
	}
	return float32(sum / float64(len(ranked)))
}

func truncate(ranked []models.RankedChunk, max int) []models.RankedChunk {
	if max >= 0 && len(ranked) > max {
		return ranked[:max]
	}
	return ranked
}

// Keywords returns the question's distinct non-stop-word terms, sorted for
// deterministic output.
func Keywords(question string) []string {
	set := extractKeywords(strings.ToLower(question))
	keywords := make([]string, 0, len(set))
	for kw := range set {
		keywords = append(keywords, kw)
	}
	sort.Strings(keywords)
	return keywords
}

func extractKeywords(question string) map[string]struct{} {
	keywords := make(map[string]struct{})
	for _, word := range nonWord.Split(question, -1) {
		if len(word) <= 1 {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		keywords[word] = struct{}{}
	}
	return keywords
}

func normalizeText(text string) string {
	text = strings.ToLower(text)
	text = spaceRun.ReplaceAllString(text, " ")
	text = nonAlphaNum.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

func jaccard(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	union := len(setB)
	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		set[w] = struct{}{}
	}
	return set
}
