package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	cfg "github.com/cgc-labs/docquery/internal/config"
	"github.com/cgc-labs/docquery/internal/core"
	"github.com/cgc-labs/docquery/internal/core/ranker"
	"github.com/cgc-labs/docquery/internal/core/storage"
	"github.com/cgc-labs/docquery/internal/models"
)

// ErrNoDocuments means none of the requested documents yielded any chunks.
var ErrNoDocuments = errors.New("no valid documents found for the provided ids")

const insufficientAnswer = "I don't have enough information to answer this question based on the documents provided."

const timeoutNotice = "\nResponse generation timed out."

// Lead-in phrases the model tends to prepend; stripped from the first
// streamed chunk so clients see the answer directly.
var answerLeadIns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(based on|according to) the (provided |)context,?\s*`),
	regexp.MustCompile(`(?i)^(the answer is|to answer your question)[,:]?\s*`),
}

var summaryLeadIns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(here is|here's|this is|the following is) (a|the) summary:?\s*`),
	regexp.MustCompile(`(?i)^summary:?\s*`),
}

// questionExpansions broadens common question forms with synonyms before
// embedding; the expanded text is concatenated with the original.
var questionExpansions = []struct{ from, to string }{
	{"who is", "who is information about person details"},
	{"what is", "what is information about details"},
	{"when", "when date time"},
	{"where", "where location place"},
	{"how much", "how much amount cost price value"},
	{"salary", "salary income compensation"},
}

// AnalysisResult holds the outcome of full-document analysis.
type AnalysisResult struct {
	Summary         string `json:"summary"`
	Recommendations string `json:"recommendations"`
}

// QueryService answers questions over ingested documents: fetch chunks,
// rank, diversify, prompt the model.
type QueryService struct {
	store    *storage.Store
	embedder core.EmbeddingProvider
	llm      core.LLMProvider
	ranker   *ranker.Ranker
	conf     *cfg.Config
	log      *slog.Logger
}

func NewQueryService(store *storage.Store, embedder core.EmbeddingProvider, llm core.LLMProvider, conf *cfg.Config) *QueryService {
	return &QueryService{
		store:    store,
		embedder: embedder,
		llm:      llm,
		ranker:   ranker.New(conf.OverfetchFactor, conf.DiversityThreshold),
		conf:     conf,
		log:      slog.With("component", "query"),
	}
}

// Query answers a question over the given documents. Provider failures
// degrade the response rather than failing the call: an unreachable
// embedder falls back to keyword ranking, an unreachable generator yields
// an empty answer with the retrieval confidence intact.
func (s *QueryService) Query(ctx context.Context, documentIDs []string, question string, maxResults int, minScore float32) (*models.QueryResult, error) {
	start := time.Now()

	ranked, selected, err := s.retrieve(ctx, documentIDs, question, maxResults, minScore)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return &models.QueryResult{
			Answer:           insufficientAnswer,
			ConfidenceScore:  0,
			ProcessingTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	prompt := buildPrompt(question, buildContext(selected), ranked)
	genCtx, cancel := context.WithTimeout(ctx, s.conf.GenerateTimeout)
	defer cancel()
	answer, err := s.llm.Generate(genCtx, prompt)
	if err != nil {
		s.log.Error("answer generation failed", "error", err)
		answer = ""
	}
	answer = stripLeadIns(answer, answerLeadIns)

	return &models.QueryResult{
		Answer:           strings.TrimSpace(answer),
		ConfidenceScore:  ranker.AverageScore(ranked),
		RelevantChunks:   selected,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// QueryStream answers a question as a stream of partial chunks. The first
// chunk has boilerplate lead-ins stripped; if generation exceeds the
// configured timeout a timeout notice is emitted before the done event.
func (s *QueryService) QueryStream(ctx context.Context, documentIDs []string, question string, maxResults int, minScore float32) (<-chan core.StreamEvent, error) {
	ranked, selected, err := s.retrieve(ctx, documentIDs, question, maxResults, minScore)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return singleEventStream(insufficientAnswer), nil
	}
	prompt := buildPrompt(question, buildContext(selected), ranked)
	return s.generateStream(ctx, prompt, answerLeadIns)
}

// retrieve runs the shared retrieval pipeline: enhance, fetch, rank with
// fallback, then diversity-select. Both return slices are empty when
// nothing relevant was found.
func (s *QueryService) retrieve(ctx context.Context, documentIDs []string, question string, maxResults int, minScore float32) ([]models.RankedChunk, []models.Chunk, error) {
	chunks := s.fetchAllChunks(ctx, documentIDs)
	if len(chunks) == 0 {
		return nil, nil, ErrNoDocuments
	}

	enhanced := enhanceQuestion(question)
	var queryEmbedding []float32
	embedding, err := s.embedder.EmbedText(ctx, enhanced)
	if err != nil {
		s.log.Error("question embedding failed, falling back to keywords", "error", err)
	} else {
		queryEmbedding = embedding
	}

	threshold := minScore
	if s.conf.MaxRelevanceFloor < threshold {
		threshold = s.conf.MaxRelevanceFloor
	}
	ranked := s.ranker.RankByEmbedding(chunks, queryEmbedding, maxResults, threshold)
	if len(ranked) == 0 {
		s.log.Info("no chunks above threshold, trying keyword match", "threshold", threshold)
		ranked = s.ranker.RankByKeywords(chunks, question, maxResults)
	}
	if len(ranked) == 0 {
		return nil, nil, nil
	}
	selected := s.ranker.SelectDiverse(ranked, maxResults)
	return ranked, selected, nil
}

// fetchAllChunks loads chunks for every document concurrently, bounded by
// one overall timeout. A document that fails to load contributes nothing.
func (s *QueryService) fetchAllChunks(ctx context.Context, documentIDs []string) []models.Chunk {
	ctx, cancel := context.WithTimeout(ctx, s.conf.FetchTimeout)
	defer cancel()

	results := make([][]models.Chunk, len(documentIDs))
	g := new(errgroup.Group)
	g.SetLimit(s.conf.WorkerPoolSize)
	for i, id := range documentIDs {
		i, id := i, id
		g.Go(func() error {
			chunks, err := s.store.LoadChunks(ctx, id)
			if err != nil {
				s.log.Error("failed to load chunks", "id", id, "error", err)
				return nil
			}
			results[i] = chunks
			return nil
		})
	}
	_ = g.Wait()

	var all []models.Chunk
	for _, chunks := range results {
		all = append(all, chunks...)
	}
	return all
}

// Summarize produces a complete summary of one stored document.
func (s *QueryService) Summarize(ctx context.Context, documentID string) (string, error) {
	text, err := s.documentText(ctx, documentID)
	if err != nil {
		return "", err
	}
	genCtx, cancel := context.WithTimeout(ctx, s.conf.GenerateTimeout)
	defer cancel()
	summary, err := s.llm.Generate(genCtx, summaryPrompt(text))
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	return strings.TrimSpace(stripLeadIns(summary, summaryLeadIns)), nil
}

// SummarizeStream streams a summary of one stored document.
func (s *QueryService) SummarizeStream(ctx context.Context, documentID string) (<-chan core.StreamEvent, error) {
	text, err := s.documentText(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return s.generateStream(ctx, summaryPrompt(text), summaryLeadIns)
}

// Analyze produces both a summary and actionable recommendations.
func (s *QueryService) Analyze(ctx context.Context, documentID string) (*AnalysisResult, error) {
	text, err := s.documentText(ctx, documentID)
	if err != nil {
		return nil, err
	}
	genCtx, cancel := context.WithTimeout(ctx, s.conf.GenerateTimeout)
	defer cancel()

	summary, err := s.llm.Generate(genCtx, summaryPrompt(text))
	if err != nil {
		return nil, fmt.Errorf("generate summary: %w", err)
	}
	recommendations, err := s.llm.Generate(genCtx,
		"Based on this document, provide 3-5 key recommendations or actionable insights: \n\n"+text)
	if err != nil {
		return nil, fmt.Errorf("generate recommendations: %w", err)
	}
	return &AnalysisResult{
		Summary:         strings.TrimSpace(stripLeadIns(summary, summaryLeadIns)),
		Recommendations: strings.TrimSpace(recommendations),
	}, nil
}

// documentText reassembles a document's text from its stored chunks.
func (s *QueryService) documentText(ctx context.Context, documentID string) (string, error) {
	chunks, err := s.store.LoadChunks(ctx, documentID)
	if err != nil {
		return "", err
	}
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	return strings.Join(texts, "\n\n"), nil
}

// generateStream wraps the provider stream with first-chunk lead-in
// stripping and the generation timeout.
func (s *QueryService) generateStream(ctx context.Context, prompt string, leadIns []*regexp.Regexp) (<-chan core.StreamEvent, error) {
	genCtx, cancel := context.WithTimeout(ctx, s.conf.GenerateTimeout)
	events, err := s.llm.GenerateStream(genCtx, prompt)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan core.StreamEvent)
	go func() {
		defer close(out)
		defer cancel()

		emit := func(ev core.StreamEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		first := true
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					if errors.Is(genCtx.Err(), context.DeadlineExceeded) {
						s.log.Warn("generation timed out", "timeout", s.conf.GenerateTimeout)
						emit(core.StreamEvent{Text: timeoutNotice})
						emit(core.StreamEvent{Done: true})
					}
					return
				}
				if ev.Text != "" && first {
					ev.Text = stripLeadIns(ev.Text, leadIns)
					first = false
					if ev.Text == "" && !ev.Done {
						continue
					}
				}
				if !emit(ev) {
					return
				}
				if ev.Done {
					return
				}
			case <-genCtx.Done():
				if errors.Is(genCtx.Err(), context.DeadlineExceeded) {
					s.log.Warn("generation timed out", "timeout", s.conf.GenerateTimeout)
					emit(core.StreamEvent{Text: timeoutNotice})
				}
				emit(core.StreamEvent{Done: true})
				return
			}
		}
	}()
	return out, nil
}

// singleEventStream delivers one text chunk followed by done.
func singleEventStream(text string) <-chan core.StreamEvent {
	events := make(chan core.StreamEvent, 2)
	events <- core.StreamEvent{Text: text}
	events <- core.StreamEvent{Done: true}
	close(events)
	return events
}

func stripLeadIns(text string, leadIns []*regexp.Regexp) string {
	for _, re := range leadIns {
		text = re.ReplaceAllString(text, "")
	}
	return text
}

func enhanceQuestion(question string) string {
	enhanced := strings.ToLower(question)
	for _, e := range questionExpansions {
		enhanced = strings.ReplaceAll(enhanced, e.from, e.to)
	}
	return enhanced + " " + question
}

// codeSectionOrder fixes the order code sections appear in assembled context.
var codeSectionOrder = []models.ContentType{
	models.ContentCodeGo, models.ContentCodePython, models.ContentCodeJS,
	models.ContentCodeCSharp, models.ContentCodeSQL, models.ContentCodeXML,
	models.ContentCodeJSON, models.ContentCodeOther,
}

// buildContext groups the selected chunks by kind so the prompt can point
// the model at tables and code explicitly.
func buildContext(chunks []models.Chunk) string {
	var tables, text []string
	code := make(map[models.ContentType][]string)
	for _, c := range chunks {
		switch {
		case c.ContentType == models.ContentTable:
			tables = append(tables, c.Text)
		case c.ContentType.IsCode():
			code[c.ContentType] = append(code[c.ContentType], c.Text)
		default:
			text = append(text, c.Text)
		}
	}

	var b strings.Builder
	if len(tables) > 0 {
		b.WriteString("### Tables\n\n")
		b.WriteString(strings.Join(tables, "\n\n"))
		b.WriteString("\n\n")
	}
	for _, ct := range codeSectionOrder {
		if len(code[ct]) == 0 {
			continue
		}
		b.WriteString("### " + strings.ToUpper(string(ct)) + "\n\n")
		b.WriteString(strings.Join(code[ct], "\n\n"))
		b.WriteString("\n\n")
	}
	if len(text) > 0 {
		b.WriteString("### Document Text\n\n")
		b.WriteString(strings.Join(text, "\n\n"))
	}
	return strings.TrimSpace(b.String())
}

// buildPrompt assembles the answer prompt with instructions adapted to the
// kinds of content present and the retrieval confidence.
func buildPrompt(question, contextText string, ranked []models.RankedChunk) string {
	var instructions []string
	if strings.Contains(contextText, "### Tables") {
		instructions = append(instructions,
			"The context contains tables. Read table rows carefully and use exact values from them.")
	}
	if strings.Contains(contextText, "### CODE_") {
		instructions = append(instructions,
			"The context contains source code. Refer to specific identifiers and explain what the code does when relevant.")
	}
	if strings.Contains(contextText, "Math Formula:") {
		instructions = append(instructions,
			"The context contains mathematical formulas. Preserve their notation when citing them.")
	}
	if keywords := ranker.Keywords(question); len(keywords) > 0 {
		instructions = append(instructions,
			"The question focuses on these key concepts: "+strings.Join(keywords, ", ")+
				". Pay special attention to these terms in the context.")
	}

	avg := ranker.AverageScore(ranked)
	switch {
	case avg < 0.7:
		instructions = append(instructions, fmt.Sprintf(
			"The retrieved context has moderate relevance (%.2f). If the context does not fully answer the question, say what is missing.", avg))
	case avg > 0.85:
		instructions = append(instructions, fmt.Sprintf(
			"The retrieved context is highly relevant (%.2f). Answer directly and precisely.", avg))
	}

	var b strings.Builder
	b.WriteString("You are an intelligent document assistant. Answer the question using only the provided context.\n")
	for _, ins := range instructions {
		b.WriteString("- " + ins + "\n")
	}
	b.WriteString("\nCONTEXT:\n")
	b.WriteString(contextText)
	b.WriteString("\n\nQUESTION: ")
	b.WriteString(question)
	b.WriteString("\n\nANSWER:")
	return b.String()
}

func summaryPrompt(text string) string {
	return `You are a professional document summarizer. Summarize the document below.
Guidelines:
1. Capture the main purpose and key points.
2. Preserve important names, dates and figures.
3. Mention notable tables or data if present.
4. Keep the original tone and intent.
5. Do not add information that is not in the document.
6. Keep the summary under 200 words.

DOCUMENT:

` + text
}
