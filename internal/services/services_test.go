package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "github.com/cgc-labs/docquery/internal/config"
	"github.com/cgc-labs/docquery/internal/core"
	"github.com/cgc-labs/docquery/internal/core/storage"
	"github.com/cgc-labs/docquery/internal/models"
)

func testConfig() *cfg.Config {
	return &cfg.Config{
		ChunkBatchSize:     10,
		CacheEnabled:       false,
		ChunkSize:          1000,
		OverfetchFactor:    3,
		DiversityThreshold: 0.7,
		MaxRelevanceFloor:  0.3,
		WorkerPoolSize:     4,
		FetchTimeout:       5 * time.Second,
		GenerateTimeout:    5 * time.Second,
	}
}

func newTestStore(t *testing.T, conf *cfg.Config) *storage.Store {
	t.Helper()
	records, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)
	return storage.NewStore(records, conf)
}

type fakeExtractor struct {
	pages  []string
	tables []core.PageTable
	err    error
}

func (f *fakeExtractor) ExtractPages(context.Context, []byte) ([]string, error) {
	return f.pages, f.err
}

func (f *fakeExtractor) ExtractTables(context.Context, []byte) ([]core.PageTable, error) {
	return f.tables, nil
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, core.ErrBlankText
	}
	return f.vec, f.err
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = f.vec
	}
	return out, nil
}

type fakeLLM struct {
	response string
	stream   []core.StreamEvent
	silent   bool
	prompts  []string
}

func (f *fakeLLM) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, nil
}

func (f *fakeLLM) GenerateStream(ctx context.Context, prompt string) (<-chan core.StreamEvent, error) {
	f.prompts = append(f.prompts, prompt)
	events := make(chan core.StreamEvent, len(f.stream)+1)
	if f.silent {
		go func() {
			<-ctx.Done()
			close(events)
		}()
		return events, nil
	}
	for _, ev := range f.stream {
		events <- ev
	}
	close(events)
	return events, nil
}

func newDocService(t *testing.T, conf *cfg.Config, store *storage.Store, embedder core.EmbeddingProvider, ext core.PageExtractor) *DocumentService {
	t.Helper()
	svc := NewDocumentService(store, embedder, conf)
	svc.extractor = func(string) core.PageExtractor { return ext }
	return svc
}

func TestProcessDocumentCompletes(t *testing.T) {
	conf := testConfig()
	store := newTestStore(t, conf)
	ext := &fakeExtractor{
		pages: []string{
			"The mission statement describes the goals of the organization in plain language.",
			"A second page continues the description with operational details and budget notes.",
		},
		tables: []core.PageTable{{Page: 2, Text: "Table from page 2:\n\nName    Amount\nAlpha   12\nBeta    30"}},
	}
	svc := newDocService(t, conf, store, &fakeEmbedder{vec: []float32{1, 0}}, ext)

	doc, err := svc.ProcessDocument(context.Background(), UploadFile{Name: "report.pdf", Data: []byte("%PDF")})
	require.NoError(t, err)
	assert.Equal(t, 2, doc.PageCount)
	assert.Greater(t, doc.ChunksCount, 0)
	assert.Equal(t, "report.pdf", doc.Filename)

	st, ok := svc.DocumentStatus(doc.ID)
	require.True(t, ok)
	assert.Equal(t, 100, st.Progress)
	assert.Equal(t, "Completed", st.Message)

	chunks, err := store.LoadChunks(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, doc.ChunksCount)
	assert.Equal(t, models.ContentTable, chunks[0].ContentType)
	assert.Equal(t, 2, chunks[0].StartPage)
}

func TestProcessDocumentFailureSetsFailedStatus(t *testing.T) {
	conf := testConfig()
	store := newTestStore(t, conf)
	ext := &fakeExtractor{err: errors.New("corrupt file")}
	svc := newDocService(t, conf, store, &fakeEmbedder{vec: []float32{1}}, ext)

	_, err := svc.ProcessDocument(context.Background(), UploadFile{Name: "bad.pdf", Data: []byte("x")})
	require.Error(t, err)

	report := svc.Status()
	assert.Equal(t, 1, report.Failed)
	for _, st := range report.Documents {
		assert.Equal(t, -1, st.Progress)
		assert.True(t, strings.HasPrefix(st.Message, "Failed: "))
	}
}

func TestStatusCountsBuckets(t *testing.T) {
	conf := testConfig()
	store := newTestStore(t, conf)
	svc := newDocService(t, conf, store, &fakeEmbedder{vec: []float32{1}}, &fakeExtractor{pages: []string{"A short page about nothing in particular."}})

	_, err := svc.ProcessDocument(context.Background(), UploadFile{Name: "ok.pdf", Data: []byte("x")})
	require.NoError(t, err)

	svc.extractor = func(string) core.PageExtractor { return &fakeExtractor{err: errors.New("boom")} }
	_, err = svc.ProcessDocument(context.Background(), UploadFile{Name: "bad.pdf", Data: []byte("x")})
	require.Error(t, err)

	report := svc.Status()
	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Processing)
	assert.Equal(t, 0, report.ActiveProcessingCount)
}

func TestRemoveDocumentNeverStored(t *testing.T) {
	conf := testConfig()
	svc := newDocService(t, conf, newTestStore(t, conf), &fakeEmbedder{vec: []float32{1}}, &fakeExtractor{})

	existed, err := svc.RemoveDocument(context.Background(), "no-such-id")
	require.NoError(t, err)
	assert.False(t, existed)
}

func storeDoc(t *testing.T, store *storage.Store, id string, chunks []models.Chunk) {
	t.Helper()
	require.NoError(t, store.StoreChunks(context.Background(), id, chunks))
	require.NoError(t, store.StoreMetadata(context.Background(), &models.Document{
		ID: id, Filename: id + ".pdf", ChunksCount: len(chunks),
	}))
}

func TestQueryAnswersFromRelevantChunks(t *testing.T) {
	conf := testConfig()
	store := newTestStore(t, conf)
	storeDoc(t, store, "doc-1", []models.Chunk{
		{Text: "The annual budget was 4.2 million dollars.", Embedding: []float32{1, 0}, ContentType: models.ContentText},
	})

	llm := &fakeLLM{response: "Based on the provided context, the budget was 4.2 million dollars."}
	qs := NewQueryService(store, &fakeEmbedder{vec: []float32{1, 0}}, llm, conf)

	result, err := qs.Query(context.Background(), []string{"doc-1"}, "what was the budget?", 5, 0.6)
	require.NoError(t, err)
	assert.Equal(t, "the budget was 4.2 million dollars.", result.Answer)
	assert.InDelta(t, 1.0, float64(result.ConfidenceScore), 1e-6)
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "annual budget")
	assert.Contains(t, llm.prompts[0], "QUESTION: what was the budget?")
}

func TestQueryNoRelevantChunksReturnsInsufficient(t *testing.T) {
	conf := testConfig()
	store := newTestStore(t, conf)
	storeDoc(t, store, "doc-1", []models.Chunk{
		{Text: "banana orange apple", Embedding: []float32{0, 1}, ContentType: models.ContentText},
	})

	llm := &fakeLLM{response: "should never be called"}
	qs := NewQueryService(store, &fakeEmbedder{vec: []float32{1, 0}}, llm, conf)

	result, err := qs.Query(context.Background(), []string{"doc-1"}, "quantum flux capacitor", 5, 0.6)
	require.NoError(t, err)
	assert.Equal(t, insufficientAnswer, result.Answer)
	assert.Zero(t, result.ConfidenceScore)
	assert.Empty(t, llm.prompts)
}

func TestQueryKeywordFallbackWhenEmbeddingFails(t *testing.T) {
	conf := testConfig()
	store := newTestStore(t, conf)
	storeDoc(t, store, "doc-1", []models.Chunk{
		{Text: "The salary for engineers is listed in the compensation table.", ContentType: models.ContentText},
	})

	llm := &fakeLLM{response: "Engineers' salary is in the table."}
	embedder := &fakeEmbedder{err: errors.New("embedding service down")}
	qs := NewQueryService(store, embedder, llm, conf)

	result, err := qs.Query(context.Background(), []string{"doc-1"}, "what is the engineer salary?", 5, 0.6)
	require.NoError(t, err)
	assert.Equal(t, "Engineers' salary is in the table.", result.Answer)
	assert.Greater(t, result.ConfidenceScore, float32(0))
}

func TestQueryUnknownDocumentsSkipped(t *testing.T) {
	conf := testConfig()
	store := newTestStore(t, conf)
	for _, id := range []string{"a", "b", "c", "d"} {
		storeDoc(t, store, id, []models.Chunk{
			{Text: "Document " + id + " content about shipping routes.", Embedding: []float32{1, 0}, ContentType: models.ContentText},
		})
	}

	qs := NewQueryService(store, &fakeEmbedder{vec: []float32{1, 0}}, &fakeLLM{response: "ok"}, conf)
	chunks := qs.fetchAllChunks(context.Background(), []string{"a", "b", "missing", "c", "d"})
	assert.Len(t, chunks, 4)
}

func TestQueryNoDocumentsAtAll(t *testing.T) {
	conf := testConfig()
	qs := NewQueryService(newTestStore(t, conf), &fakeEmbedder{vec: []float32{1}}, &fakeLLM{}, conf)

	_, err := qs.Query(context.Background(), []string{"missing"}, "anything?", 5, 0.6)
	assert.ErrorIs(t, err, ErrNoDocuments)
}

func TestQueryStreamStripsLeadInOnFirstChunk(t *testing.T) {
	conf := testConfig()
	store := newTestStore(t, conf)
	storeDoc(t, store, "doc-1", []models.Chunk{
		{Text: "The capital of France is Paris.", Embedding: []float32{1, 0}, ContentType: models.ContentText},
	})

	llm := &fakeLLM{stream: []core.StreamEvent{
		{Text: "According to the provided context, Paris "},
		{Text: "is the capital."},
		{Done: true},
	}}
	qs := NewQueryService(store, &fakeEmbedder{vec: []float32{1, 0}}, llm, conf)

	events, err := qs.QueryStream(context.Background(), []string{"doc-1"}, "capital of France?", 5, 0.6)
	require.NoError(t, err)

	var texts []string
	for ev := range events {
		require.NoError(t, ev.Err)
		if ev.Text != "" {
			texts = append(texts, ev.Text)
		}
	}
	assert.Equal(t, []string{"Paris ", "is the capital."}, texts)
}

func TestQueryStreamTimesOut(t *testing.T) {
	conf := testConfig()
	conf.GenerateTimeout = 50 * time.Millisecond
	store := newTestStore(t, conf)
	storeDoc(t, store, "doc-1", []models.Chunk{
		{Text: "Some relevant content here.", Embedding: []float32{1, 0}, ContentType: models.ContentText},
	})

	qs := NewQueryService(store, &fakeEmbedder{vec: []float32{1, 0}}, &fakeLLM{silent: true}, conf)
	events, err := qs.QueryStream(context.Background(), []string{"doc-1"}, "anything?", 5, 0.6)
	require.NoError(t, err)

	var texts []string
	doneSeen := false
	for ev := range events {
		if ev.Done {
			doneSeen = true
		}
		if ev.Text != "" {
			texts = append(texts, ev.Text)
		}
	}
	assert.True(t, doneSeen)
	assert.Equal(t, []string{timeoutNotice}, texts)
}

func TestSummarizeStripsLeadIn(t *testing.T) {
	conf := testConfig()
	store := newTestStore(t, conf)
	storeDoc(t, store, "doc-1", []models.Chunk{
		{Text: "A long report about logistics.", ContentType: models.ContentText},
	})

	llm := &fakeLLM{response: "Here is a summary: logistics were discussed."}
	qs := NewQueryService(store, &fakeEmbedder{vec: []float32{1}}, llm, conf)

	summary, err := qs.Summarize(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "logistics were discussed.", summary)
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "A long report about logistics.")
}

func TestAnalyzeReturnsSummaryAndRecommendations(t *testing.T) {
	conf := testConfig()
	store := newTestStore(t, conf)
	storeDoc(t, store, "doc-1", []models.Chunk{
		{Text: "Quarterly results and plans.", ContentType: models.ContentText},
	})

	llm := &fakeLLM{response: "generated text"}
	qs := NewQueryService(store, &fakeEmbedder{vec: []float32{1}}, llm, conf)

	analysis, err := qs.Analyze(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "generated text", analysis.Summary)
	assert.Equal(t, "generated text", analysis.Recommendations)
	require.Len(t, llm.prompts, 2)
	assert.Contains(t, llm.prompts[1], "recommendations or actionable insights")
}

func TestEnhanceQuestion(t *testing.T) {
	got := enhanceQuestion("What is the salary?")
	assert.Contains(t, got, "information about details")
	assert.Contains(t, got, "salary income compensation")
	assert.Contains(t, got, "What is the salary?")
}

func TestBuildContextGroupsByKind(t *testing.T) {
	ctx := buildContext([]models.Chunk{
		{Text: "plain paragraph", ContentType: models.ContentText},
		{Text: "Name  Value\nA  1", ContentType: models.ContentTable},
		{Text: "```go\nfunc main() {}\n```", ContentType: models.ContentCodeGo},
	})
	assert.Contains(t, ctx, "### Tables")
	assert.Contains(t, ctx, "### CODE_GO")
	assert.Contains(t, ctx, "### Document Text")
	assert.Less(t, strings.Index(ctx, "### Tables"), strings.Index(ctx, "### Document Text"))
}

func TestBuildContextCodeSectionOrder(t *testing.T) {
	ctx := buildContext([]models.Chunk{
		{Text: "```csharp\nvar x = 1;\n```", ContentType: models.ContentCodeCSharp},
		{Text: "```javascript\nconsole.log(1);\n```", ContentType: models.ContentCodeJS},
		{Text: "```go\nfunc main() {}\n```", ContentType: models.ContentCodeGo},
	})
	assert.Less(t, strings.Index(ctx, "### CODE_GO"), strings.Index(ctx, "### CODE_JAVASCRIPT"))
	assert.Less(t, strings.Index(ctx, "### CODE_JAVASCRIPT"), strings.Index(ctx, "### CODE_CSHARP"))
}

func TestBuildPromptAdaptiveInstructions(t *testing.T) {
	ranked := []models.RankedChunk{{Score: 0.95}}
	contextText := "### Tables\n\nName  Value\nA  1"
	prompt := buildPrompt("question?", contextText, ranked)
	assert.Contains(t, prompt, "contains tables")
	assert.Contains(t, prompt, "highly relevant (0.95)")

	ranked = []models.RankedChunk{{Score: 0.4}}
	prompt = buildPrompt("question?", "### Document Text\n\njust text", ranked)
	assert.Contains(t, prompt, "moderate relevance (0.40)")
	assert.NotContains(t, prompt, "contains tables")
}

func TestBuildPromptListsKeyConcepts(t *testing.T) {
	ranked := []models.RankedChunk{{Score: 0.9}}
	prompt := buildPrompt("what was the quarterly revenue?", "### Document Text\n\ntext", ranked)
	assert.Contains(t, prompt, "The question focuses on these key concepts:")
	assert.Contains(t, prompt, "quarterly")
	assert.Contains(t, prompt, "revenue")
	assert.Contains(t, prompt, "Pay special attention to these terms in the context.")

	// Stop-word-only questions get no key-concepts line.
	prompt = buildPrompt("is the", "### Document Text\n\ntext", ranked)
	assert.NotContains(t, prompt, "key concepts")
}
