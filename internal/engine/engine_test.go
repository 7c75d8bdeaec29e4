package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiongqiongyuren/co2yuan3/internal/chunker"
	"github.com/qiongqiongyuren/co2yuan3/internal/domain"
	"github.com/qiongqiongyuren/co2yuan3/internal/embedding/tfidf"
	"github.com/qiongqiongyuren/co2yuan3/internal/loader"
	"github.com/qiongqiongyuren/co2yuan3/internal/summarizer"
	"github.com/qiongqiongyuren/co2yuan3/internal/vectorstore/memory"
)

type fakeLLM struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) (string, error)
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.reply == nil {
		return "ok", nil
	}
	return f.reply(prompt)
}

func writeDocs(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func localOptions(dir string, mode ResponseMode) Options {
	return Options{
		Location:   dir,
		Loader:     loader.NewDirectoryReader(nil),
		Chunker:    chunker.NewSentenceChunker(5, 1),
		Embedder:   tfidf.NewEmbedder(),
		Store:      memory.NewStorage(),
		Summarizer: summarizer.NewFrequencySummarizer(),
		Mode:       mode,
	}
}

func TestBuildAndQueryExtractive(t *testing.T) {
	dir := writeDocs(t, map[string]string{
		"france.txt": "The capital of France is Paris.",
		"energy.txt": "Solar panels convert sunlight into electricity. Wind turbines harvest kinetic energy.",
	})
	e, err := Build(context.Background(), localOptions(dir, ModeExtractive))
	require.NoError(t, err)
	assert.Equal(t, 2, e.Stats().Documents)
	assert.Equal(t, 2, e.Stats().Chunks)

	resp, err := e.Query(context.Background(), "What is the capital of France?")
	require.NoError(t, err)
	assert.Contains(t, resp.Answer, "Paris")
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "france.txt", resp.Sources[0].Chunk.Metadata["file_name"])
}

func TestQueryWithLLMUsesRetrievedContext(t *testing.T) {
	dir := writeDocs(t, map[string]string{"france.txt": "The capital of France is Paris."})
	llm := &fakeLLM{reply: func(string) (string, error) { return "Paris", nil }}
	opts := localOptions(dir, ModeCompact)
	opts.LLM = llm

	e, err := Build(context.Background(), opts)
	require.NoError(t, err)
	resp, err := e.Query(context.Background(), "What is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris", resp.Answer)

	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "The capital of France is Paris.")
	assert.Contains(t, llm.prompts[0], "Query: What is the capital of France?")
}

func TestRebuildFromChangedDirectoryChangesAnswer(t *testing.T) {
	dir := writeDocs(t, map[string]string{"city.txt": "The capital of France is Paris."})
	ctx := context.Background()

	first, err := Build(ctx, localOptions(dir, ModeExtractive))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "city.txt"), []byte("The capital of France is Lyon."), 0o644))
	second, err := Build(ctx, localOptions(dir, ModeExtractive))
	require.NoError(t, err)

	a, err := first.Query(ctx, "capital of France")
	require.NoError(t, err)
	b, err := second.Query(ctx, "capital of France")
	require.NoError(t, err)
	assert.Contains(t, a.Answer, "Paris")
	assert.Contains(t, b.Answer, "Lyon")
}

func TestConcurrentQueries(t *testing.T) {
	dir := writeDocs(t, map[string]string{
		"a.txt": "Coal plants emit carbon dioxide.",
		"b.txt": "The capital of France is Paris.",
	})
	e, err := Build(context.Background(), localOptions(dir, ModeExtractive))
	require.NoError(t, err)

	questions := []string{"Who emits carbon dioxide?", "What is the capital of France?"}
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			resp, err := e.Query(context.Background(), q)
			if err == nil && resp.Answer == "" {
				err = errors.New("empty answer")
			}
			errs <- err
		}(questions[i%2])
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestLexicalFallbackForUnknownTerms(t *testing.T) {
	dir := writeDocs(t, map[string]string{"a.txt": "Alpha beta."})
	e, err := Build(context.Background(), localOptions(dir, ModeExtractive))
	require.NoError(t, err)

	resp, err := e.Query(context.Background(), "zeta")
	require.NoError(t, err)
	require.Len(t, resp.Sources, 1)
	assert.Zero(t, resp.Sources[0].Score)
	assert.Equal(t, "Alpha beta.", resp.Answer)
}

func TestBuildErrors(t *testing.T) {
	ctx := context.Background()

	_, err := Build(ctx, localOptions(filepath.Join(t.TempDir(), "missing"), ModeExtractive))
	assert.ErrorIs(t, err, loader.ErrNotFound)

	_, err = Build(ctx, localOptions(t.TempDir(), ModeExtractive))
	assert.ErrorIs(t, err, loader.ErrNoDocuments)

	dir := writeDocs(t, map[string]string{"a.txt": "Alpha."})
	_, err = Build(ctx, localOptions(dir, ModeCompact))
	assert.ErrorContains(t, err, "needs an llm")

	_, err = Build(ctx, localOptions(dir, ResponseMode("verbose")))
	assert.ErrorContains(t, err, "unknown response mode")

	opts := localOptions(dir, ModeNoText)
	opts.Embedder = &failingEmbedder{}
	_, err = Build(ctx, opts)
	assert.ErrorContains(t, err, "backend down")
}

type failingEmbedder struct{}

func (failingEmbedder) Name() string                            { return "failing" }
func (failingEmbedder) Prepare(context.Context, []string) error { return nil }
func (failingEmbedder) Dimension() int                          { return 0 }
func (failingEmbedder) Embed(context.Context, string) ([]float64, error) {
	return nil, errors.New("backend down")
}

type batchEmbedder struct {
	mu      sync.Mutex
	batches [][]string
}

func (b *batchEmbedder) Name() string                            { return "batch" }
func (b *batchEmbedder) Prepare(context.Context, []string) error { return nil }
func (b *batchEmbedder) Dimension() int                          { return 0 }

func (b *batchEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	return []float64{float64(len(text)), 1}, nil
}

func (b *batchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	b.mu.Lock()
	b.batches = append(b.batches, texts)
	b.mu.Unlock()
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i], _ = b.Embed(ctx, t)
	}
	return out, nil
}

func TestBuildBatchesEmbeddings(t *testing.T) {
	dir := writeDocs(t, map[string]string{
		"a.txt": strings.Repeat("One sentence here. ", 5),
		"b.txt": "Short.",
		"c.txt": "Another one.",
	})
	be := &batchEmbedder{}
	opts := localOptions(dir, ModeNoText)
	opts.Chunker = chunker.NewSentenceChunker(1, 0)
	opts.Embedder = be
	opts.BatchSize = 3
	opts.Concurrency = 2

	e, err := Build(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 7, e.Stats().Chunks)
	assert.Len(t, be.batches, 3)

	resp, err := e.Query(context.Background(), "Short.")
	require.NoError(t, err)
	assert.Equal(t, "", resp.Answer)
	assert.Len(t, resp.Sources, defaultTopK)
}

var _ domain.BatchEmbedder = (*batchEmbedder)(nil)
