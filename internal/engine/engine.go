// Package engine builds the document index at startup and answers
// questions against it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/qiongqiongyuren/co2yuan3/internal/domain"
	"github.com/qiongqiongyuren/co2yuan3/internal/loader"
	applog "github.com/qiongqiongyuren/co2yuan3/internal/platform/log"
)

const (
	defaultTopK          = 2
	defaultConcurrency   = 4
	defaultBatchSize     = 10
	defaultContextWindow = 8000
	defaultExtract       = 3
)

// DocumentLoader reads every document found at a location.
type DocumentLoader interface {
	Load(ctx context.Context, location string) ([]domain.Document, error)
}

// Options wires the components Build needs. Loader, Chunker, Embedder and
// Store are required; LLM is required unless Mode needs no model.
type Options struct {
	Location   string
	Loader     DocumentLoader
	Chunker    domain.Chunker
	Embedder   domain.Embedder
	Store      domain.VectorStore
	LLM        domain.LLM
	Summarizer QueryFocusedSummarizer

	// Concurrency bounds parallel embedding requests.
	Concurrency int
	// BatchSize is the number of chunks per request for batch embedders.
	BatchSize int

	SimilarityTopK     int
	Mode               ResponseMode
	ContextWindowChars int
	TextQAPrompt       string
	RefinePrompt       string
	ExtractSentences   int
}

// BuildStats describes a finished index build.
type BuildStats struct {
	Documents int
	Chunks    int
	Duration  time.Duration
}

// Response is the outcome of a query.
type Response struct {
	Answer  string
	Sources []domain.SearchResult
}

// Engine answers questions over a fixed index. It is never mutated after
// Build returns and is safe for concurrent use.
type Engine struct {
	retriever   *retriever
	synthesizer *synthesizer
	stats       BuildStats
}

func (o *Options) validate() error {
	switch {
	case o.Loader == nil:
		return errors.New("engine: loader is required")
	case o.Chunker == nil:
		return errors.New("engine: chunker is required")
	case o.Embedder == nil:
		return errors.New("engine: embedder is required")
	case o.Store == nil:
		return errors.New("engine: vector store is required")
	}
	if o.Mode == "" {
		o.Mode = ModeCompact
	}
	switch o.Mode {
	case ModeCompact, ModeRefine, ModeSimpleSummarize:
		if o.LLM == nil {
			return fmt.Errorf("engine: response mode %s needs an llm", o.Mode)
		}
	case ModeExtractive:
		if o.Summarizer == nil {
			return fmt.Errorf("engine: response mode %s needs a summarizer", o.Mode)
		}
	case ModeNoText:
	default:
		return fmt.Errorf("engine: unknown response mode %q", o.Mode)
	}
	if o.SimilarityTopK <= 0 {
		o.SimilarityTopK = defaultTopK
	}
	if o.Concurrency <= 0 {
		o.Concurrency = defaultConcurrency
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.ContextWindowChars <= 0 {
		o.ContextWindowChars = defaultContextWindow
	}
	if o.TextQAPrompt == "" {
		o.TextQAPrompt = DefaultTextQAPrompt
	}
	if o.RefinePrompt == "" {
		o.RefinePrompt = DefaultRefinePrompt
	}
	if o.ExtractSentences <= 0 {
		o.ExtractSentences = defaultExtract
	}
	return nil
}

// Build loads, chunks, embeds and indexes every document at opts.Location
// and returns an engine over the result.
func Build(ctx context.Context, opts Options) (*Engine, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	logger := applog.With("component", "engine")
	start := time.Now()

	docs, err := opts.Loader.Load(ctx, opts.Location)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	logger.Info("documents loaded", "location", opts.Location, "count", len(docs))

	var chunks []domain.Chunk
	for _, d := range docs {
		cs, err := opts.Chunker.Chunk(d)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", d.Path, err)
		}
		chunks = append(chunks, cs...)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: documents produced no chunks", loader.ErrNoDocuments)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	if err := opts.Embedder.Prepare(ctx, texts); err != nil {
		return nil, fmt.Errorf("prepare embedder %s: %w", opts.Embedder.Name(), err)
	}
	vectors, err := embedAll(ctx, opts.Embedder, texts, opts.Concurrency, opts.BatchSize, logger)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}

	dim := opts.Embedder.Dimension()
	if dim <= 0 {
		dim = len(vectors[0])
	}
	if err := opts.Store.Clear(ctx); err != nil {
		return nil, fmt.Errorf("clear index: %w", err)
	}
	if err := opts.Store.Init(ctx, dim); err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	if err := opts.Store.Upsert(ctx, chunks, vectors); err != nil {
		return nil, fmt.Errorf("upsert chunks: %w", err)
	}

	stats := BuildStats{Documents: len(docs), Chunks: len(chunks), Duration: time.Since(start)}
	logger.Info("index built",
		"documents", stats.Documents,
		"chunks", stats.Chunks,
		"dimension", dim,
		"embedder", opts.Embedder.Name(),
		"elapsed", stats.Duration.String(),
	)
	return &Engine{
		retriever: &retriever{
			embedder: opts.Embedder,
			store:    opts.Store,
			topK:     opts.SimilarityTopK,
			chunks:   chunks,
		},
		synthesizer: &synthesizer{
			mode:          opts.Mode,
			llm:           opts.LLM,
			summarizer:    opts.Summarizer,
			qaPrompt:      opts.TextQAPrompt,
			refinePrompt:  opts.RefinePrompt,
			contextWindow: opts.ContextWindowChars,
			extractCount:  opts.ExtractSentences,
		},
		stats: stats,
	}, nil
}

// embedAll embeds texts with at most concurrency requests in flight.
// Batch embedders receive batchSize texts per request. The first error
// cancels the remaining work.
func embedAll(ctx context.Context, e domain.Embedder, texts []string, concurrency, batchSize int, logger *slog.Logger) ([][]float64, error) {
	batcher, isBatch := e.(domain.BatchEmbedder)
	if !isBatch {
		batchSize = 1
	}
	vectors := make([][]float64, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			if isBatch {
				vecs, err := batcher.EmbedBatch(gctx, texts[start:end])
				if err != nil {
					return err
				}
				if len(vecs) != end-start {
					return fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), end-start)
				}
				copy(vectors[start:end], vecs)
				return nil
			}
			vec, err := e.Embed(gctx, texts[start])
			if err != nil {
				return err
			}
			vectors[start] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	logger.Debug("chunks embedded", "count", len(texts), "batch_size", batchSize, "concurrency", concurrency)
	return vectors, nil
}

// Query retrieves the most similar chunks and synthesizes an answer.
func (e *Engine) Query(ctx context.Context, question string) (*Response, error) {
	results, err := e.retriever.retrieve(ctx, question)
	if err != nil {
		return nil, err
	}
	answer, err := e.synthesizer.synthesize(ctx, question, results)
	if err != nil {
		return nil, err
	}
	return &Response{Answer: answer, Sources: results}, nil
}

// Stats reports how the index was built.
func (e *Engine) Stats() BuildStats { return e.stats }
