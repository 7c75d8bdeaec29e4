package engine

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/qiongqiongyuren/co2yuan3/internal/domain"
	"github.com/qiongqiongyuren/co2yuan3/internal/textutil"
)

type retriever struct {
	embedder domain.Embedder
	store    domain.VectorStore
	topK     int
	// chunks backs the lexical fallback.
	chunks []domain.Chunk
}

// retrieve embeds the question and searches the store. When the vector
// carries no signal (zero vector or all-zero scores) chunks are ranked by
// lexical overlap instead.
func (r *retriever) retrieve(ctx context.Context, question string) ([]domain.SearchResult, error) {
	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if isZero(vec) {
		return r.lexicalSearch(question), nil
	}
	res, err := r.store.Search(ctx, vec, r.topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	for _, hit := range res {
		if hit.Score > 1e-9 {
			return res, nil
		}
	}
	return r.lexicalSearch(question), nil
}

func (r *retriever) lexicalSearch(question string) []domain.SearchResult {
	qset := textutil.WordSet(question)
	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(r.chunks))
	for i, ch := range r.chunks {
		scores[i] = pair{i, overlapOchiai(qset, ch.Text)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	topK := r.topK
	if topK > len(scores) {
		topK = len(scores)
	}
	out := make([]domain.SearchResult, 0, topK)
	for _, p := range scores[:topK] {
		out = append(out, domain.SearchResult{Chunk: r.chunks[p.idx], Score: p.score})
	}
	return out
}

// overlapOchiai is |A∩B| / sqrt(|A||B|) over word sets.
func overlapOchiai(qset map[string]struct{}, text string) float64 {
	tset := textutil.WordSet(text)
	if len(qset) == 0 || len(tset) == 0 {
		return 0
	}
	inter := 0
	for t := range tset {
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(len(tset)))
}

func isZero(vec []float64) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
