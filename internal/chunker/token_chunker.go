package chunker

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/qiongqiongyuren/co2yuan3/internal/domain"
)

// TokenEncoder is the subset of a BPE tokenizer the token chunker needs.
type TokenEncoder interface {
	Encode(text string, allowedSpecial []string, disallowedSpecial []string) []int
	Decode(tokens []int) string
}

// TokenChunker cuts documents into fixed-size token windows with overlap.
type TokenChunker struct {
	encoder       TokenEncoder
	chunkTokens   int
	overlapTokens int
}

// NewTokenChunker loads the named tiktoken encoding (e.g. cl100k_base).
// The BPE ranks are fetched and cached by tiktoken-go on first use.
func NewTokenChunker(encoding string, chunkTokens, overlapTokens int) (*TokenChunker, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %s: %w", encoding, err)
	}
	return NewTokenChunkerWithEncoder(enc, chunkTokens, overlapTokens), nil
}

// NewTokenChunkerWithEncoder builds a chunker around an existing encoder.
func NewTokenChunkerWithEncoder(encoder TokenEncoder, chunkTokens, overlapTokens int) *TokenChunker {
	if chunkTokens <= 0 {
		chunkTokens = 1024
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	if overlapTokens >= chunkTokens {
		overlapTokens = chunkTokens / 2
	}
	return &TokenChunker{encoder: encoder, chunkTokens: chunkTokens, overlapTokens: overlapTokens}
}

func (c *TokenChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	tokens := c.encoder.Encode(document.Content, nil, nil)
	if len(tokens) == 0 {
		return nil, nil
	}
	var chunks []domain.Chunk
	step := c.chunkTokens - c.overlapTokens
	for start, idx := 0, 0; start < len(tokens); start, idx = start+step, idx+1 {
		end := start + c.chunkTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		text := strings.TrimSpace(c.encoder.Decode(tokens[start:end]))
		if text != "" {
			chunks = append(chunks, newChunk(document, len(chunks), text))
		}
		if end == len(tokens) {
			break
		}
	}
	return chunks, nil
}
