package chunker

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/qiongqiongyuren/co2yuan3/internal/domain"
)

var sentenceRe = regexp.MustCompile(`(?m)([^.!?。！？]+[.!?。！？]+)`)

// SplitSentences splits text on Latin and CJK sentence terminators.
// Trailing text without a terminator is kept as a final sentence.
func SplitSentences(text string) []string {
	locs := sentenceRe.FindAllStringIndex(text, -1)
	out := make([]string, 0, len(locs)+1)
	end := 0
	for _, loc := range locs {
		if s := strings.TrimSpace(text[loc[0]:loc[1]]); s != "" {
			out = append(out, s)
		}
		end = loc[1]
	}
	if tail := strings.TrimSpace(text[end:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

// SentenceChunker splits text into sentence-based chunks with overlap.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	if overlapSentences >= sentencesPerChunk {
		overlapSentences = sentencesPerChunk - 1
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
	}
}

func (c *SentenceChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	sentences := SplitSentences(document.Content)
	if len(sentences) == 0 {
		return nil, nil
	}
	var chunks []domain.Chunk
	i := 0
	idx := 0
	for i < len(sentences) {
		end := i + c.sentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		chunks = append(chunks, newChunk(document, idx, joinSentences(sentences[i:end])))
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
		idx++
	}
	return chunks, nil
}

// joinSentences separates Latin sentences with a space and keeps CJK text tight.
func joinSentences(sentences []string) string {
	var sb strings.Builder
	for i, s := range sentences {
		if i > 0 && !endsWithCJK(sentences[i-1]) {
			sb.WriteByte(' ')
		}
		sb.WriteString(s)
	}
	return sb.String()
}

func endsWithCJK(s string) bool {
	return strings.HasSuffix(s, "。") || strings.HasSuffix(s, "！") || strings.HasSuffix(s, "？")
}

func newChunk(document domain.Document, idx int, text string) domain.Chunk {
	meta := make(map[string]string, len(document.Metadata))
	for k, v := range document.Metadata {
		meta[k] = v
	}
	return domain.Chunk{
		DocumentID: document.ID,
		ChunkID:    document.ID + ":" + strconv.Itoa(idx),
		Text:       text,
		Index:      idx,
		Metadata:   meta,
	}
}
