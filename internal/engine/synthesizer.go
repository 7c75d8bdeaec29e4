package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/qiongqiongyuren/co2yuan3/internal/domain"
)

// EmptyResponse is the answer when retrieval returns nothing.
const EmptyResponse = "Empty Response"

// ResponseMode selects how retrieved chunks become an answer.
type ResponseMode string

const (
	ModeCompact         ResponseMode = "compact"
	ModeRefine          ResponseMode = "refine"
	ModeSimpleSummarize ResponseMode = "simple_summarize"
	ModeNoText          ResponseMode = "no_text"
	ModeExtractive      ResponseMode = "extractive"
)

// NeedsLLM reports whether answers in this mode are generated by a model.
func (m ResponseMode) NeedsLLM() bool {
	switch m {
	case ModeNoText, ModeExtractive:
		return false
	}
	return true
}

// QueryFocusedSummarizer picks the sentences of text most relevant to query.
type QueryFocusedSummarizer interface {
	SummarizeFor(query, text string, maxSentences int) (string, error)
}

type synthesizer struct {
	mode          ResponseMode
	llm           domain.LLM
	summarizer    QueryFocusedSummarizer
	qaPrompt      string
	refinePrompt  string
	contextWindow int
	extractCount  int
}

func (s *synthesizer) synthesize(ctx context.Context, question string, results []domain.SearchResult) (string, error) {
	if len(results) == 0 {
		return EmptyResponse, nil
	}
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Chunk.Text
	}

	switch s.mode {
	case ModeNoText:
		return "", nil
	case ModeExtractive:
		answer, err := s.summarizer.SummarizeFor(question, strings.Join(texts, "\n"), s.extractCount)
		if err != nil {
			return "", fmt.Errorf("extract answer: %w", err)
		}
		if answer == "" {
			return EmptyResponse, nil
		}
		return answer, nil
	case ModeSimpleSummarize:
		budget := s.qaBudget(question)
		per := budget / len(texts)
		for i := range texts {
			texts[i] = truncateRunes(texts[i], per)
		}
		return s.complete(ctx, renderQA(s.qaPrompt, strings.Join(texts, "\n\n"), question))
	case ModeRefine:
		return s.refine(ctx, question, splitToFit(texts, s.qaBudget(question)))
	default:
		return s.refine(ctx, question, packTexts(texts, s.qaBudget(question)))
	}
}

// refine answers from the first block and lets every later block refine
// the existing answer.
func (s *synthesizer) refine(ctx context.Context, question string, blocks []string) (string, error) {
	var answer string
	for i, block := range blocks {
		var prompt string
		if i == 0 {
			prompt = renderQA(s.qaPrompt, block, question)
		} else {
			prompt = renderRefine(s.refinePrompt, question, answer, block)
		}
		out, err := s.complete(ctx, prompt)
		if err != nil {
			return "", err
		}
		if i == 0 || out != "" {
			answer = out
		}
	}
	return answer, nil
}

func (s *synthesizer) complete(ctx context.Context, prompt string) (string, error) {
	out, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("llm %s: %w", s.llm.Name(), err)
	}
	return out, nil
}

// qaBudget is the number of context runes that fit next to the QA prompt.
func (s *synthesizer) qaBudget(question string) int {
	overhead := templateOverhead(s.qaPrompt, "{context_str}", "{query_str}") + len([]rune(question))
	if refine := templateOverhead(s.refinePrompt, "{query_str}", "{existing_answer}", "{context_msg}") + len([]rune(question)); refine > overhead {
		overhead = refine
	}
	budget := s.contextWindow - overhead
	// never starve the context entirely
	if floor := s.contextWindow / 4; budget < floor {
		budget = floor
	}
	if budget < 1 {
		budget = 1
	}
	return budget
}

// packTexts joins consecutive texts into as few blocks as fit budget runes.
func packTexts(texts []string, budget int) []string {
	var blocks []string
	var cur strings.Builder
	curLen := 0
	for _, piece := range splitToFit(texts, budget) {
		n := len([]rune(piece))
		if curLen > 0 && curLen+2+n > budget {
			blocks = append(blocks, cur.String())
			cur.Reset()
			curLen = 0
		}
		if curLen > 0 {
			cur.WriteString("\n\n")
			curLen += 2
		}
		cur.WriteString(piece)
		curLen += n
	}
	if curLen > 0 {
		blocks = append(blocks, cur.String())
	}
	return blocks
}

// splitToFit cuts any text longer than budget runes into budget-sized pieces.
func splitToFit(texts []string, budget int) []string {
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		r := []rune(t)
		for len(r) > budget {
			out = append(out, string(r[:budget]))
			r = r[budget:]
		}
		if len(r) > 0 {
			out = append(out, string(r))
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
