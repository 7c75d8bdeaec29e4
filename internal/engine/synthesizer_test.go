package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiongqiongyuren/co2yuan3/internal/domain"
)

func results(texts ...string) []domain.SearchResult {
	out := make([]domain.SearchResult, len(texts))
	for i, t := range texts {
		out[i] = domain.SearchResult{Chunk: domain.Chunk{Text: t}, Score: 1}
	}
	return out
}

func newSynth(mode ResponseMode, llm domain.LLM, window int) *synthesizer {
	return &synthesizer{
		mode:          mode,
		llm:           llm,
		qaPrompt:      "Q={query_str} C={context_str}",
		refinePrompt:  "Q={query_str} A={existing_answer} C={context_msg}",
		contextWindow: window,
		extractCount:  2,
	}
}

func TestSynthesizeEmptyResults(t *testing.T) {
	llm := &fakeLLM{}
	answer, err := newSynth(ModeCompact, llm, 1000).synthesize(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, EmptyResponse, answer)
	assert.Empty(t, llm.prompts)
}

func TestSynthesizeCompactPacksIntoOneCall(t *testing.T) {
	llm := &fakeLLM{}
	answer, err := newSynth(ModeCompact, llm, 1000).synthesize(context.Background(), "q", results("one", "two"))
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)
	require.Len(t, llm.prompts, 1)
	assert.Equal(t, "Q=q C=one\n\ntwo", llm.prompts[0])
}

func TestSynthesizeCompactRefinesOverflow(t *testing.T) {
	calls := 0
	llm := &fakeLLM{reply: func(string) (string, error) {
		calls++
		return "answer" + strings.Repeat("!", calls), nil
	}}
	// refine overhead is 8 runes plus the question, leaving a budget of 44
	s := newSynth(ModeCompact, llm, 53)
	answer, err := s.synthesize(context.Background(), "q", results(strings.Repeat("a", 30), strings.Repeat("b", 30)))
	require.NoError(t, err)
	assert.Equal(t, "answer!!", answer)
	require.Len(t, llm.prompts, 2)
	assert.True(t, strings.HasPrefix(llm.prompts[0], "Q=q C=aaa"))
	assert.True(t, strings.HasPrefix(llm.prompts[1], "Q=q A=answer! C=bbb"))
}

func TestSynthesizeRefineKeepsAnswerOnEmptyRefinement(t *testing.T) {
	first := true
	llm := &fakeLLM{reply: func(string) (string, error) {
		if first {
			first = false
			return "Paris", nil
		}
		return "", nil
	}}
	answer, err := newSynth(ModeRefine, llm, 1000).synthesize(context.Background(), "q", results("x", "y", "z"))
	require.NoError(t, err)
	assert.Equal(t, "Paris", answer)
	assert.Len(t, llm.prompts, 3)
}

func TestSynthesizeSimpleSummarizeTruncates(t *testing.T) {
	llm := &fakeLLM{}
	s := newSynth(ModeSimpleSummarize, llm, 53)
	_, err := s.synthesize(context.Background(), "q", results(strings.Repeat("a", 50), strings.Repeat("b", 50)))
	require.NoError(t, err)
	require.Len(t, llm.prompts, 1)
	assert.Equal(t, "Q=q C="+strings.Repeat("a", 22)+"\n\n"+strings.Repeat("b", 22), llm.prompts[0])
}

func TestSynthesizeNoText(t *testing.T) {
	answer, err := newSynth(ModeNoText, nil, 1000).synthesize(context.Background(), "q", results("x"))
	require.NoError(t, err)
	assert.Equal(t, "", answer)
}

func TestSynthesizeLLMErrorPropagates(t *testing.T) {
	boom := errors.New("connection refused")
	llm := &fakeLLM{reply: func(string) (string, error) { return "", boom }}
	_, err := newSynth(ModeCompact, llm, 1000).synthesize(context.Background(), "q", results("x"))
	assert.ErrorIs(t, err, boom)
}

func TestPackTexts(t *testing.T) {
	assert.Equal(t, []string{"aa\n\nbb", "cc"}, packTexts([]string{"aa", "bb", "cc"}, 6))
	assert.Equal(t, []string{"abc", "de"}, packTexts([]string{"abcde"}, 3))
	assert.Equal(t, []string{"碳排放"}, packTexts([]string{"碳排放"}, 3))
}

func TestRenderPromptsSinglePass(t *testing.T) {
	out := renderQA(DefaultTextQAPrompt, "literal {query_str} in text", "real question")
	assert.Contains(t, out, "literal {query_str} in text")
	assert.Contains(t, out, "Query: real question\n")

	out = renderRefine(DefaultRefinePrompt, "q", "old", "ctx")
	assert.Contains(t, out, "existing answer: old\n")
	assert.Contains(t, out, "------------\nctx\n------------")
}
