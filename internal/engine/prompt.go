package engine

import "strings"

const (
	DefaultTextQAPrompt = "Context information is below.\n" +
		"---------------------\n" +
		"{context_str}\n" +
		"---------------------\n" +
		"Given the context information and not prior knowledge, answer the query.\n" +
		"Query: {query_str}\n" +
		"Answer: "

	DefaultRefinePrompt = "The original query is as follows: {query_str}\n" +
		"We have provided an existing answer: {existing_answer}\n" +
		"We have the opportunity to refine the existing answer (only if needed) with some more context below.\n" +
		"------------\n" +
		"{context_msg}\n" +
		"------------\n" +
		"Given the new context, refine the original answer to better answer the query. " +
		"If the context isn't useful, return the original answer.\n" +
		"Refined Answer: "
)

// Placeholders are substituted in a single pass, so text inside the
// context that looks like a placeholder is left alone.
func renderQA(tmpl, context, query string) string {
	return strings.NewReplacer("{context_str}", context, "{query_str}", query).Replace(tmpl)
}

func renderRefine(tmpl, query, existing, context string) string {
	return strings.NewReplacer(
		"{query_str}", query,
		"{existing_answer}", existing,
		"{context_msg}", context,
	).Replace(tmpl)
}

// templateOverhead is the template length without its placeholders.
func templateOverhead(tmpl string, placeholders ...string) int {
	n := len([]rune(tmpl))
	for _, p := range placeholders {
		n -= strings.Count(tmpl, p) * len([]rune(p))
	}
	return n
}
