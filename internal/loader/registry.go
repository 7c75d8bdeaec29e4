package loader

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ParserRegistry maps file extensions to parsers.
type ParserRegistry struct {
	mu      sync.RWMutex
	parsers map[string]Parser // key = ".ext"
}

// NewParserRegistry returns a registry with the built-in parsers registered.
func NewParserRegistry() *ParserRegistry {
	r := &ParserRegistry{
		parsers: make(map[string]Parser),
	}
	r.Register(&PlainTextParser{})
	r.Register(&MarkdownParser{})
	r.Register(&PDFParser{})
	r.Register(&DOCXParser{})
	r.Register(&XLSXParser{})
	return r
}

// Register adds p for every extension it supports, replacing earlier entries.
func (r *ParserRegistry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range p.SupportedTypes() {
		r.parsers[strings.ToLower(ext)] = p
	}
}

// Restrict drops every extension not in exts. An empty list keeps everything.
func (r *ParserRegistry) Restrict(exts []string) {
	if len(exts) == 0 {
		return
	}
	keep := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		keep[ext] = struct{}{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for ext := range r.parsers {
		if _, ok := keep[ext]; !ok {
			delete(r.parsers, ext)
		}
	}
}

// Get returns the parser registered for filename's extension.
func (r *ParserRegistry) Get(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return nil, fmt.Errorf("%w: no file extension in %s", ErrUnsupported, filename)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.parsers[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
	return p, nil
}

// SupportedTypes returns the registered extensions, sorted.
func (r *ParserRegistry) SupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.parsers))
	for ext := range r.parsers {
		types = append(types, ext)
	}
	sort.Strings(types)
	return types
}
