package loader

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"

	applog "github.com/qiongqiongyuren/co2yuan3/internal/platform/log"
)

// ParseResult is the plain text extracted from one file.
type ParseResult struct {
	Content  string
	Metadata map[string]string
}

// Parser turns raw file bytes into plain text.
type Parser interface {
	Parse(data []byte, filename string) (*ParseResult, error)
	SupportedTypes() []string
}

// PlainTextParser handles text-like formats verbatim.
type PlainTextParser struct{}

func (p *PlainTextParser) SupportedTypes() []string {
	return []string{".txt", ".text", ".csv", ".log", ".json", ".xml", ".yaml", ".yml"}
}

func (p *PlainTextParser) Parse(data []byte, filename string) (*ParseResult, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	return &ParseResult{
		Content:  strings.TrimSpace(string(data)),
		Metadata: map[string]string{"format": strings.TrimPrefix(ext, ".")},
	}, nil
}

// MarkdownParser strips markdown markup, keeping code block bodies and link text.
type MarkdownParser struct{}

var (
	reMarkdownHeader = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	reMarkdownBold   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reMarkdownItalic = regexp.MustCompile(`\*(.+?)\*`)
	reMarkdownCode   = regexp.MustCompile("```[\\s\\S]*?```")
	reMarkdownInline = regexp.MustCompile("`([^`]+)`")
	reMarkdownLink   = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	reMarkdownImage  = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	reMarkdownHTML   = regexp.MustCompile(`<[^>]+>`)
)

func (p *MarkdownParser) SupportedTypes() []string {
	return []string{".md", ".markdown"}
}

func stripMarkup(text string) string {
	// images before links: the image syntax contains a link
	text = reMarkdownImage.ReplaceAllString(text, "$1")
	text = reMarkdownLink.ReplaceAllString(text, "$1")
	text = reMarkdownBold.ReplaceAllString(text, "$1")
	text = reMarkdownItalic.ReplaceAllString(text, "$1")
	text = reMarkdownInline.ReplaceAllString(text, "$1")
	text = reMarkdownHeader.ReplaceAllString(text, "")
	return reMarkdownHTML.ReplaceAllString(text, "")
}

// codeBody drops the fences and, for multi-line blocks, the info string.
func codeBody(block string) string {
	block = strings.TrimPrefix(block, "```")
	if idx := strings.Index(block, "\n"); idx >= 0 {
		block = block[idx+1:]
	}
	block = strings.TrimSuffix(block, "```")
	return strings.TrimSpace(block)
}

func (p *MarkdownParser) Parse(data []byte, filename string) (*ParseResult, error) {
	text := string(data)

	title := ""
	for _, line := range strings.SplitN(text, "\n", 10) {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			title = strings.TrimPrefix(line, "# ")
			break
		}
	}

	// code block bodies are kept verbatim; markup is stripped around them
	var b strings.Builder
	last := 0
	for _, loc := range reMarkdownCode.FindAllStringIndex(text, -1) {
		b.WriteString(stripMarkup(text[last:loc[0]]))
		b.WriteString(codeBody(text[loc[0]:loc[1]]))
		last = loc[1]
	}
	b.WriteString(stripMarkup(text[last:]))
	text = b.String()

	meta := map[string]string{"format": "markdown"}
	if title != "" {
		meta["title"] = title
	}
	return &ParseResult{
		Content:  strings.TrimSpace(cleanExtraNewlines(text)),
		Metadata: meta,
	}, nil
}

// PDFParser extracts page text from PDF files.
type PDFParser struct{}

func (p *PDFParser) SupportedTypes() []string {
	return []string{".pdf"}
}

func (p *PDFParser) Parse(data []byte, filename string) (*ParseResult, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", filename, err)
	}

	pages := r.NumPage()
	var sb strings.Builder
	for i := 1; i <= pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			applog.Warn("pdf page text extraction failed", "file", filename, "page", i, "error", err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			sb.WriteString(text)
			sb.WriteString("\n\n")
		}
	}

	return &ParseResult{
		Content: strings.TrimSpace(cleanExtraNewlines(sb.String())),
		Metadata: map[string]string{
			"format": "pdf",
			"pages":  fmt.Sprintf("%d", pages),
		},
	}, nil
}

// DOCXParser extracts paragraph text from Word documents.
type DOCXParser struct{}

var (
	reDocxParagraphEnd = regexp.MustCompile(`</w:p>`)
	reDocxText         = regexp.MustCompile(`(?s)<w:t(?:\s[^>]*)?>(.*?)</w:t>`)
)

func (p *DOCXParser) SupportedTypes() []string {
	return []string{".docx"}
}

func (p *DOCXParser) Parse(data []byte, filename string) (*ParseResult, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx %s: %w", filename, err)
	}
	defer r.Close()

	return &ParseResult{
		Content:  docxXMLToText(r.Editable().GetContent()),
		Metadata: map[string]string{"format": "docx"},
	}, nil
}

// docxXMLToText keeps the text runs of document.xml, one line per paragraph.
func docxXMLToText(content string) string {
	var sb strings.Builder
	for _, para := range reDocxParagraphEnd.Split(content, -1) {
		var line strings.Builder
		for _, m := range reDocxText.FindAllStringSubmatch(para, -1) {
			line.WriteString(m[1])
		}
		if text := strings.TrimSpace(unescapeXML(line.String())); text != "" {
			sb.WriteString(text)
			sb.WriteString("\n")
		}
	}
	return strings.TrimSpace(cleanExtraNewlines(sb.String()))
}

var xmlUnescaper = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

func unescapeXML(s string) string { return xmlUnescaper.Replace(s) }

// XLSXParser renders each sheet row as "header: value" pairs.
type XLSXParser struct{}

func (p *XLSXParser) SupportedTypes() []string {
	return []string{".xlsx", ".xlsm"}
}

func (p *XLSXParser) Parse(data []byte, filename string) (*ParseResult, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx %s: %w", filename, err)
	}
	defer func() { _ = f.Close() }()

	var sb strings.Builder
	sheets := f.GetSheetList()
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		sb.WriteString("Sheet: ")
		sb.WriteString(sheet)
		sb.WriteString("\n")
		header := rows[0]
		if len(rows) == 1 {
			sb.WriteString(strings.Join(header, ", "))
			sb.WriteString(".\n")
		}
		for _, row := range rows[1:] {
			if line := rowLine(header, row); line != "" {
				sb.WriteString(line)
				sb.WriteString(".\n")
			}
		}
		sb.WriteString("\n")
	}

	return &ParseResult{
		Content: strings.TrimSpace(cleanExtraNewlines(sb.String())),
		Metadata: map[string]string{
			"format": "xlsx",
			"sheets": fmt.Sprintf("%d", len(sheets)),
		},
	}, nil
}

func rowLine(header, row []string) string {
	parts := make([]string, 0, len(row))
	for i, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		name := ""
		if i < len(header) {
			name = strings.TrimSpace(header[i])
		}
		if name == "" {
			name = fmt.Sprintf("column %d", i+1)
		}
		parts = append(parts, name+": "+cell)
	}
	return strings.Join(parts, "; ")
}

var reMultiNewlines = regexp.MustCompile(`\n{3,}`)

func cleanExtraNewlines(text string) string {
	return reMultiNewlines.ReplaceAllString(text, "\n\n")
}
