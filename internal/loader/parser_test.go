package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestMarkdownParser(t *testing.T) {
	src := "# Emission factors\n\n![chart](chart.png)\n\nUse `kgCO2e` units.\n\n```go\nfmt.Println(1)\n```\n\n\n\nDone."
	res, err := (&MarkdownParser{}).Parse([]byte(src), "factors.md")
	require.NoError(t, err)

	assert.Equal(t, "Emission factors", res.Metadata["title"])
	assert.Contains(t, res.Content, "Use kgCO2e units.")
	assert.Contains(t, res.Content, "fmt.Println(1)")
	assert.NotContains(t, res.Content, "```")
	assert.NotContains(t, res.Content, "\n\n\n")
}

func TestMarkdownParserKeepsCodeVerbatim(t *testing.T) {
	src := "# Setup\n\n```sh\n# install deps\nmake **all**\n```\n\n## Next\nRun *it*."
	res, err := (&MarkdownParser{}).Parse([]byte(src), "setup.md")
	require.NoError(t, err)

	assert.Contains(t, res.Content, "# install deps\nmake **all**")
	assert.Contains(t, res.Content, "Next\nRun it.")
	assert.NotContains(t, res.Content, "sh\n")
	assert.NotContains(t, res.Content, "```")
}

func TestDocxXMLToText(t *testing.T) {
	xml := `<w:body><w:p><w:r><w:t>First </w:t></w:r><w:r><w:t xml:space="preserve">paragraph &amp; more</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Second.</w:t></w:r></w:p><w:p></w:p></w:body>`
	assert.Equal(t, "First paragraph & more\nSecond.", docxXMLToText(xml))
}

func TestXLSXParser(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetCellValue(sheet, "A1", "Region"))
	require.NoError(t, f.SetCellValue(sheet, "B1", "Emissions"))
	require.NoError(t, f.SetCellValue(sheet, "A2", "Beijing"))
	require.NoError(t, f.SetCellValue(sheet, "B2", "120"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	res, err := (&XLSXParser{}).Parse(buf.Bytes(), "data.xlsx")
	require.NoError(t, err)
	assert.Contains(t, res.Content, "Region: Beijing; Emissions: 120.")
	assert.Equal(t, "xlsx", res.Metadata["format"])
}

func TestRegistryUnsupported(t *testing.T) {
	r := NewParserRegistry()

	_, err := r.Get("photo.jpeg")
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = r.Get("Makefile")
	assert.ErrorIs(t, err, ErrUnsupported)

	p, err := r.Get("REPORT.PDF")
	require.NoError(t, err)
	assert.IsType(t, &PDFParser{}, p)
}
