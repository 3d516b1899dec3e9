package form

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/a3tai/claim-form-filler/internal/resolve"
)

// Summary headings and limits.
const (
	SummaryTitle     = "CCC BCIF Form - Extracted Data"
	TextSummaryTitle = "CCC BCIF Extraction Results"

	summaryLineMax = 80
	summaryLineCut = 77
)

// SummaryEntry is one resolved text field in the listing.
type SummaryEntry struct {
	Name  string
	Value string
}

// Summary is the content of a fallback artifact.
type Summary struct {
	Entries []SummaryEntry
	Checked []string
}

// NewSummary lists fields in order first, then any remaining fields sorted by
// name, followed by the checked options.
func NewSummary(fields resolve.FieldMap, order []string, checked resolve.CheckboxSet) Summary {
	s := Summary{Checked: append([]string(nil), checked...)}
	seen := make(map[string]bool, len(fields))
	for _, name := range order {
		if v, ok := fields[name]; ok && !seen[name] {
			seen[name] = true
			s.Entries = append(s.Entries, SummaryEntry{Name: name, Value: v})
		}
	}
	rest := make([]string, 0, len(fields))
	for name := range fields {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		s.Entries = append(s.Entries, SummaryEntry{Name: name, Value: fields[name]})
	}
	return s
}

// Lines returns the "name: value" lines, shortened to fit the page.
func (s Summary) Lines() []string {
	lines := make([]string, len(s.Entries))
	for i, e := range s.Entries {
		lines[i] = truncateLine(fmt.Sprintf("%s: %s", e.Name, e.Value))
	}
	return lines
}

// Text renders the plain-text listing.
func (s Summary) Text() []byte {
	var b bytes.Buffer
	b.WriteString(TextSummaryTitle + "\n")
	b.WriteString(strings.Repeat("=", 30) + "\n\n")
	b.WriteString("Text Fields:\n")
	for _, e := range s.Entries {
		fmt.Fprintf(&b, "%s: %s\n", e.Name, e.Value)
	}
	b.WriteString("\nSelected Options:\n")
	for _, opt := range s.Checked {
		fmt.Fprintf(&b, "CHECKED: %s\n", opt)
	}
	return b.Bytes()
}

func truncateLine(line string) string {
	r := []rune(line)
	if len(r) <= summaryLineMax {
		return line
	}
	return string(r[:summaryLineCut]) + "..."
}

// PDFSummary renders the summary as a US Letter PDF with fpdf.
type PDFSummary struct {
	Title string
}

// NewPDFSummary returns a renderer with the standard title.
func NewPDFSummary() *PDFSummary {
	return &PDFSummary{Title: SummaryTitle}
}

// RenderSummary implements SummaryRenderer.
func (p *PDFSummary) RenderSummary(s Summary) ([]byte, error) {
	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetMargins(50, 50, 50)
	pdf.SetAutoPageBreak(true, 50)
	pdf.SetTitle(p.Title, true)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 20, tr(p.Title), "", 1, "L", false, 0, "")
	pdf.Ln(20)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 16, "Extracted Information:", "", 1, "L", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 10)
	for _, line := range s.Lines() {
		pdf.CellFormat(0, 15, tr(line), "", 1, "L", false, 0, "")
	}

	if len(s.Checked) > 0 {
		pdf.Ln(20)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 16, "Selected Options:", "", 1, "L", false, 0, "")
		pdf.Ln(8)

		pdf.SetFont("Helvetica", "", 10)
		for _, opt := range s.Checked {
			pdf.CellFormat(0, 15, tr("CHECKED: "+opt), "", 1, "L", false, 0, "")
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate summary PDF: %w", err)
	}
	return buf.Bytes(), nil
}
