// Package testutil builds the PDFs and loggers shared by package tests.
package testutil

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/phuslu/log"
	"github.com/stretchr/testify/require"
)

// AppearanceStream is a minimal form XObject usable as a checkbox appearance.
const AppearanceStream = "<< /Type /XObject /Subtype /Form /BBox [0 0 10 10] /Length 3 >>\nstream\nq Q\nendstream"

// FormObjects is a one-page form with a claim number, a model text field and
// two door-count checkboxes. The 4DR box is checked in the blank form.
var FormObjects = []string{
	"<< /Type /Catalog /Pages 2 0 R /AcroForm 10 0 R >>",
	"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
	"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Annots [4 0 R 5 0 R 6 0 R 7 0 R] >>",
	"<< /Type /Annot /Subtype /Widget /FT /Tx /T (Claim Number) /Rect [50 700 300 720] /P 3 0 R >>",
	"<< /Type /Annot /Subtype /Widget /FT /Tx /T (Model) /Rect [50 670 300 690] /P 3 0 R >>",
	"<< /Type /Annot /Subtype /Widget /FT /Btn /T (4DR) /V /Yes /AS /Yes /Rect [50 650 60 660] /P 3 0 R /AP << /N << /Yes 8 0 R /Off 9 0 R >> >> >>",
	"<< /Type /Annot /Subtype /Widget /FT /Btn /T (2DR) /AS /Off /Rect [70 650 80 660] /P 3 0 R /AP << /N << /Yes 8 0 R /Off 9 0 R >> >> >>",
	AppearanceStream,
	AppearanceStream,
	"<< /Fields [4 0 R 5 0 R 6 0 R 7 0 R] /DA (/Helv 0 Tf 0 g) >>",
}

// BuildPDF assembles objects into a PDF file with a correct xref table.
// Object n is objects[n-1] and object 1 must be the catalog.
func BuildPDF(objects []string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")

	offsets := make([]int, len(objects)+1)
	for i, body := range objects {
		offsets[i+1] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= len(objects); i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

// WriteForm writes FormObjects to dir/name.
func WriteForm(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, BuildPDF(FormObjects), 0o644))
	return path
}

// WriteEstimate renders lines, one per row, onto a single page at dir/name.
func WriteEstimate(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	doc := fpdf.New("P", "mm", "Letter", "")
	doc.SetFont("Helvetica", "", 11)
	doc.AddPage()
	for _, line := range lines {
		doc.CellFormat(0, 8, line, "", 1, "L", false, 0, "")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, doc.OutputFileAndClose(path))
	return path
}

// WriteFile writes body to dir/name.
func WriteFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// QuietLogger drops everything below error level.
func QuietLogger() *log.Logger {
	return &log.Logger{Level: log.ErrorLevel, Writer: &log.IOWriter{Writer: io.Discard}}
}

// BaseRulesYAML reads a claim number and model and resolves the door count.
const BaseRulesYAML = `meta:
  name: CCC BCIF
  pdf_template: bcif.pdf
text_fields:
  Claim Number:
    patterns:
      - 'Claim\s*#?\s*:?\s*(\d+)'
  Model:
    patterns:
      - 'CHEV\s+(\w+)'
    transform: first_group_title
checkbox_rules:
  rules:
    - field: 4DR
      match_any: ['4 Door']
    - field: 2DR
      match_any: ['2 Door']
  prefer_4dr_over_2dr: true
`

// PatchRulesYAML adds a claim number pattern and a 2DR match.
const PatchRulesYAML = `meta:
  notes: [tuned for CCC ONE]
text_fields:
  Claim Number:
    patterns:
      - 'Claim\s+No\.?\s*(\d+)'
checkbox_rules:
  rules:
    - field: 2DR
      match_any: ['Coupe']
`
