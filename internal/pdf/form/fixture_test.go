package form

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/phuslu/log"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/claim-form-filler/internal/testutil"
)

// templateObjects is a one-page AcroForm with a text field, two checkboxes
// (one on by default), a hierarchical text field, a checkbox with two
// widgets, a pushbutton and a checkbox without appearances. Object n is
// templateObjects[n-1].
var templateObjects = []string{
	/* 1 */ "<< /Type /Catalog /Pages 2 0 R /AcroForm 9 0 R >>",
	/* 2 */ "<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
	/* 3 */ "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Annots [4 0 R 5 0 R 6 0 R 10 0 R 12 0 R 14 0 R 15 0 R 16 0 R] >>",
	/* 4 */ "<< /Type /Annot /Subtype /Widget /FT /Tx /T (Claim Number) /V (OLD) /Rect [50 700 300 720] /P 3 0 R >>",
	/* 5 */ "<< /Type /Annot /Subtype /Widget /FT /Btn /T (4DR) /V /Yes /AS /Yes /Rect [50 650 60 660] /P 3 0 R /AP << /N << /Yes 7 0 R /Off 8 0 R >> >> >>",
	/* 6 */ "<< /Type /Annot /Subtype /Widget /FT /Btn /T (2DR) /AS /Off /Rect [70 650 80 660] /P 3 0 R /AP << /N << /On 7 0 R /Off 8 0 R >> >> >>",
	/* 7 */ testutil.AppearanceStream,
	/* 8 */ testutil.AppearanceStream,
	/* 9 */ "<< /Fields [4 0 R 5 0 R 6 0 R 11 0 R 13 0 R 15 0 R 16 0 R] /DA (/Helv 0 Tf 0 g) >>",
	/* 10 */ "<< /Type /Annot /Subtype /Widget /T (VIN) /Parent 11 0 R /Rect [50 600 300 620] /P 3 0 R >>",
	/* 11 */ "<< /T (Vehicle) /FT /Tx /Kids [10 0 R] >>",
	/* 12 */ "<< /Type /Annot /Subtype /Widget /Parent 13 0 R /AS /Off /Rect [90 650 100 660] /P 3 0 R /AP << /N << /Off 8 0 R /Sedan 7 0 R >> >> >>",
	/* 13 */ "<< /T (Sedan) /FT /Btn /Kids [12 0 R 14 0 R] >>",
	/* 14 */ "<< /Type /Annot /Subtype /Widget /Parent 13 0 R /AS /Off /Rect [110 650 120 660] /P 3 0 R /AP << /N << /Off 8 0 R /Sedan 7 0 R >> >> >>",
	/* 15 */ "<< /Type /Annot /Subtype /Widget /FT /Btn /Ff 65536 /T (Reset) /Rect [50 500 100 520] /P 3 0 R >>",
	/* 16 */ "<< /Type /Annot /Subtype /Widget /FT /Btn /T (NoAP) /Rect [130 650 140 660] /P 3 0 R >>",
}

func loadFixture(t *testing.T) *Template {
	t.Helper()
	tpl, err := LoadTemplate(bytes.NewReader(testutil.BuildPDF(templateObjects)))
	require.NoError(t, err)
	return tpl
}

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "template.pdf")
	require.NoError(t, os.WriteFile(path, testutil.BuildPDF(templateObjects), 0o644))
	return path
}

func field(t *testing.T, tpl *Template, name string) *Field {
	t.Helper()
	fs := tpl.Lookup(name)
	require.Len(t, fs, 1, "field %q", name)
	return fs[0]
}

func quietLogger() *log.Logger {
	return testutil.QuietLogger()
}
