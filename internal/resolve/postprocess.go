package resolve

import (
	"regexp"

	"github.com/a3tai/claim-form-filler/internal/rules"
)

var fiveDigitRun = regexp.MustCompile(`\b(\d{5})\b`)

// PostProcess applies the normalization passes in order and returns a new
// map: titlecase fields, ZIP selection, then the make code lookup. A pass
// only rewrites fields already present.
func PostProcess(fields FieldMap, pp rules.PostProcessing) FieldMap {
	out := fields.Clone()

	for _, name := range pp.TitlecaseFields {
		if v, ok := out[name]; ok {
			out[name] = Titlecase(v)
		}
	}

	if pp.ZipSelection == rules.ZipSelectionFirstFiveDigits {
		zipField := pp.ZipFieldOrDefault()
		if v, ok := out[zipField]; ok {
			if m := fiveDigitRun.FindStringSubmatch(v); m != nil {
				out[zipField] = m[1]
			}
		}
	}

	makeField := pp.MakeFieldOrDefault()
	if v, ok := out[makeField]; ok {
		if name, ok := pp.MakeMapping[v]; ok {
			out[makeField] = name
		}
	}

	return out
}
