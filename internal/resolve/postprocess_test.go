package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/a3tai/claim-form-filler/internal/rules"
)

func TestPostProcess(t *testing.T) {
	tests := []struct {
		name   string
		fields FieldMap
		pp     rules.PostProcessing
		want   FieldMap
	}{
		{
			name:   "zip plus four with state",
			fields: FieldMap{"Loss ZIP Code": "98052-1234 (WA)"},
			pp:     rules.PostProcessing{ZipSelection: rules.ZipSelectionFirstFiveDigits},
			want:   FieldMap{"Loss ZIP Code": "98052"},
		},
		{
			name:   "zip without five digit run is untouched",
			fields: FieldMap{"Loss ZIP Code": "WA 9805"},
			pp:     rules.PostProcessing{ZipSelection: rules.ZipSelectionFirstFiveDigits},
			want:   FieldMap{"Loss ZIP Code": "WA 9805"},
		},
		{
			name:   "zip selection disabled",
			fields: FieldMap{"Loss ZIP Code": "98052-1234"},
			want:   FieldMap{"Loss ZIP Code": "98052-1234"},
		},
		{
			name:   "zip on custom field",
			fields: FieldMap{"Loss ZIP Code": "98052-1234", "Garage ZIP": "10001-0001"},
			pp:     rules.PostProcessing{ZipSelection: rules.ZipSelectionFirstFiveDigits, ZipField: "Garage ZIP"},
			want:   FieldMap{"Loss ZIP Code": "98052-1234", "Garage ZIP": "10001"},
		},
		{
			name:   "titlecase listed fields only",
			fields: FieldMap{"Owner": "JANE DOE", "VIN": "ABC123"},
			pp:     rules.PostProcessing{TitlecaseFields: []string{"Owner", "Missing"}},
			want:   FieldMap{"Owner": "Jane Doe", "VIN": "ABC123"},
		},
		{
			name:   "make mapping exact key",
			fields: FieldMap{"Make": "CHEV"},
			pp:     rules.PostProcessing{MakeMapping: map[string]string{"CHEV": "Chevrolet"}},
			want:   FieldMap{"Make": "Chevrolet"},
		},
		{
			name:   "make mapping is case sensitive",
			fields: FieldMap{"Make": "Chev"},
			pp:     rules.PostProcessing{MakeMapping: map[string]string{"CHEV": "Chevrolet"}},
			want:   FieldMap{"Make": "Chev"},
		},
		{
			name:   "make mapping sees titlecased value",
			fields: FieldMap{"Make": "TOYT"},
			pp: rules.PostProcessing{
				TitlecaseFields: []string{"Make"},
				MakeMapping:     map[string]string{"Toyt": "Toyota"},
			},
			want: FieldMap{"Make": "Toyota"},
		},
		{
			name:   "passes never add fields",
			fields: FieldMap{},
			pp: rules.PostProcessing{
				TitlecaseFields: []string{"Owner"},
				ZipSelection:    rules.ZipSelectionFirstFiveDigits,
				MakeMapping:     map[string]string{"CHEV": "Chevrolet"},
			},
			want: FieldMap{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PostProcess(tt.fields, tt.pp))
		})
	}
}

func TestPostProcess_DoesNotMutateInput(t *testing.T) {
	in := FieldMap{"Make": "CHEV", "Owner": "JANE DOE"}
	_ = PostProcess(in, rules.PostProcessing{
		TitlecaseFields: []string{"Owner"},
		MakeMapping:     map[string]string{"CHEV": "Chevrolet"},
	})
	assert.Equal(t, FieldMap{"Make": "CHEV", "Owner": "JANE DOE"}, in)
}
