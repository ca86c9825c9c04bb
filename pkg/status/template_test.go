package status_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestline-labs/eyelink-realtime/pkg/status"
)

// TestTemplateValidate_S3 checks that a required item left empty fails
// validation, and the same call succeeds once answered.
func TestTemplateValidate_S3(t *testing.T) {
	tmpl := status.Template{
		ID: "t1",
		Sections: []status.TemplateSection{
			{
				Title: "Session",
				Items: []status.TemplateItem{
					{ID: "Q1", Kind: status.TemplateItemText, Required: true},
				},
			},
		},
	}

	err := tmpl.Validate(status.TemplateResponse{})
	require.Error(t, err)

	var invalid *status.InvalidTemplateAnswersError
	require.ErrorAs(t, err, &invalid)
	require.Len(t, invalid.Errors, 1)
	assert.Equal(t, "Q1", invalid.Errors[0].ItemID)

	err = tmpl.Validate(status.TemplateResponse{"Q1": {"ok"}})
	assert.NoError(t, err)
}

func TestTemplateValidate_RadioListRejectsDisallowedValue(t *testing.T) {
	tmpl := status.Template{
		Sections: []status.TemplateSection{
			{
				Items: []status.TemplateItem{
					{ID: "Q2", Kind: status.TemplateItemRadioList, AllowedValues: []string{"left", "right"}},
				},
			},
		},
	}

	err := tmpl.Validate(status.TemplateResponse{"Q2": {"both"}})
	require.Error(t, err)

	err = tmpl.Validate(status.TemplateResponse{"Q2": {"left"}})
	assert.NoError(t, err)
}

func TestTemplateValidate_HiddenItemsSkipped(t *testing.T) {
	tmpl := status.Template{
		Sections: []status.TemplateSection{
			{
				Items: []status.TemplateItem{
					{ID: "Q3", Kind: status.TemplateItemText, Required: true, Hidden: true},
				},
			},
		},
	}

	assert.NoError(t, tmpl.Validate(status.TemplateResponse{}))
}

func TestTemplateValidate_NestedSections(t *testing.T) {
	tmpl := status.Template{
		Sections: []status.TemplateSection{
			{
				Title: "Outer",
				Sections: []status.TemplateSection{
					{
						Title: "Inner",
						Items: []status.TemplateItem{
							{ID: "Q4", Kind: status.TemplateItemText, Required: true},
						},
					},
				},
			},
		},
	}

	require.Error(t, tmpl.Validate(status.TemplateResponse{}))
	assert.NoError(t, tmpl.Validate(status.TemplateResponse{"Q4": {"ok"}}))
}
