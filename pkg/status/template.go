package status

import (
	"fmt"
	"regexp"
	"strings"
)

// TemplateResponse maps an item ID to its answered values; multi-select
// answers (checkbox_list) preserve the full sequence.
type TemplateResponse map[string][]string

// ItemError describes why one template item failed validation.
type ItemError struct {
	ItemID string
	Reason string
}

func (e ItemError) Error() string {
	return fmt.Sprintf("item %s: %s", e.ItemID, e.Reason)
}

// InvalidTemplateAnswersError carries one ItemError per failing item, so a
// caller can render field-level feedback instead of an opaque string.
type InvalidTemplateAnswersError struct {
	Errors []ItemError
}

func (e *InvalidTemplateAnswersError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, ie := range e.Errors {
		parts[i] = ie.Error()
	}
	return fmt.Sprintf("invalid template answers: %s", strings.Join(parts, "; "))
}

// Validate checks response against every item in the template (recursing
// into nested sections), returning InvalidTemplateAnswersError carrying one
// ItemError per failing item.
func (t Template) Validate(response TemplateResponse) error {
	var errs []ItemError
	for _, section := range t.Sections {
		errs = append(errs, validateSection(section, response)...)
	}
	if len(errs) > 0 {
		return &InvalidTemplateAnswersError{Errors: errs}
	}
	return nil
}

func validateSection(section TemplateSection, response TemplateResponse) []ItemError {
	var errs []ItemError
	for _, item := range section.Items {
		if err := validateItem(item, response[item.ID]); err != nil {
			errs = append(errs, *err)
		}
	}
	for _, sub := range section.Sections {
		errs = append(errs, validateSection(sub, response)...)
	}
	return errs
}

func validateItem(item TemplateItem, values []string) *ItemError {
	if item.Hidden {
		return nil
	}

	nonEmpty := false
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			nonEmpty = true
			break
		}
	}

	if item.Required && !nonEmpty {
		return &ItemError{ItemID: item.ID, Reason: "required item is empty"}
	}
	if !nonEmpty {
		return nil
	}

	if len(item.AllowedValues) > 0 {
		allowed := make(map[string]bool, len(item.AllowedValues))
		for _, v := range item.AllowedValues {
			allowed[v] = true
		}
		for _, v := range values {
			if v == "" {
				continue
			}
			if !allowed[v] {
				return &ItemError{ItemID: item.ID, Reason: fmt.Sprintf("value %q is not an allowed value", v)}
			}
		}
	}

	if item.Pattern != "" {
		re, err := regexp.Compile(item.Pattern)
		if err != nil {
			return &ItemError{ItemID: item.ID, Reason: fmt.Sprintf("invalid pattern constraint: %v", err)}
		}
		for _, v := range values {
			if v == "" {
				continue
			}
			if !re.MatchString(v) {
				return &ItemError{ItemID: item.ID, Reason: fmt.Sprintf("value %q does not match pattern %q", v, item.Pattern)}
			}
		}
	}

	return nil
}
