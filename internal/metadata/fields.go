// Package metadata declares the archival metadata fields the assistant knows
// how to ask about, with their validation rules.
package metadata

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Well-known archival metadata fields.
const (
	FieldSubjectID          = "subject_id"
	FieldSessionDescription = "session_description"
	FieldExperimenter       = "experimenter"
	FieldInstitution        = "institution"
)

// FieldRule describes one known field: how to validate a candidate value and
// how to ask the user for it.
type FieldRule struct {
	Field  string
	Tags   string
	Prompt string
}

var validate = validator.New()

var rules = map[string]FieldRule{
	FieldSubjectID: {
		Field:  FieldSubjectID,
		Tags:   "required,min=1,max=64,excludesall= ",
		Prompt: "What is the subject identifier for this recording?",
	},
	FieldSessionDescription: {
		Field:  FieldSessionDescription,
		Tags:   "required,min=10,max=2000",
		Prompt: "Please describe this session in a sentence or two (at least 10 characters).",
	},
	FieldExperimenter: {
		Field:  FieldExperimenter,
		Tags:   "required,min=2,max=120",
		Prompt: "Who performed the experiment (last name, first name)?",
	},
	FieldInstitution: {
		Field:  FieldInstitution,
		Tags:   "required,min=2,max=200",
		Prompt: "Which institution was this data recorded at?",
	},
}

// Rule returns the rule for a known field.
func Rule(field string) (FieldRule, bool) {
	r, ok := rules[field]
	return r, ok
}

// Known reports whether the field has a fixed rule.
func Known(field string) bool {
	_, ok := rules[field]
	return ok
}

// CheckValue validates a candidate value against the field's rule. Unknown
// fields only require a non-empty value.
func CheckValue(field string, value string) error {
	rule, ok := rules[field]
	if !ok {
		if value == "" {
			return fmt.Errorf("field %q must not be empty", field)
		}
		return nil
	}
	if err := validate.Var(value, rule.Tags); err != nil {
		return fmt.Errorf("field %q rejected: %w", field, err)
	}
	return nil
}

// PromptFor returns the user-facing question for a field, generic for
// unknown fields.
func PromptFor(field string) string {
	if rule, ok := rules[field]; ok {
		return rule.Prompt
	}
	return fmt.Sprintf("Please provide a value for %q.", field)
}
