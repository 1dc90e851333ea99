package metadata

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckValue(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		value   string
		wantErr bool
	}{
		{name: "valid subject id", field: FieldSubjectID, value: "mouse-17"},
		{name: "subject id must not contain spaces", field: FieldSubjectID, value: "mouse 17", wantErr: true},
		{name: "subject id must not be empty", field: FieldSubjectID, value: "", wantErr: true},
		{name: "subject id length capped", field: FieldSubjectID, value: strings.Repeat("x", 65), wantErr: true},
		{name: "description needs ten characters", field: FieldSessionDescription, value: "too short", wantErr: true},
		{name: "valid description", field: FieldSessionDescription, value: "Baseline recording before stimulus onset."},
		{name: "experimenter accepts names with spaces", field: FieldExperimenter, value: "Doe, Jane"},
		{name: "single letter experimenter rejected", field: FieldExperimenter, value: "J", wantErr: true},
		{name: "valid institution", field: FieldInstitution, value: "EBRI"},
		{name: "unknown field accepts anything non-empty", field: "rig_serial", value: "A-100"},
		{name: "unknown field rejects empty", field: "rig_serial", value: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckValue(tt.field, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestKnownFieldsHavePrompts(t *testing.T) {
	for _, field := range []string{FieldSubjectID, FieldSessionDescription, FieldExperimenter, FieldInstitution} {
		require.True(t, Known(field))
		rule, ok := Rule(field)
		require.True(t, ok)
		assert.NotEmpty(t, rule.Prompt)
		assert.Equal(t, rule.Prompt, PromptFor(field))
	}
}

func TestPromptForUnknownField(t *testing.T) {
	assert.False(t, Known("rig_serial"))
	assert.Contains(t, PromptFor("rig_serial"), "rig_serial")
}
