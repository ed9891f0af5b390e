package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidator(t *testing.T) {
	type input struct {
		Name    string `json:"name" validate:"required"`
		Session string `json:"session" validate:"academic_session"`
	}
	validate, translator := NewValidator()

	tests := []struct {
		name    string
		in      input
		wantErr []FieldError
	}{
		{name: "valid", in: input{Name: "JSS1A", Session: "2023/2024"}},
		{
			name:    "missing name",
			in:      input{Session: "2023/2024"},
			wantErr: []FieldError{{Field: "name", Error: "this field is required"}},
		},
		{
			name:    "years not consecutive",
			in:      input{Name: "JSS1A", Session: "2023/2025"},
			wantErr: []FieldError{{Field: "session", Error: "must be an academic session like 2023/2024"}},
		},
		{
			name:    "single year",
			in:      input{Name: "JSS1A", Session: "2023"},
			wantErr: []FieldError{{Field: "session", Error: "must be an academic session like 2023/2024"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.in)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			err = NewStructValidationError(err, translator)
			require.True(t, IsValidation(err), "got %v", err)
			assert.Equal(t, tt.wantErr, err.(*ValidationError).Fields)
		})
	}
}

func TestCleanString(t *testing.T) {
	assert.Equal(t, "JSS 1A", CleanString("  JSS 1A \n"))
	assert.Equal(t, "postgres", CleanString(" Postgres ", true))
}
