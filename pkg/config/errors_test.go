package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationErrorError(t *testing.T) {
	baseErr := errors.New("base error")

	tests := []struct {
		name     string
		err      *ValidationError
		contains []string
	}{
		{
			name: "full error",
			err:  NewValidationError("batch", "batch_provider", baseErr),
			contains: []string{"batch", "batch_provider", "base error"},
		},
		{
			name: "section only, no field",
			err:  NewValidationError("taste_engine", "", errors.New("backup_count must be >= 0")),
			contains: []string{"taste_engine", "backup_count must be >= 0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()
			for _, substr := range tt.contains {
				assert.Contains(t, errStr, substr)
			}
		})
	}
}

func TestValidationErrorUnwrap(t *testing.T) {
	baseErr := errors.New("base error")
	validationErr := NewValidationError("question_mapper", "min_relevance", baseErr)

	unwrapped := validationErr.Unwrap()
	assert.Equal(t, baseErr, unwrapped)
	assert.True(t, errors.Is(validationErr, baseErr))
}

func TestLoadErrorError(t *testing.T) {
	tests := []struct {
		name     string
		err      *LoadError
		contains []string
	}{
		{
			name: "file not found",
			err:  &LoadError{File: "engine.yaml", Err: errors.New("file not found")},
			contains: []string{"failed to load", "engine.yaml", "file not found"},
		},
		{
			name: "parse error",
			err:  &LoadError{File: "engine.yaml", Err: errors.New("yaml: unmarshal error")},
			contains: []string{"failed to load", "engine.yaml", "unmarshal error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()
			for _, substr := range tt.contains {
				assert.Contains(t, errStr, substr)
			}
		})
	}
}

func TestLoadErrorUnwrap(t *testing.T) {
	baseErr := errors.New("base error")
	loadErr := &LoadError{File: "test.yaml", Err: baseErr}

	unwrapped := loadErr.Unwrap()
	assert.Equal(t, baseErr, unwrapped)
	assert.True(t, errors.Is(loadErr, baseErr))
}
