package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	assert.Equal(t, "query cannot be empty", New(KindValidation, "query cannot be empty").Error())

	wrapped := Wrap(KindExternal, "embedding failed", errors.New("connection refused"))
	assert.Equal(t, "embedding failed: connection refused", wrapped.Error())
}

func TestError_IsAndAs(t *testing.T) {
	sentinel := New(KindValidation, "query cannot be empty")
	err := fmt.Errorf("answer: %w", sentinel)

	assert.True(t, errors.Is(err, sentinel))
	assert.False(t, errors.Is(err, New(KindValidation, "other")))
	assert.True(t, IsValidation(err))
	assert.False(t, IsNotFound(err))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", New(KindValidation, "bad"), KindValidation},
		{"not found", New(KindNotFound, "missing"), KindNotFound},
		{"conflict wrapped", fmt.Errorf("ctx: %w", New(KindConflict, "dup")), KindConflict},
		{"external", Wrap(KindExternal, "provider", errors.New("503")), KindExternal},
		{"plain error", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(KindInternal, "store", cause)
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsExternal(nil))
}
