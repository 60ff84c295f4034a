package apierr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind_StatusCode(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, 400},
		{KindIntegrity, 400},
		{KindNotFound, 404},
		{KindConflict, 409},
		{KindQuerySyntax, 400},
		{KindQueryRuntime, 400},
		{KindTimeout, 500},
		{KindStorage, 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.StatusCode())
	}
}

func TestError_WithStatusOverridesDefault(t *testing.T) {
	err := New(KindIntegrity, "still referenced").WithStatus(409)
	assert.Equal(t, 409, err.StatusCode())
}

func TestError_AsUnwrapsWrappedErrors(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := Wrap(KindStorage, "write failed", cause)

	apiErr, ok := As(wrapped)
	require := assert.New(t)
	require.True(ok)
	require.Equal(KindStorage, apiErr.Kind)
	require.ErrorIs(wrapped, cause)
}

func TestKindOf_DefaultsToStorageForPlainErrors(t *testing.T) {
	assert.Equal(t, KindStorage, KindOf(errors.New("plain")))
}

func TestKindOf_ReturnsWrappedKind(t *testing.T) {
	err := New(KindValidation, "bad input")
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestNewErrorEnvelope_NormalisesPlainError(t *testing.T) {
	env := NewErrorEnvelope(errors.New("unexpected"), "/api/v1/users/1")
	assert.Equal(t, 500, env.Error.StatusCode)
	assert.Equal(t, "/api/v1/users/1", env.Links["self"].Href)
}

func TestNewErrorEnvelope_PreservesDetails(t *testing.T) {
	err := New(KindValidation, "invalid document").WithDetails(FieldError{Field: "name", Message: "required"})
	env := NewErrorEnvelope(err, "/api/v1/users")
	require := assert.New(t)
	require.Equal(400, env.Error.StatusCode)
	require.Len(env.Error.Details, 1)
	require.Equal("name", env.Error.Details[0].Field)
}
