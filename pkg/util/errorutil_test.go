package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainError(t *testing.T) {
	t.Run("passes domain errors through", func(t *testing.T) {
		err := fmt.Errorf("wrapped: %w", NewNotFound("bug", map[string]any{"bug_id": int64(3)}))
		de := ToDomainError(err)
		require.NotNil(t, de)
		assert.Equal(t, CodeNotFound, de.Code)
		assert.Equal(t, http.StatusNotFound, de.HTTPStatus)
		assert.Equal(t, "bug not found", de.Message)
	})

	t.Run("maps missing rows to not found", func(t *testing.T) {
		de := ToDomainError(pgx.ErrNoRows)
		assert.Equal(t, CodeNotFound, de.Code)
	})

	t.Run("hides unknown errors behind internal error", func(t *testing.T) {
		cause := errors.New("boom")
		de := ToDomainError(cause)
		assert.Equal(t, CodeInternal, de.Code)
		assert.Equal(t, http.StatusInternalServerError, de.HTTPStatus)
		assert.ErrorIs(t, de, cause)
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, ToDomainError(nil))
	})
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsNotPermitted(NewNotPermitted("nope")))
	assert.False(t, IsNotPermitted(NewNotFound("bug", nil)))
	assert.True(t, IsNotFound(fmt.Errorf("ctx: %w", NewNotFound("bug", nil))))
	assert.False(t, IsNotFound(errors.New("plain")))
}

func TestFromValidation(t *testing.T) {
	type input struct {
		Title    string `validate:"required"`
		Severity string `validate:"oneof=Minor Major"`
	}
	err := validator.New().Struct(input{Severity: "Huge"})
	require.Error(t, err)

	de := ToDomainError(FromValidation(err))
	assert.Equal(t, CodeValidation, de.Code)
	assert.Equal(t, "required", de.Details["title"])
	assert.Equal(t, "oneof=Minor Major", de.Details["severity"])
}
