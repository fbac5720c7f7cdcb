package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewError_MessageAndCode(t *testing.T) {
	err := NewError(CodeSubjectNotFound, "subject with ID '9' does not exist")

	assert.Equal(t, "subject with ID '9' does not exist", err.Error())
	assert.True(t, HasCode(err, CodeSubjectNotFound))
	assert.False(t, HasCode(err, CodeCredentialNotFound))
}

func TestError_FallsBackToCodeString(t *testing.T) {
	err := NewError(CodeUnauthorized, "")

	assert.Equal(t, "UNAUTHORIZED", err.Error())
}

func TestErrorIs_MatchesByCode(t *testing.T) {
	err := NewError(CodeAlreadyRevoked, "credential '3' is already revoked")

	assert.ErrorIs(t, err, NewError(CodeAlreadyRevoked, "different message"))
	assert.NotErrorIs(t, err, NewError(CodeUnauthorized, ""))
}

func TestErrorIs_SurvivesWrapping(t *testing.T) {
	inner := NewError(CodeCredentialNotFound, "credential with ID '7' does not exist")
	wrapped := fmt.Errorf("RevokeCredential: %w", inner)

	assert.ErrorIs(t, wrapped, NewError(CodeCredentialNotFound, ""))
	assert.True(t, HasCode(wrapped, CodeCredentialNotFound))
}

func TestWrapError_AddsCodeToPlainError(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := WrapError(cause, CodeInvalidInput, "invalid JSON for configJSON")

	require.True(t, HasCode(err, CodeInvalidInput))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "invalid JSON for configJSON", err.Error())
}

func TestWrapError_PreservesExistingCode(t *testing.T) {
	inner := NewError(CodeSubjectNotFound, "subject with ID '2' does not exist")
	err := WrapError(inner, CodeInvalidInput, "IssueCredential failed")

	assert.True(t, HasCode(err, CodeSubjectNotFound))
	assert.False(t, HasCode(err, CodeInvalidInput))
	assert.ErrorIs(t, err, inner)
}

func TestHasCode_PlainErrors(t *testing.T) {
	assert.False(t, HasCode(errors.New("boom"), CodeUnauthorized))
	assert.False(t, HasCode(nil, CodeUnauthorized))
}
