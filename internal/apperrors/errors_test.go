package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindAndCodeClassification(t *testing.T) {
	err := BadRequest(CodeMismatchAmount, "expected %s", "100")
	assert.Equal(t, KindBadRequest, KindOf(err))
	assert.Equal(t, CodeMismatchAmount, CodeOf(err))
	assert.True(t, IsBadRequest(err))
	assert.False(t, IsConflict(err))

	assert.True(t, IsConflict(Conflict(CodeTransactionAlreadyProcessed, "dup")))
	assert.True(t, IsRetryable(Retryable(CodeBlockConfirmationNotEnough, "wait")))
	assert.Equal(t, KindInternal, KindOf(Internal(CodeTransactionWronglyCreated, "bad state")))
}

func TestUntypedErrorsAreInternal(t *testing.T) {
	err := errors.New("plain")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Empty(t, CodeOf(err))
	assert.False(t, IsRetryable(err))
	assert.False(t, IsRetryable(nil))
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	cause := Retryable(CodeTransactionNotFound, "not visible")
	wrapped := fmt.Errorf("polling %s: %w", "0xabc", cause)

	assert.True(t, IsRetryable(wrapped))
	assert.Equal(t, CodeTransactionNotFound, CodeOf(wrapped))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeQueuePublishFailed, "publish failed")

	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, CodeQueuePublishFailed, CodeOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Contains(t, err.Error(), CodeQueuePublishFailed)
}
