package realtime

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"marketplace-realtime/internal/repositories"
)

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "", ErrorCode(nil))
	assert.Equal(t, "permission_denied", ErrorCode(permissionDenied("no")))
	assert.Equal(t, "validation_error", ErrorCode(validationError("bad %s", "emoji")))
	assert.Equal(t, "not_found", ErrorCode(lookupError("get", repositories.ErrChatNotFound)))
	assert.Equal(t, "storage_failure", ErrorCode(storageError("write", errors.New("timeout"))))
	assert.Equal(t, "internal_error", ErrorCode(errors.New("boom")))
}

func TestLookupErrorKeepsCause(t *testing.T) {
	err := lookupError("get message", fmt.Errorf("wrapped: %w", repositories.ErrMessageNotFound))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, repositories.ErrMessageNotFound)

	err = lookupError("get chat", repositories.ErrInvalidID)
	assert.ErrorIs(t, err, ErrValidation)

	cause := errors.New("connection reset")
	err = lookupError("get chat", cause)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, cause)
}
