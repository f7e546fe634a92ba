package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClonedErrorsMatchByCode(t *testing.T) {
	err := Clone(ErrStageAlreadyDecided, "current coach stage already approved")
	wrapped := fmt.Errorf("decide: %w", err)

	assert.True(t, errors.Is(wrapped, ErrStageAlreadyDecided))
	assert.False(t, errors.Is(wrapped, ErrAlreadyFinalized))
	assert.Equal(t, "current coach stage already approved", err.Message)
	assert.Equal(t, "stage already decided", ErrStageAlreadyDecided.Message)
}

func TestFromErrorWrapsUnknownErrors(t *testing.T) {
	appErr := FromError(sql.ErrConnDone)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.ErrorIs(t, appErr, sql.ErrConnDone)

	assert.Nil(t, FromError(nil))
	assert.Equal(t, ErrUnavailable.Code, FromError(Wrap(sql.ErrConnDone, ErrUnavailable.Code, ErrUnavailable.Status, "store timeout")).Code)
}

func TestWorkflowCodesAreDistinct(t *testing.T) {
	seen := map[string]struct{}{}
	for _, e := range []*Error{ErrNotFound, ErrInvalidParticipants, ErrUnauthorizedActor, ErrStageAlreadyDecided, ErrAlreadyFinalized, ErrConflict, ErrUnavailable, ErrPendingRequestExists} {
		_, dup := seen[e.Code]
		assert.False(t, dup, e.Code)
		seen[e.Code] = struct{}{}
	}
}
