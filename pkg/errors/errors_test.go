package errors

import (
	"database/sql"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorWrapsUnknownErrors(t *testing.T) {
	err := FromError(sql.ErrConnDone)
	assert.Equal(t, ErrInternal.Code, err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("transition: %w", Wrap(sql.ErrConnDone, ErrPersistence.Code, ErrPersistence.Status, "write failed"))
	assert.True(t, Is(wrapped, ErrPersistence))
	assert.False(t, Is(wrapped, ErrStaleCase))
	assert.False(t, Is(nil, ErrPersistence))

	clone := Clone(ErrRequirementsNotMet, "2 requirements pending")
	assert.True(t, Is(clone, ErrRequirementsNotMet))
	assert.Equal(t, http.StatusUnprocessableEntity, clone.Status)
	assert.Equal(t, "all transition requirements must be acknowledged", ErrRequirementsNotMet.Message)
}
