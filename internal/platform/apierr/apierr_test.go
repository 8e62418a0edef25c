package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromUnwrapsWrappedError(t *testing.T) {
	inner := BadRequest("missing_loom_id", errors.New("loomId is required"))
	wrapped := fmt.Errorf("ingest: %w", inner)

	got := From(wrapped)
	assert.Equal(t, http.StatusBadRequest, got.Status)
	assert.Equal(t, "missing_loom_id", got.Code)
	assert.Equal(t, "loomId is required", got.Error())
}

func TestFromDefaultsToInternal(t *testing.T) {
	got := From(errors.New("disk full"))
	assert.Equal(t, http.StatusInternalServerError, got.Status)
	assert.Equal(t, "internal_error", got.Code)
}

func TestErrorMessageFallbacks(t *testing.T) {
	assert.Equal(t, "not_found", New(http.StatusNotFound, "not_found", nil).Error())
	assert.Equal(t, "api error (418)", New(418, "", nil).Error())
	var nilErr *Error
	assert.Equal(t, "", nilErr.Error())
}
