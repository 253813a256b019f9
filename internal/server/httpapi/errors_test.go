package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dmitrijs2005/datakeeper/internal/common"
	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{common.ErrMalformedRequest, http.StatusBadRequest},
		{common.ErrValidationFailed, http.StatusBadRequest},
		{common.ErrMissingCredential, http.StatusBadRequest},
		{common.ErrInvalidToken, http.StatusUnauthorized},
		{common.ErrTokenExpired, http.StatusUnauthorized},
		{common.ErrorUnauthorized, http.StatusForbidden},
		{common.ErrUnknownConfig, http.StatusNotFound},
		{common.ErrConfigDisabled, http.StatusNotFound},
		{common.ErrUnknownDocumentType, http.StatusNotFound},
		{common.ErrConflictPersistence, http.StatusConflict},
		{common.ErrConstraintViolation, http.StatusConflict},
		{common.ErrJobRejected, http.StatusBadGateway},
		{common.ErrDownstream, http.StatusServiceUnavailable},
		{common.ErrTimeout, http.StatusGatewayTimeout},
		{fmt.Errorf("%w: %w", common.ErrQueryFailed, common.ErrTimeout), http.StatusGatewayTimeout},
		{fmt.Errorf("%w: boom", common.ErrQueryFailed), http.StatusInternalServerError},
		{errors.New("other"), http.StatusInternalServerError},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x?token=q", nil)
	assert.Equal(t, "q", tokenFromRequest(r))

	r.Header.Set("access_token", "h")
	assert.Equal(t, "h", tokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer b")
	assert.Equal(t, "b", tokenFromRequest(r))
}
