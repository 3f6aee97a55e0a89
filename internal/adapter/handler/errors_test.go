package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"

	"github.com/rl1809/mini-oms/internal/core/service"
)

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   codes.Code
	}{
		{fmt.Errorf("%w: bad", service.ErrValidation), http.StatusBadRequest, codes.InvalidArgument},
		{service.ErrInvalidCredentials, http.StatusUnauthorized, codes.Unauthenticated},
		{service.ErrForbidden, http.StatusForbidden, codes.PermissionDenied},
		{service.ErrDuplicateRequest, http.StatusConflict, codes.AlreadyExists},
		{fmt.Errorf("%w: order x", service.ErrNotFound), http.StatusNotFound, codes.NotFound},
		{fmt.Errorf("approve: %w", service.ErrInsufficientStock), http.StatusUnprocessableEntity, codes.FailedPrecondition},
		{service.ErrNoConversion, http.StatusUnprocessableEntity, codes.FailedPrecondition},
		{errors.New("db down"), http.StatusInternalServerError, codes.Internal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, httpStatus(tt.err), tt.err.Error())
		assert.Equal(t, tt.code, grpcCode(tt.err), tt.err.Error())
	}
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "", bearerToken("Basic abc"))
	assert.Equal(t, "", bearerToken(""))
}
