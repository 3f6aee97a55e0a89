package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/mini-oms/internal/core/service"
)

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

var errorKinds = []struct {
	kind   error
	status int
	code   codes.Code
}{
	{service.ErrValidation, http.StatusBadRequest, codes.InvalidArgument},
	{service.ErrUnauthenticated, http.StatusUnauthorized, codes.Unauthenticated},
	{service.ErrForbidden, http.StatusForbidden, codes.PermissionDenied},
	{service.ErrConflict, http.StatusConflict, codes.AlreadyExists},
	{service.ErrNotFound, http.StatusNotFound, codes.NotFound},
	{service.ErrDomainRule, http.StatusUnprocessableEntity, codes.FailedPrecondition},
}

func httpStatus(err error) int {
	for _, k := range errorKinds {
		if errors.Is(err, k.kind) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}

func grpcCode(err error) codes.Code {
	for _, k := range errorKinds {
		if errors.Is(err, k.kind) {
			return k.code
		}
	}
	return codes.Internal
}

func grpcError(err error) error {
	return status.Error(grpcCode(err), err.Error())
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	if code != http.StatusInternalServerError {
		writeJSON(w, code, errorResponse{Message: err.Error()})
		return
	}

	h.logger.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)

	res := errorResponse{Message: err.Error()}
	if !h.production {
		res.Error = errorChain(err)
	}
	writeJSON(w, code, res)
}

// errorChain lists every wrapped layer of err, outermost first, so the innermost line names the
// failing call.
func errorChain(err error) string {
	var b strings.Builder
	for e := err; e != nil; e = errors.Unwrap(e) {
		fmt.Fprintf(&b, "%T: %s\n", e, e)
	}
	return b.String()
}
