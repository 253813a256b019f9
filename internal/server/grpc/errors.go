package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/datakeeper/internal/common"
	"github.com/dmitrijs2005/datakeeper/internal/server/api"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// codeFor maps an error kind onto a gRPC code.
func codeFor(err error) codes.Code {
	switch {
	case errors.Is(err, common.ErrMalformedRequest),
		errors.Is(err, common.ErrValidationFailed),
		errors.Is(err, common.ErrMissingCredential):
		return codes.InvalidArgument
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrTokenExpired):
		return codes.Unauthenticated
	case errors.Is(err, common.ErrorUnauthorized):
		return codes.PermissionDenied
	case errors.Is(err, common.ErrUnknownConfig),
		errors.Is(err, common.ErrConfigDisabled),
		errors.Is(err, common.ErrUnknownDocumentType),
		errors.Is(err, common.ErrorNotFound):
		return codes.NotFound
	case errors.Is(err, common.ErrConflictPersistence), errors.Is(err, common.ErrConstraintViolation):
		return codes.Aborted
	case errors.Is(err, common.ErrJobRejected):
		return codes.FailedPrecondition
	case errors.Is(err, common.ErrTimeout):
		return codes.DeadlineExceeded
	case errors.Is(err, common.ErrDownstream):
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// statusError converts err into a status, attaching validation violations as
// a detail.
func (s *GRPCServer) statusError(ctx context.Context, method string, err error) error {
	code := codeFor(err)
	if code == codes.Internal || code == codes.Unavailable || code == codes.DeadlineExceeded {
		s.logger.Error(ctx, "request failed", "method", method, "code", code.String(), "error", err)
	} else {
		s.logger.Info(ctx, "request rejected", "method", method, "code", code.String(), "error", err)
	}

	st := status.New(code, api.Message(err))
	if violations := api.Violations(err); len(violations) > 0 {
		detail, derr := toStruct(map[string]any{"errors": violations})
		if derr == nil {
			if withDetails, werr := st.WithDetails(detail); werr == nil {
				st = withDetails
			}
		}
	}
	return st.Err()
}
