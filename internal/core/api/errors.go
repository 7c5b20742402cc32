package api

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/solatis/mutguard/internal/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrInvalidRequest marks malformed request payloads.
var ErrInvalidRequest = errors.New("invalid request")

// ToStatus maps registry and engine errors to gRPC status errors.
// Limit errors carry their context as a structpb.Struct detail.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	case errors.Is(err, types.ErrMutationLimitExceeded):
		st := status.New(codes.FailedPrecondition, err.Error())
		if le, ok := types.AsLimitError(err); ok {
			if detail, derr := contextDetail(le.Context); derr == nil {
				if withDetail, werr := st.WithDetails(detail); werr == nil {
					st = withDetail
				}
			}
		}
		return st.Err()

	case errors.Is(err, types.ErrResetNotAllowed),
		errors.Is(err, types.ErrHistoryDisabled),
		errors.Is(err, types.ErrDetached):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, ErrGuardNotFound),
		errors.Is(err, types.ErrFieldNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrGuardExists):
		return status.Error(codes.AlreadyExists, err.Error())

	case errors.Is(err, ErrInvalidName),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, types.ErrNegativeLimit),
		errors.Is(err, types.ErrInvalidPath),
		errors.Is(err, types.ErrPathTooDeep),
		errors.Is(err, types.ErrIndexOutOfRange),
		errors.Is(err, types.ErrNotContainer),
		errors.Is(err, types.ErrUnknownMethod):
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func contextDetail(c types.ErrorContext) (*structpb.Struct, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}
