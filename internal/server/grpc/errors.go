package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

var kindCodes = map[common.Kind]codes.Code{
	common.KindMalformed:             codes.Unauthenticated,
	common.KindInvalidSignature:      codes.Unauthenticated,
	common.KindExpired:               codes.Unauthenticated,
	common.KindTokenKindMismatch:     codes.Unauthenticated,
	common.KindInvalidRefreshToken:   codes.Unauthenticated,
	common.KindTokenRevokedOrUnknown: codes.Unauthenticated,
	common.KindTokenExpired:          codes.Unauthenticated,
	common.KindNoValidRefreshToken:   codes.Unauthenticated,
	common.KindCorruptStoredToken:    codes.Unauthenticated,
	common.KindInvalidCredentials:    codes.Unauthenticated,

	common.KindAccountNotFound: codes.NotFound,
	common.KindNoPendingOtp:    codes.NotFound,

	common.KindOtpMismatch:       codes.InvalidArgument,
	common.KindOtpExpired:        codes.InvalidArgument,
	common.KindInvalidResetToken: codes.InvalidArgument,
	common.KindResetTokenExpired: codes.InvalidArgument,

	common.KindOtpLocked:      codes.ResourceExhausted,
	common.KindRateLimited:    codes.ResourceExhausted,
	common.KindDeliveryFailed: codes.Unavailable,
	common.KindAccountExists:  codes.AlreadyExists,
}

// codeFor maps an error kind to its gRPC status code.
func codeFor(k common.Kind) codes.Code {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return codes.Internal
}

// kindDetailField names the status detail entry carrying the error kind.
const kindDetailField = "kind"

// kindStatus builds the status for e with its kind attached as a
// structpb.Struct detail, so clients can branch without parsing messages.
func kindStatus(e *common.Error) *status.Status {
	st := status.New(codeFor(e.Kind), e.UserMessage)
	detail, err := structpb.NewStruct(map[string]any{kindDetailField: string(e.Kind)})
	if err != nil {
		return st
	}
	if withDetail, err := st.WithDetails(detail); err == nil {
		return withDetail
	}
	return st
}

// KindFromError returns the error kind carried by a status error produced
// by this server.
func KindFromError(err error) (common.Kind, bool) {
	st, ok := status.FromError(err)
	if !ok {
		return "", false
	}
	for _, d := range st.Details() {
		if s, ok := d.(*structpb.Struct); ok {
			if k := s.GetFields()[kindDetailField].GetStringValue(); k != "" {
				return common.Kind(k), true
			}
		}
	}
	return "", false
}

// toStatus converts a service error into a gRPC status error. Business
// faults carry their user message; anything else is logged and hidden.
func (s *GRPCServer) toStatus(ctx context.Context, method string, err error) error {
	if e, ok := common.AsError(err); ok {
		s.logger.Info(ctx, "request rejected", "method", method, "kind", string(e.Kind), "detail", e.Error())
		return kindStatus(e).Err()
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}

	s.logger.Error(ctx, "request failed", "method", method, "error", err.Error())
	return status.Error(codes.Internal, common.ErrorInternal.Error())
}
