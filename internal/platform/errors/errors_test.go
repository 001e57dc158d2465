package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	base := New(CodeUnauthorized, "caller is not authorized")
	wrapped := fmt.Errorf("submit transfer: %w", base)

	if !stderrors.Is(wrapped, New(CodeUnauthorized, "different message")) {
		t.Fatal("expected errors with the same code to match")
	}
	if stderrors.Is(wrapped, New(CodeInsufficientAllowance, "caller is not authorized")) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(CodeUnknown, "persist events", cause)

	if !stderrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable via errors.Is")
	}
}

func TestGRPCCodeMapping(t *testing.T) {
	tests := []struct {
		code Code
		want codes.Code
	}{
		{CodeUnauthorized, codes.PermissionDenied},
		{CodeInsufficientAllowance, codes.FailedPrecondition},
		{CodeArithmeticOverflow, codes.OutOfRange},
		{CodeManagerRejected, codes.FailedPrecondition},
		{CodeAccountNotFound, codes.NotFound},
		{CodeInvalidTransfer, codes.InvalidArgument},
		{CodeUnknown, codes.Internal},
	}
	for _, tc := range tests {
		if got := tc.code.GRPCCode(); got != tc.want {
			t.Fatalf("GRPCCode(%s) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestToGRPCStatusCarriesReason(t *testing.T) {
	err := WithMetadata(CodeAccountNotEmpty, "account still holds assets", map[string]string{"account": "7"})

	st, ok := status.FromError(err.ToGRPCStatus())
	if !ok {
		t.Fatal("expected a gRPC status error")
	}
	if st.Code() != codes.FailedPrecondition {
		t.Fatalf("status code = %v, want %v", st.Code(), codes.FailedPrecondition)
	}
	if st.Message() != "account still holds assets" {
		t.Fatalf("status message = %q", st.Message())
	}
}
