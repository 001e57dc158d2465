// Package errors provides structured error handling for the ledger.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Authorization errors
	CodeUnauthorized Code = "UNAUTHORIZED"

	// Allowance errors
	CodeInsufficientAllowance Code = "INSUFFICIENT_ALLOWANCE"
	CodeNegativeAllowance     Code = "NEGATIVE_ALLOWANCE"

	// Balance errors
	CodeArithmeticOverflow Code = "ARITHMETIC_OVERFLOW"

	// Hook rejections
	CodeManagerRejected Code = "MANAGER_REJECTED"
	CodeAssetRejected   Code = "ASSET_REJECTED"

	// Account state errors
	CodeAccountNotFound Code = "ACCOUNT_NOT_FOUND"
	CodeAccountNotEmpty Code = "ACCOUNT_NOT_EMPTY"
	CodeUnknownAsset    Code = "UNKNOWN_ASSET"
	CodeUnknownManager  Code = "UNKNOWN_MANAGER"
	CodeInvalidTransfer Code = "INVALID_TRANSFER"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeInvalidTransfer,
		CodeNegativeAllowance:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeAccountNotEmpty,
		CodeInsufficientAllowance,
		CodeManagerRejected,
		CodeAssetRejected:
		return codes.FailedPrecondition

	// OutOfRange - arithmetic outside the representable range
	case CodeArithmeticOverflow:
		return codes.OutOfRange

	// NotFound - missing records
	case CodeAccountNotFound,
		CodeUnknownAsset,
		CodeUnknownManager,
		CodeNotFound:
		return codes.NotFound

	// PermissionDenied - caller lacks owner/delegate/manager right
	case CodeUnauthorized:
		return codes.PermissionDenied

	default:
		return codes.Internal
	}
}
