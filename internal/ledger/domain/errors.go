package domain

import (
	"strconv"

	apperrors "github.com/quantfold/marginledger/internal/platform/errors"
)

var (
	// ErrUnauthorized indicates the caller lacks owner, delegate, operator or
	// manager rights over the account.
	ErrUnauthorized = apperrors.New(apperrors.CodeUnauthorized, "caller is not authorized for this account")
	// ErrInsufficientAllowance indicates the delegate's remaining allowance
	// cannot cover the requested delta.
	ErrInsufficientAllowance = apperrors.New(apperrors.CodeInsufficientAllowance, "allowance does not cover the requested amount")
	// ErrNegativeAllowance indicates an allowance update with a negative value.
	ErrNegativeAllowance = apperrors.New(apperrors.CodeNegativeAllowance, "allowances must be non-negative")
	// ErrArithmeticOverflow indicates a balance or allowance computation left
	// the representable range.
	ErrArithmeticOverflow = apperrors.New(apperrors.CodeArithmeticOverflow, "arithmetic overflow")
	// ErrAccountNotFound indicates an unknown or burned account id.
	ErrAccountNotFound = apperrors.New(apperrors.CodeAccountNotFound, "account does not exist")
	// ErrAccountNotEmpty indicates a burn attempt on an account that still
	// holds non-zero balances.
	ErrAccountNotEmpty = apperrors.New(apperrors.CodeAccountNotEmpty, "account still holds assets")
	// ErrUnknownAsset indicates an asset id with no registered capability.
	ErrUnknownAsset = apperrors.New(apperrors.CodeUnknownAsset, "asset is not registered")
	// ErrUnknownManager indicates a manager id with no registered capability.
	ErrUnknownManager = apperrors.New(apperrors.CodeUnknownManager, "manager is not registered")
	// ErrInvalidTransfer indicates a malformed transfer leg.
	ErrInvalidTransfer = apperrors.New(apperrors.CodeInvalidTransfer, "transfer must name two distinct accounts")
	// ErrInvalidOwner indicates an empty owner identity.
	ErrInvalidOwner = apperrors.New(apperrors.CodeInvalidTransfer, "owner identity is required")
)

func accountNotFound(id uint64) error {
	return apperrors.WithMetadata(apperrors.CodeAccountNotFound, "account does not exist",
		map[string]string{"account": strconv.FormatUint(id, 10)})
}

func managerRejected(id uint64, cause error) error {
	return &apperrors.Error{
		Code:     apperrors.CodeManagerRejected,
		Message:  "manager rejected the adjustment",
		Metadata: map[string]string{"account": strconv.FormatUint(id, 10)},
		Cause:    cause,
	}
}

func assetRejected(asset string, id uint64, cause error) error {
	return &apperrors.Error{
		Code:     apperrors.CodeAssetRejected,
		Message:  "asset rejected the balance change",
		Metadata: map[string]string{"asset": asset, "account": strconv.FormatUint(id, 10)},
		Cause:    cause,
	}
}
