package verify

import "errors"

var (
	ErrNilState             = errors.New("verify: state not configured")
	ErrInvalidSplitRef      = errors.New("verify: split reference must be a decimal id")
	ErrSplitNotFound        = errors.New("verify: split not found")
	ErrVerificationExists   = errors.New("verify: a pending verification already exists for this split")
	ErrVerificationNotFound = errors.New("verify: verification not found")
	ErrOracleNotAuthorized  = errors.New("verify: caller is not an authorized oracle")
	ErrVerificationClosed   = errors.New("verify: verification has already been adjudicated")
	ErrEmptyReceiptHash     = errors.New("verify: receipt hash required")
)
