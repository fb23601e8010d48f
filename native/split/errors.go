package split

import "errors"

var (
	ErrNilState             = errors.New("split: state not configured")
	ErrSplitNotFound        = errors.New("split: split not found")
	ErrInvalidShares        = errors.New("split: participant shares must sum to total amount")
	ErrNoParticipants       = errors.New("split: at least one participant is required")
	ErrInvalidAmount        = errors.New("split: amount must be positive")
	ErrNotAcceptingDeposits = errors.New("split: split is not accepting deposits")
	ErrParticipantNotFound  = errors.New("split: participant not found in split")
	ErrDepositExceedsShare  = errors.New("split: deposit exceeds remaining amount owed")
	ErrSplitReleased        = errors.New("split: split already released")
	ErrSplitCancelled       = errors.New("split: split cancelled")
	ErrSplitFullyFunded     = errors.New("split: split fully funded")
	ErrNoFundsAvailable     = errors.New("split: no funds available")
	ErrSplitExpired         = errors.New("split: split deadline passed")
	ErrSplitNotCancelled    = errors.New("split: split is not cancelled")
	ErrDeadlineNotReached   = errors.New("split: deadline not reached")
	ErrInsufficientBalance  = errors.New("split: insufficient balance")
)
