package rewards

import "errors"

var (
	ErrNilState            = errors.New("rewards: state not configured")
	ErrUserNotFound        = errors.New("rewards: user not found")
	ErrNotActive           = errors.New("rewards: rewards account is not active")
	ErrInsufficientRewards = errors.New("rewards: no rewards available to claim")
	ErrPoolExhausted       = errors.New("rewards: rewards pool cannot cover the claim")
	ErrInvalidAmount       = errors.New("rewards: amount must not be negative")
)
