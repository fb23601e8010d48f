package rewards

import (
	"fmt"
	"math/big"
)

// Status gates whether a user may claim accrued rewards.
type Status uint8

const (
	StatusActive Status = iota
	StatusSuspended
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusSuspended
}

// String returns the canonical lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusSuspended:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ActivityKind names the escrow activity that accrued toward rewards.
type ActivityKind string

const (
	ActivitySplitCreated      ActivityKind = "split_created"
	ActivitySplitParticipated ActivityKind = "split_participated"
)

// UserRewards holds the per-user incentive counters. Records are created
// lazily on first activity or first query and never deleted.
type UserRewards struct {
	User                    [20]byte `json:"user"`
	TotalSplitsCreated      uint64   `json:"totalSplitsCreated"`
	TotalSplitsParticipated uint64   `json:"totalSplitsParticipated"`
	TotalAmountTransacted   *big.Int `json:"totalAmountTransacted"`
	RewardsEarned           *big.Int `json:"rewardsEarned"`
	RewardsClaimed          *big.Int `json:"rewardsClaimed"`
	LastActivity            int64    `json:"lastActivity"`
	Status                  Status   `json:"status"`
}

// Clone returns a deep copy of the rewards record.
func (r *UserRewards) Clone() *UserRewards {
	if r == nil {
		return nil
	}
	clone := *r
	clone.TotalAmountTransacted = cloneOrZero(r.TotalAmountTransacted)
	clone.RewardsEarned = cloneOrZero(r.RewardsEarned)
	clone.RewardsClaimed = cloneOrZero(r.RewardsClaimed)
	return &clone
}

// Normalize returns the record with all amount fields non-nil.
func (r *UserRewards) Normalize() *UserRewards {
	if r == nil {
		return nil
	}
	if r.TotalAmountTransacted == nil {
		r.TotalAmountTransacted = big.NewInt(0)
	}
	if r.RewardsEarned == nil {
		r.RewardsEarned = big.NewInt(0)
	}
	if r.RewardsClaimed == nil {
		r.RewardsClaimed = big.NewInt(0)
	}
	return r
}

// Available returns the claimable balance, earned minus claimed.
func (r *UserRewards) Available() *big.Int {
	earned := cloneOrZero(r.RewardsEarned)
	if r.RewardsClaimed != nil {
		earned.Sub(earned, r.RewardsClaimed)
	}
	return earned
}

// UserActivity is an immutable, append-only log entry recording one rewarded
// action. Entries are keyed by a monotonically increasing activity id and are
// write-once.
type UserActivity struct {
	User      [20]byte     `json:"user"`
	Kind      ActivityKind `json:"kind"`
	SplitID   uint64       `json:"splitId"`
	Amount    *big.Int     `json:"amount"`
	Timestamp int64        `json:"timestamp"`
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
