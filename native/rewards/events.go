package rewards

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"splitledger/core/types"
)

const (
	EventTypeActivityTracked   = "rewards.activity_tracked"
	EventTypeRewardsCalculated = "rewards.calculated"
	EventTypeRewardsClaimed    = "rewards.claimed"
)

// NewActivityTrackedEvent returns the payload emitted when an escrow activity
// is recorded against a user's counters.
func NewActivityTrackedEvent(activity *UserActivity, activityID uint64) *types.Event {
	attrs := map[string]string{
		"activityId": strconv.FormatUint(activityID, 10),
	}
	if activity != nil {
		attrs["user"] = hex.EncodeToString(activity.User[:])
		attrs["kind"] = string(activity.Kind)
		attrs["splitId"] = strconv.FormatUint(activity.SplitID, 10)
		attrs["amount"] = amountString(activity.Amount)
	}
	return &types.Event{Type: EventTypeActivityTracked, Attributes: attrs}
}

// NewCalculatedEvent returns the payload emitted after a rewards
// recomputation.
func NewCalculatedEvent(user [20]byte, earned, available *big.Int) *types.Event {
	return &types.Event{Type: EventTypeRewardsCalculated, Attributes: map[string]string{
		"user":      hex.EncodeToString(user[:]),
		"earned":    amountString(earned),
		"available": amountString(available),
	}}
}

// NewClaimedEvent returns the payload emitted when a user claims their
// available balance.
func NewClaimedEvent(user [20]byte, claimed *big.Int) *types.Event {
	return &types.Event{Type: EventTypeRewardsClaimed, Attributes: map[string]string{
		"user":    hex.EncodeToString(user[:]),
		"claimed": amountString(claimed),
	}}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
