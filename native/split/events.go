package split

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"splitledger/core/types"
)

const (
	EventTypeSplitCreated   = "split.created"
	EventTypeDepositReceive = "split.deposit_received"
	EventTypeSplitCompleted = "split.completed"
	EventTypeFundsReleased  = "split.funds_released"
	EventTypeSplitCancelled = "split.cancelled"
	EventTypeSplitRefunded  = "split.refunded"
	EventTypeSplitExpired   = "split.expired"
)

// NewCreatedEvent returns the canonical event payload for a newly created
// split.
func NewCreatedEvent(s *Split) *types.Event {
	attrs := baseAttributes(s)
	attrs["totalAmount"] = amountString(s.TotalAmount)
	return &types.Event{Type: EventTypeSplitCreated, Attributes: attrs}
}

// NewDepositReceivedEvent returns the payload emitted when a participant pays
// toward their share.
func NewDepositReceivedEvent(s *Split, participant [20]byte, amount *big.Int) *types.Event {
	attrs := baseAttributes(s)
	attrs["participant"] = hex.EncodeToString(participant[:])
	attrs["amount"] = amountString(amount)
	attrs["amountCollected"] = amountString(s.AmountCollected)
	return &types.Event{Type: EventTypeDepositReceive, Attributes: attrs}
}

// NewCompletedEvent returns the payload emitted when a split reaches full
// funding.
func NewCompletedEvent(s *Split) *types.Event {
	attrs := baseAttributes(s)
	attrs["totalAmount"] = amountString(s.TotalAmount)
	return &types.Event{Type: EventTypeSplitCompleted, Attributes: attrs}
}

// NewFundsReleasedEvent returns the payload emitted when escrowed funds are
// transferred to the beneficiary, in part or in full.
func NewFundsReleasedEvent(s *Split, amount *big.Int, at int64) *types.Event {
	attrs := baseAttributes(s)
	attrs["recipient"] = hex.EncodeToString(s.Creator[:])
	attrs["amount"] = amountString(amount)
	attrs["releasedAt"] = strconv.FormatInt(at, 10)
	return &types.Event{Type: EventTypeFundsReleased, Attributes: attrs}
}

// NewCancelledEvent returns the payload emitted when a split is cancelled.
func NewCancelledEvent(s *Split) *types.Event {
	return &types.Event{Type: EventTypeSplitCancelled, Attributes: baseAttributes(s)}
}

// NewRefundedEvent returns the payload emitted when a cancelled split returns
// a participant's collected funds.
func NewRefundedEvent(s *Split, participant [20]byte, amount *big.Int) *types.Event {
	attrs := baseAttributes(s)
	attrs["participant"] = hex.EncodeToString(participant[:])
	attrs["amount"] = amountString(amount)
	return &types.Event{Type: EventTypeSplitRefunded, Attributes: attrs}
}

// NewExpiredEvent returns the payload emitted when a split is cancelled via
// its deadline.
func NewExpiredEvent(s *Split) *types.Event {
	attrs := baseAttributes(s)
	attrs["deadline"] = strconv.FormatInt(s.Deadline, 10)
	return &types.Event{Type: EventTypeSplitExpired, Attributes: attrs}
}

func baseAttributes(s *Split) map[string]string {
	attrs := make(map[string]string)
	if s == nil {
		return attrs
	}
	attrs["id"] = strconv.FormatUint(s.ID, 10)
	attrs["creator"] = hex.EncodeToString(s.Creator[:])
	attrs["status"] = s.Status.String()
	return attrs
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
