package split

import (
	"fmt"
	"math/big"
)

// Status represents the lifecycle states of a split.
type Status uint8

const (
	StatusPending Status = iota
	StatusActive
	StatusReleased
	StatusCancelled
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusReleased, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusReleased || s == StatusCancelled
}

// String returns the canonical lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusReleased:
		return "released"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Participant records one payer's fixed obligation toward a split and how much
// of it has been settled. Participants are embedded in the split record and
// are not independently addressable.
type Participant struct {
	Address        [20]byte `json:"address"`
	ShareAmount    *big.Int `json:"shareAmount"`
	AmountPaid     *big.Int `json:"amountPaid"`
	AmountRefunded *big.Int `json:"amountRefunded"`
	HasPaid        bool     `json:"hasPaid"`
}

// Remaining returns the unpaid portion of the participant's share.
func (p *Participant) Remaining() *big.Int {
	share := big.NewInt(0)
	if p.ShareAmount != nil {
		share = new(big.Int).Set(p.ShareAmount)
	}
	if p.AmountPaid != nil {
		share.Sub(share, p.AmountPaid)
	}
	return share
}

// Clone returns a deep copy of the participant.
func (p *Participant) Clone() Participant {
	clone := Participant{Address: p.Address, HasPaid: p.HasPaid, ShareAmount: big.NewInt(0), AmountPaid: big.NewInt(0), AmountRefunded: big.NewInt(0)}
	if p.ShareAmount != nil {
		clone.ShareAmount = new(big.Int).Set(p.ShareAmount)
	}
	if p.AmountPaid != nil {
		clone.AmountPaid = new(big.Int).Set(p.AmountPaid)
	}
	if p.AmountRefunded != nil {
		clone.AmountRefunded = new(big.Int).Set(p.AmountRefunded)
	}
	return clone
}

// Split captures a bill-splitting escrow: the fixed target total, the
// running collected/released balances, and the per-participant obligations.
// Splits are append-only history; they are never deleted.
type Split struct {
	ID              uint64        `json:"id"`
	Creator         [20]byte      `json:"creator"`
	Description     string        `json:"description"`
	TotalAmount     *big.Int      `json:"totalAmount"`
	AmountCollected *big.Int      `json:"amountCollected"`
	AmountReleased  *big.Int      `json:"amountReleased"`
	Participants    []Participant `json:"participants"`
	Status          Status        `json:"status"`
	CreatedAt       int64         `json:"createdAt"`
	// Deadline is a unix timestamp after which the split no longer accepts
	// deposits and may be expired by anyone. Zero means no deadline.
	Deadline int64 `json:"deadline,omitempty"`
}

// Clone returns a deep copy of the split so callers can safely mutate the copy
// without affecting the stored instance.
func (s *Split) Clone() *Split {
	if s == nil {
		return nil
	}
	clone := *s
	clone.TotalAmount = cloneOrZero(s.TotalAmount)
	clone.AmountCollected = cloneOrZero(s.AmountCollected)
	clone.AmountReleased = cloneOrZero(s.AmountReleased)
	clone.Participants = make([]Participant, len(s.Participants))
	for i := range s.Participants {
		clone.Participants[i] = s.Participants[i].Clone()
	}
	return &clone
}

// FullyFunded reports whether the collected balance has reached the target
// total.
func (s *Split) FullyFunded() bool {
	if s == nil || s.TotalAmount == nil || s.AmountCollected == nil {
		return false
	}
	return s.AmountCollected.Cmp(s.TotalAmount) >= 0
}

// Expired reports whether the split carries a deadline that has elapsed.
func (s *Split) Expired(now int64) bool {
	return s != nil && s.Deadline > 0 && now >= s.Deadline
}

// Available returns the collected-but-undistributed balance.
func (s *Split) Available() *big.Int {
	collected := cloneOrZero(s.AmountCollected)
	if s.AmountReleased != nil {
		collected.Sub(collected, s.AmountReleased)
	}
	return collected
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// Sanitize validates the split's invariants and returns a cloned instance
// with non-nil amount fields. The function does not mutate the original value.
func Sanitize(s *Split) (*Split, error) {
	if s == nil {
		return nil, fmt.Errorf("nil split")
	}
	clone := s.Clone()
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid split status: %d", clone.Status)
	}
	if clone.TotalAmount.Sign() <= 0 {
		return nil, fmt.Errorf("split total must be positive")
	}
	if len(clone.Participants) == 0 {
		return nil, fmt.Errorf("split requires at least one participant")
	}
	sharesSum := big.NewInt(0)
	paidSum := big.NewInt(0)
	refundedSum := big.NewInt(0)
	for i := range clone.Participants {
		p := &clone.Participants[i]
		if p.ShareAmount.Sign() <= 0 {
			return nil, fmt.Errorf("participant share must be positive")
		}
		if p.AmountPaid.Sign() < 0 || p.AmountPaid.Cmp(p.ShareAmount) > 0 {
			return nil, fmt.Errorf("participant paid amount out of range")
		}
		if p.AmountRefunded.Sign() < 0 || p.AmountRefunded.Cmp(p.AmountPaid) > 0 {
			return nil, fmt.Errorf("participant refunded amount out of range")
		}
		sharesSum.Add(sharesSum, p.ShareAmount)
		paidSum.Add(paidSum, p.AmountPaid)
		refundedSum.Add(refundedSum, p.AmountRefunded)
	}
	if sharesSum.Cmp(clone.TotalAmount) != 0 {
		return nil, fmt.Errorf("participant shares must sum to the split total")
	}
	if clone.AmountCollected.Cmp(paidSum) != 0 {
		return nil, fmt.Errorf("collected balance must equal the sum of paid amounts")
	}
	if clone.AmountReleased.Sign() < 0 || clone.AmountReleased.Cmp(clone.AmountCollected) > 0 {
		return nil, fmt.Errorf("released balance out of range")
	}
	if new(big.Int).Add(clone.AmountReleased, refundedSum).Cmp(clone.AmountCollected) > 0 {
		return nil, fmt.Errorf("released and refunded balances exceed the collected balance")
	}
	if clone.AmountCollected.Cmp(clone.TotalAmount) > 0 {
		return nil, fmt.Errorf("collected balance exceeds the split total")
	}
	return clone, nil
}
