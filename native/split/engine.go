package split

import (
	"math/big"
	"time"

	"splitledger/core/events"
	"splitledger/core/types"
	"splitledger/native/common"
)

type engineState interface {
	SplitPut(*Split) error
	SplitGet(id uint64) (*Split, bool, error)
	NextSplitID() (uint64, error)
	VaultAddress() ([20]byte, error)
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
}

type splitEvent struct {
	evt *types.Event
}

func (e splitEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e splitEvent) Event() *types.Event { return e.evt }

// ShareInput names one participant's fixed obligation at creation time.
type ShareInput struct {
	Address [20]byte
	Amount  *big.Int
}

// Engine wires the escrow ledger's business logic with external state and
// event emitters. The host serializes all calls, so the engine performs each
// operation as one uninterrupted read-modify-write cycle and takes no locks of
// its own.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates a split engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(splitEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) loadSplit(id uint64) (*Split, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	sp, ok, err := e.state.SplitGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSplitNotFound
	}
	return sp, nil
}

func (e *Engine) storeSplit(sp *Split) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	return e.state.SplitPut(sp)
}

// transferValue moves funds between two ledger accounts. Transfers either
// fully succeed or leave both accounts untouched.
func (e *Engine) transferValue(from, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	amt := cloneOrZero(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return ErrInvalidAmount
	}
	fromAcc, err := e.state.GetAccount(from)
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to)
	if err != nil {
		return err
	}
	fromAcc = fromAcc.Normalize()
	toAcc = toAcc.Normalize()
	if fromAcc.Balance.Cmp(amt) < 0 {
		return ErrInsufficientBalance
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := e.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to, toAcc)
}

// Create initialises and persists a new split. The supplied shares must sum
// exactly to the total amount; there is no rounding tolerance. A zero deadline
// means the split never expires.
func (e *Engine) Create(creator [20]byte, description string, total *big.Int, shares []ShareInput, deadline int64) (*Split, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if len(shares) == 0 {
		return nil, ErrNoParticipants
	}
	totalAmt := cloneOrZero(total)
	if totalAmt.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	sharesSum := big.NewInt(0)
	participants := make([]Participant, 0, len(shares))
	for _, share := range shares {
		amt := cloneOrZero(share.Amount)
		if amt.Sign() <= 0 {
			return nil, ErrInvalidShares
		}
		sharesSum.Add(sharesSum, amt)
		participants = append(participants, Participant{
			Address:        share.Address,
			ShareAmount:    amt,
			AmountPaid:     big.NewInt(0),
			AmountRefunded: big.NewInt(0),
		})
	}
	if sharesSum.Cmp(totalAmt) != 0 {
		return nil, ErrInvalidShares
	}
	id, err := e.state.NextSplitID()
	if err != nil {
		return nil, err
	}
	sp := &Split{
		ID:              id,
		Creator:         creator,
		Description:     description,
		TotalAmount:     totalAmt,
		AmountCollected: big.NewInt(0),
		AmountReleased:  big.NewInt(0),
		Participants:    participants,
		Status:          StatusPending,
		CreatedAt:       e.now(),
		Deadline:        deadline,
	}
	if err := e.storeSplit(sp); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(sp))
	return sp.Clone(), nil
}

// Deposit settles part of a participant's share. The value transfer into the
// escrow vault must succeed before any ledger state is persisted. When the
// deposit completes the split's funding, the full release runs inline as a
// continuation of the same call.
func (e *Engine) Deposit(id uint64, participant [20]byte, amount *big.Int) error {
	sp, err := e.loadSplit(id)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if sp.Status != StatusPending && sp.Status != StatusActive {
		return ErrNotAcceptingDeposits
	}
	if sp.Expired(e.now()) {
		return ErrSplitExpired
	}
	idx := -1
	for i := range sp.Participants {
		if sp.Participants[i].Address == participant {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrParticipantNotFound
	}
	p := &sp.Participants[idx]
	if amount.Cmp(p.Remaining()) > 0 {
		return ErrDepositExceedsShare
	}
	vault, err := e.state.VaultAddress()
	if err != nil {
		return err
	}
	if err := e.transferValue(participant, vault, amount); err != nil {
		return err
	}
	p.AmountPaid = new(big.Int).Add(p.AmountPaid, amount)
	p.HasPaid = p.AmountPaid.Cmp(p.ShareAmount) >= 0
	sp.AmountCollected = new(big.Int).Add(sp.AmountCollected, amount)
	if sp.Status == StatusPending {
		sp.Status = StatusActive
	}
	if err := e.storeSplit(sp); err != nil {
		return err
	}
	e.emit(NewDepositReceivedEvent(sp, participant, amount))
	if sp.FullyFunded() {
		return e.release(sp)
	}
	return nil
}

// ReleaseFunds transfers the collected-but-undistributed balance to the
// creator and closes the split. Calling it twice fails cleanly rather than
// double-transferring.
func (e *Engine) ReleaseFunds(id uint64) error {
	sp, err := e.loadSplit(id)
	if err != nil {
		return err
	}
	return e.release(sp)
}

func (e *Engine) release(sp *Split) error {
	switch sp.Status {
	case StatusReleased:
		return ErrSplitReleased
	case StatusCancelled:
		return ErrSplitCancelled
	}
	available := sp.Available()
	vault, err := e.state.VaultAddress()
	if err != nil {
		return err
	}
	if err := e.transferValue(vault, sp.Creator, available); err != nil {
		return err
	}
	sp.AmountReleased = new(big.Int).Set(sp.AmountCollected)
	sp.Status = StatusReleased
	if err := e.storeSplit(sp); err != nil {
		return err
	}
	e.emit(NewCompletedEvent(sp))
	e.emit(NewFundsReleasedEvent(sp, available, e.now()))
	return nil
}

// ReleasePartial transfers the funds collected so far to the creator without
// closing the split. Fully funded splits must route through the full release
// so the completion transition is never masked.
func (e *Engine) ReleasePartial(id uint64) (*big.Int, error) {
	sp, err := e.loadSplit(id)
	if err != nil {
		return nil, err
	}
	switch sp.Status {
	case StatusCancelled:
		return nil, ErrSplitCancelled
	case StatusReleased:
		return nil, ErrSplitReleased
	}
	if sp.FullyFunded() {
		return nil, ErrSplitFullyFunded
	}
	available := sp.Available()
	if available.Sign() <= 0 {
		return nil, ErrNoFundsAvailable
	}
	vault, err := e.state.VaultAddress()
	if err != nil {
		return nil, err
	}
	if err := e.transferValue(vault, sp.Creator, available); err != nil {
		return nil, err
	}
	sp.AmountReleased = new(big.Int).Add(sp.AmountReleased, available)
	if err := e.storeSplit(sp); err != nil {
		return nil, err
	}
	e.emit(NewFundsReleasedEvent(sp, available, e.now()))
	return available, nil
}

// Cancel marks the split cancelled. Only the creator may cancel, and a fully
// released split cannot be unwound. Cancellation does not itself move funds
// back to participants; Refund is the separate disbursement leg.
func (e *Engine) Cancel(id uint64, caller [20]byte) error {
	sp, err := e.loadSplit(id)
	if err != nil {
		return err
	}
	if err := common.RequirePrincipal(caller, sp.Creator); err != nil {
		return err
	}
	switch sp.Status {
	case StatusReleased:
		return ErrSplitReleased
	case StatusCancelled:
		return nil
	}
	sp.Status = StatusCancelled
	if err := e.storeSplit(sp); err != nil {
		return err
	}
	e.emit(NewCancelledEvent(sp))
	return nil
}

// Refund returns participants' collected-but-unrefunded balances from the
// vault after cancellation. The disbursement is capped at the split's own
// remaining custody (collected minus released minus prior refunds), so value
// already paid out to the creator is never disbursed a second time and one
// split can never draw on funds escrowed for another. The operation is
// idempotent per participant and either completes for every due participant
// or fails with no state change.
func (e *Engine) Refund(id uint64, caller [20]byte) (*big.Int, error) {
	sp, err := e.loadSplit(id)
	if err != nil {
		return nil, err
	}
	if err := common.RequirePrincipal(caller, sp.Creator); err != nil {
		return nil, err
	}
	if sp.Status != StatusCancelled {
		return nil, ErrSplitNotCancelled
	}
	custody := sp.Available()
	for i := range sp.Participants {
		if prior := sp.Participants[i].AmountRefunded; prior != nil {
			custody.Sub(custody, prior)
		}
	}
	// Walk participants in creation order, paying each their outstanding
	// balance until the split's custody is exhausted.
	dues := make([]*big.Int, len(sp.Participants))
	totalDue := big.NewInt(0)
	for i := range sp.Participants {
		p := &sp.Participants[i]
		due := new(big.Int).Sub(p.AmountPaid, p.AmountRefunded)
		if due.Sign() <= 0 {
			continue
		}
		if remaining := new(big.Int).Sub(custody, totalDue); due.Cmp(remaining) > 0 {
			due = remaining
		}
		if due.Sign() <= 0 {
			break
		}
		dues[i] = due
		totalDue.Add(totalDue, due)
	}
	if totalDue.Sign() == 0 {
		return big.NewInt(0), nil
	}
	vault, err := e.state.VaultAddress()
	if err != nil {
		return nil, err
	}
	vaultAcc, err := e.state.GetAccount(vault)
	if err != nil {
		return nil, err
	}
	if vaultAcc.Normalize().Balance.Cmp(totalDue) < 0 {
		return nil, ErrInsufficientBalance
	}
	refunded := big.NewInt(0)
	for i := range sp.Participants {
		due := dues[i]
		if due == nil {
			continue
		}
		p := &sp.Participants[i]
		if err := e.transferValue(vault, p.Address, due); err != nil {
			return nil, err
		}
		p.AmountRefunded = new(big.Int).Add(p.AmountRefunded, due)
		refunded.Add(refunded, due)
		e.emit(NewRefundedEvent(sp, p.Address, due))
	}
	if err := e.storeSplit(sp); err != nil {
		return nil, err
	}
	return refunded, nil
}

// Expire cancels a split whose deadline has elapsed. Anyone may invoke the
// transition; splits already in a terminal state are left untouched.
func (e *Engine) Expire(id uint64) error {
	sp, err := e.loadSplit(id)
	if err != nil {
		return err
	}
	if sp.Status.Terminal() {
		return nil
	}
	if sp.Deadline == 0 || e.now() < sp.Deadline {
		return ErrDeadlineNotReached
	}
	sp.Status = StatusCancelled
	if err := e.storeSplit(sp); err != nil {
		return err
	}
	e.emit(NewExpiredEvent(sp))
	return nil
}

// IsFullyFunded reports whether the split's collected balance has reached the
// target total.
func (e *Engine) IsFullyFunded(id uint64) (bool, error) {
	sp, err := e.loadSplit(id)
	if err != nil {
		return false, err
	}
	return sp.FullyFunded(), nil
}

// Get returns the split record for the given id.
func (e *Engine) Get(id uint64) (*Split, error) {
	sp, err := e.loadSplit(id)
	if err != nil {
		return nil, err
	}
	return sp.Clone(), nil
}
