package rewards

import (
	"math/big"
	"time"

	"splitledger/core/events"
	"splitledger/core/types"
)

// Reward formula weights: flat points per split created and participated, plus
// a volume component of one point per thousand units transacted (truncating).
const (
	pointsPerSplitCreated      = 10
	pointsPerSplitParticipated = 5
	volumeDivisor              = 1000
)

type engineState interface {
	RewardsGet(user [20]byte) (*UserRewards, bool, error)
	RewardsPut(*UserRewards) error
	NextActivityID() (uint64, error)
	ActivityPut(id uint64, activity *UserActivity) error
	RewardsPoolAddress() ([20]byte, error)
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
}

type rewardsEvent struct {
	evt *types.Event
}

func (e rewardsEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e rewardsEvent) Event() *types.Event { return e.evt }

// Engine accrues per-user incentive counters as a side effect of escrow
// activity and settles claims from a configured rewards pool. Accrual is a
// best-effort incentive layer, not a financial guarantee, so it is driven by
// explicit tracking calls rather than derived from every deposit.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates a rewards engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetNowFunc overrides the time source used by the engine.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine.
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
	e.emitter.Emit(rewardsEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// loadOrCreate returns the user's rewards record, lazily creating a fresh one
// when the user has no history yet.
func (e *Engine) loadOrCreate(user [20]byte) (*UserRewards, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	record, ok, err := e.state.RewardsGet(user)
	if err != nil {
		return nil, err
	}
	if !ok {
		record = &UserRewards{
			User:                  user,
			TotalAmountTransacted: big.NewInt(0),
			RewardsEarned:         big.NewInt(0),
			RewardsClaimed:        big.NewInt(0),
			LastActivity:          e.now(),
			Status:                StatusActive,
		}
	}
	return record.Normalize(), nil
}

func (e *Engine) track(user [20]byte, kind ActivityKind, splitID uint64, amount *big.Int) error {
	if amount != nil && amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	record, err := e.loadOrCreate(user)
	if err != nil {
		return err
	}
	activityID, err := e.state.NextActivityID()
	if err != nil {
		return err
	}
	activity := &UserActivity{
		User:      user,
		Kind:      kind,
		SplitID:   splitID,
		Amount:    cloneOrZero(amount),
		Timestamp: e.now(),
	}
	if err := e.state.ActivityPut(activityID, activity); err != nil {
		return err
	}
	switch kind {
	case ActivitySplitCreated:
		record.TotalSplitsCreated++
	case ActivitySplitParticipated:
		record.TotalSplitsParticipated++
	}
	record.TotalAmountTransacted = new(big.Int).Add(record.TotalAmountTransacted, activity.Amount)
	record.LastActivity = activity.Timestamp
	if err := e.state.RewardsPut(record); err != nil {
		return err
	}
	e.emit(NewActivityTrackedEvent(activity, activityID))
	return nil
}

// TrackSplitUsage records a split participation for the user, creating the
// rewards record on first activity.
func (e *Engine) TrackSplitUsage(user [20]byte, splitID uint64, amount *big.Int) error {
	return e.track(user, ActivitySplitParticipated, splitID, amount)
}

// TrackSplitCreated records a split creation for the user.
func (e *Engine) TrackSplitCreated(user [20]byte, splitID uint64) error {
	return e.track(user, ActivitySplitCreated, splitID, nil)
}

// Calculate recomputes the user's earned rewards from their counters,
// persists the result, and returns the new total. The volume component uses
// truncating integer division.
func (e *Engine) Calculate(user [20]byte) (*big.Int, error) {
	record, err := e.loadOrCreate(user)
	if err != nil {
		return nil, err
	}
	earned := new(big.Int).SetUint64(record.TotalSplitsCreated)
	earned.Mul(earned, big.NewInt(pointsPerSplitCreated))
	participation := new(big.Int).SetUint64(record.TotalSplitsParticipated)
	participation.Mul(participation, big.NewInt(pointsPerSplitParticipated))
	earned.Add(earned, participation)
	volume := new(big.Int).Div(record.TotalAmountTransacted, big.NewInt(volumeDivisor))
	earned.Add(earned, volume)

	record.RewardsEarned = earned
	if err := e.state.RewardsPut(record); err != nil {
		return nil, err
	}
	e.emit(NewCalculatedEvent(user, earned, record.Available()))
	return new(big.Int).Set(earned), nil
}

// Claim settles the user's full available balance: accounting is advanced so
// claimed equals earned, and the amount is paid out of the rewards pool. The
// whole claim fails with no state change when the pool cannot cover it.
// Partial claims are not supported.
func (e *Engine) Claim(user [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	record, ok, err := e.state.RewardsGet(user)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	record = record.Normalize()
	if record.Status != StatusActive {
		return nil, ErrNotActive
	}
	available := record.Available()
	if available.Sign() <= 0 {
		return nil, ErrInsufficientRewards
	}
	pool, err := e.state.RewardsPoolAddress()
	if err != nil {
		return nil, err
	}
	poolAcc, err := e.state.GetAccount(pool)
	if err != nil {
		return nil, err
	}
	poolAcc = poolAcc.Normalize()
	if poolAcc.Balance.Cmp(available) < 0 {
		return nil, ErrPoolExhausted
	}
	userAcc, err := e.state.GetAccount(user)
	if err != nil {
		return nil, err
	}
	userAcc = userAcc.Normalize()
	poolAcc.Balance = new(big.Int).Sub(poolAcc.Balance, available)
	userAcc.Balance = new(big.Int).Add(userAcc.Balance, available)
	if err := e.state.PutAccount(pool, poolAcc); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(user, userAcc); err != nil {
		return nil, err
	}
	record.RewardsClaimed = new(big.Int).Set(record.RewardsEarned)
	record.LastActivity = e.now()
	if err := e.state.RewardsPut(record); err != nil {
		return nil, err
	}
	e.emit(NewClaimedEvent(user, available))
	return available, nil
}

// Get returns the user's rewards record, lazily creating and persisting a
// fresh one on first query.
func (e *Engine) Get(user [20]byte) (*UserRewards, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	record, ok, err := e.state.RewardsGet(user)
	if err != nil {
		return nil, err
	}
	if !ok {
		record, err = e.loadOrCreate(user)
		if err != nil {
			return nil, err
		}
		if err := e.state.RewardsPut(record); err != nil {
			return nil, err
		}
	}
	return record.Clone(), nil
}
