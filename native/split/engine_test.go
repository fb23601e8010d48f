package split

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"splitledger/core/events"
	"splitledger/core/types"
	"splitledger/native/common"
)

var vaultAddr = [20]byte{0xAA}

type memState struct {
	splits   map[uint64]*Split
	accounts map[[20]byte]*types.Account
	nextID   uint64
}

func newMemState() *memState {
	return &memState{
		splits:   make(map[uint64]*Split),
		accounts: make(map[[20]byte]*types.Account),
	}
}

func (m *memState) SplitPut(sp *Split) error {
	m.splits[sp.ID] = sp.Clone()
	return nil
}

func (m *memState) SplitGet(id uint64) (*Split, bool, error) {
	sp, ok := m.splits[id]
	if !ok {
		return nil, false, nil
	}
	return sp.Clone(), true, nil
}

func (m *memState) NextSplitID() (uint64, error) {
	m.nextID++
	return m.nextID, nil
}

func (m *memState) VaultAddress() ([20]byte, error) { return vaultAddr, nil }

func (m *memState) GetAccount(addr [20]byte) (*types.Account, error) {
	if acc, ok := m.accounts[addr]; ok {
		return acc.Clone(), nil
	}
	return &types.Account{Balance: big.NewInt(0)}, nil
}

func (m *memState) PutAccount(addr [20]byte, account *types.Account) error {
	m.accounts[addr] = account.Clone()
	return nil
}

func (m *memState) fund(addr [20]byte, amount int64) {
	m.accounts[addr] = &types.Account{Balance: big.NewInt(amount)}
}

func (m *memState) balance(addr [20]byte) *big.Int {
	if acc, ok := m.accounts[addr]; ok {
		return new(big.Int).Set(acc.Balance)
	}
	return big.NewInt(0)
}

type recordingEmitter struct {
	events []*types.Event
}

func (r *recordingEmitter) Emit(evt events.Event) {
	type payloadEvent interface{ Event() *types.Event }
	if p, ok := evt.(payloadEvent); ok {
		r.events = append(r.events, p.Event())
	}
}

func (r *recordingEmitter) types() []string {
	out := make([]string, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Type)
	}
	return out
}

func newTestEngine(t *testing.T) (*Engine, *memState, *recordingEmitter) {
	t.Helper()
	state := newMemState()
	emitter := &recordingEmitter{}
	engine := NewEngine()
	engine.SetState(state)
	engine.SetEmitter(emitter)
	engine.SetNowFunc(func() int64 { return 1_000 })
	return engine, state, emitter
}

func addr(b byte) [20]byte {
	var out [20]byte
	out[0] = b
	return out
}

func TestCreateValidatesShares(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	creator := addr(0x01)

	_, err := engine.Create(creator, "dinner", big.NewInt(100), nil, 0)
	require.ErrorIs(t, err, ErrNoParticipants)

	_, err = engine.Create(creator, "dinner", big.NewInt(100), []ShareInput{
		{Address: addr(0x02), Amount: big.NewInt(60)},
		{Address: addr(0x03), Amount: big.NewInt(50)},
	}, 0)
	require.ErrorIs(t, err, ErrInvalidShares)

	_, err = engine.Create(creator, "dinner", big.NewInt(100), []ShareInput{
		{Address: addr(0x02), Amount: big.NewInt(100)},
		{Address: addr(0x03), Amount: big.NewInt(0)},
	}, 0)
	require.ErrorIs(t, err, ErrInvalidShares)

	_, err = engine.Create(creator, "dinner", big.NewInt(0), []ShareInput{
		{Address: addr(0x02), Amount: big.NewInt(0)},
	}, 0)
	require.ErrorIs(t, err, ErrInvalidAmount)

	sp, err := engine.Create(creator, "dinner", big.NewInt(100), []ShareInput{
		{Address: addr(0x02), Amount: big.NewInt(60)},
		{Address: addr(0x03), Amount: big.NewInt(40)},
	}, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(1), sp.ID)
	require.Equal(t, StatusPending, sp.Status)
	require.Equal(t, int64(1_000), sp.CreatedAt)
}

func TestDepositMovesFundsAndActivates(t *testing.T) {
	engine, state, emitter := newTestEngine(t)
	creator := addr(0x01)
	alice := addr(0x02)
	state.fund(alice, 500)

	sp, err := engine.Create(creator, "trip", big.NewInt(100), []ShareInput{
		{Address: alice, Amount: big.NewInt(60)},
		{Address: addr(0x03), Amount: big.NewInt(40)},
	}, 0)
	require.NoError(t, err)

	require.NoError(t, engine.Deposit(sp.ID, alice, big.NewInt(25)))

	got, err := engine.Get(sp.ID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, got.Status)
	require.Equal(t, big.NewInt(25), got.AmountCollected)
	require.False(t, got.Participants[0].HasPaid)
	require.Equal(t, big.NewInt(475), state.balance(alice))
	require.Equal(t, big.NewInt(25), state.balance(vaultAddr))
	require.Contains(t, emitter.types(), EventTypeDepositReceive)
}

func TestDepositRejectsOverpayWithoutStateChange(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	alice := addr(0x02)
	state.fund(alice, 500)

	sp, err := engine.Create(addr(0x01), "trip", big.NewInt(100), []ShareInput{
		{Address: alice, Amount: big.NewInt(60)},
		{Address: addr(0x03), Amount: big.NewInt(40)},
	}, 0)
	require.NoError(t, err)

	require.ErrorIs(t, engine.Deposit(sp.ID, alice, big.NewInt(61)), ErrDepositExceedsShare)

	got, err := engine.Get(sp.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	require.Equal(t, big.NewInt(0), got.AmountCollected)
	require.Equal(t, big.NewInt(500), state.balance(alice))
}

func TestDepositRejectsUnknownParticipantAndBadAmount(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	alice := addr(0x02)
	state.fund(alice, 500)

	sp, err := engine.Create(addr(0x01), "trip", big.NewInt(100), []ShareInput{
		{Address: alice, Amount: big.NewInt(100)},
	}, 0)
	require.NoError(t, err)

	require.ErrorIs(t, engine.Deposit(sp.ID, addr(0x09), big.NewInt(10)), ErrParticipantNotFound)
	require.ErrorIs(t, engine.Deposit(sp.ID, alice, big.NewInt(0)), ErrInvalidAmount)
	require.ErrorIs(t, engine.Deposit(sp.ID+5, alice, big.NewInt(10)), ErrSplitNotFound)
}

func TestDepositInsufficientBalanceLeavesSplitUntouched(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	alice := addr(0x02)
	state.fund(alice, 10)

	sp, err := engine.Create(addr(0x01), "trip", big.NewInt(100), []ShareInput{
		{Address: alice, Amount: big.NewInt(100)},
	}, 0)
	require.NoError(t, err)

	require.ErrorIs(t, engine.Deposit(sp.ID, alice, big.NewInt(50)), ErrInsufficientBalance)

	got, err := engine.Get(sp.ID)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(0), got.AmountCollected)
	require.Equal(t, big.NewInt(10), state.balance(alice))
}

func TestFinalDepositTriggersInlineRelease(t *testing.T) {
	engine, state, emitter := newTestEngine(t)
	creator := addr(0x01)
	alice := addr(0x02)
	bob := addr(0x03)
	state.fund(alice, 100)
	state.fund(bob, 100)

	sp, err := engine.Create(creator, "trip", big.NewInt(100), []ShareInput{
		{Address: alice, Amount: big.NewInt(60)},
		{Address: bob, Amount: big.NewInt(40)},
	}, 0)
	require.NoError(t, err)

	require.NoError(t, engine.Deposit(sp.ID, alice, big.NewInt(60)))
	require.NoError(t, engine.Deposit(sp.ID, bob, big.NewInt(40)))

	got, err := engine.Get(sp.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReleased, got.Status)
	require.Equal(t, big.NewInt(100), got.AmountReleased)
	require.Equal(t, big.NewInt(100), state.balance(creator))
	require.Equal(t, big.NewInt(0), state.balance(vaultAddr))
	require.Contains(t, emitter.types(), EventTypeSplitCompleted)
	require.Contains(t, emitter.types(), EventTypeFundsReleased)
}

func TestReleaseFundsTwiceFails(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	alice := addr(0x02)
	state.fund(alice, 100)

	sp, err := engine.Create(addr(0x01), "trip", big.NewInt(100), []ShareInput{
		{Address: alice, Amount: big.NewInt(100)},
	}, 0)
	require.NoError(t, err)
	require.NoError(t, engine.Deposit(sp.ID, alice, big.NewInt(100)))

	require.ErrorIs(t, engine.ReleaseFunds(sp.ID), ErrSplitReleased)
}

func TestReleasePartialThenFull(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	creator := addr(0x01)
	alice := addr(0x02)
	bob := addr(0x03)
	state.fund(alice, 100)
	state.fund(bob, 100)

	sp, err := engine.Create(creator, "trip", big.NewInt(100), []ShareInput{
		{Address: alice, Amount: big.NewInt(60)},
		{Address: bob, Amount: big.NewInt(40)},
	}, 0)
	require.NoError(t, err)
	require.NoError(t, engine.Deposit(sp.ID, alice, big.NewInt(60)))

	released, err := engine.ReleasePartial(sp.ID)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(60), released)
	require.Equal(t, big.NewInt(60), state.balance(creator))

	got, err := engine.Get(sp.ID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, got.Status)
	require.Equal(t, big.NewInt(60), got.AmountReleased)

	_, err = engine.ReleasePartial(sp.ID)
	require.ErrorIs(t, err, ErrNoFundsAvailable)

	// The last deposit completes funding and releases only the remainder.
	require.NoError(t, engine.Deposit(sp.ID, bob, big.NewInt(40)))
	got, err = engine.Get(sp.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReleased, got.Status)
	require.Equal(t, big.NewInt(100), got.AmountReleased)
	require.Equal(t, big.NewInt(100), state.balance(creator))
}

func TestReleasePartialRejectsFullyFunded(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	alice := addr(0x02)
	state.fund(alice, 100)

	sp, err := engine.Create(addr(0x01), "trip", big.NewInt(100), []ShareInput{
		{Address: alice, Amount: big.NewInt(100)},
	}, 0)
	require.NoError(t, err)

	// Bypass the inline release to exercise the fully-funded guard directly.
	stored := state.splits[sp.ID]
	stored.AmountCollected = big.NewInt(100)
	stored.Participants[0].AmountPaid = big.NewInt(100)
	stored.Participants[0].HasPaid = true
	stored.Status = StatusActive

	_, err = engine.ReleasePartial(sp.ID)
	require.ErrorIs(t, err, ErrSplitFullyFunded)
}

func TestCancelOnlyCreatorAndIdempotent(t *testing.T) {
	engine, _, emitter := newTestEngine(t)
	creator := addr(0x01)

	sp, err := engine.Create(creator, "trip", big.NewInt(100), []ShareInput{
		{Address: addr(0x02), Amount: big.NewInt(100)},
	}, 0)
	require.NoError(t, err)

	require.ErrorIs(t, engine.Cancel(sp.ID, addr(0x09)), common.ErrUnauthorized)
	require.NoError(t, engine.Cancel(sp.ID, creator))

	got, err := engine.Get(sp.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)

	before := len(emitter.events)
	require.NoError(t, engine.Cancel(sp.ID, creator))
	require.Len(t, emitter.events, before, "repeat cancel must not emit")
}

func TestCancelReleasedSplitFails(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	creator := addr(0x01)
	alice := addr(0x02)
	state.fund(alice, 100)

	sp, err := engine.Create(creator, "trip", big.NewInt(100), []ShareInput{
		{Address: alice, Amount: big.NewInt(100)},
	}, 0)
	require.NoError(t, err)
	require.NoError(t, engine.Deposit(sp.ID, alice, big.NewInt(100)))

	require.ErrorIs(t, engine.Cancel(sp.ID, creator), ErrSplitReleased)
}

func TestRefundReturnsCollectedFunds(t *testing.T) {
	engine, state, emitter := newTestEngine(t)
	creator := addr(0x01)
	alice := addr(0x02)
	bob := addr(0x03)
	state.fund(alice, 100)
	state.fund(bob, 100)

	sp, err := engine.Create(creator, "trip", big.NewInt(100), []ShareInput{
		{Address: alice, Amount: big.NewInt(60)},
		{Address: bob, Amount: big.NewInt(40)},
	}, 0)
	require.NoError(t, err)
	require.NoError(t, engine.Deposit(sp.ID, alice, big.NewInt(60)))
	require.NoError(t, engine.Deposit(sp.ID, bob, big.NewInt(10)))

	_, err = engine.Refund(sp.ID, creator)
	require.ErrorIs(t, err, ErrSplitNotCancelled)

	require.NoError(t, engine.Cancel(sp.ID, creator))

	_, err = engine.Refund(sp.ID, addr(0x09))
	require.ErrorIs(t, err, common.ErrUnauthorized)

	refunded, err := engine.Refund(sp.ID, creator)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(70), refunded)
	require.Equal(t, big.NewInt(100), state.balance(alice))
	require.Equal(t, big.NewInt(100), state.balance(bob))
	require.Equal(t, big.NewInt(0), state.balance(vaultAddr))
	require.Contains(t, emitter.types(), EventTypeSplitRefunded)

	// Second refund finds nothing due and succeeds with zero.
	refunded, err = engine.Refund(sp.ID, creator)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(0), refunded)
}

func TestRefundCappedByRemainingCustody(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	creator := addr(0x01)
	alice := addr(0x02)
	bob := addr(0x03)
	state.fund(alice, 100)
	state.fund(bob, 100)

	sp, err := engine.Create(creator, "trip", big.NewInt(100), []ShareInput{
		{Address: alice, Amount: big.NewInt(60)},
		{Address: bob, Amount: big.NewInt(40)},
	}, 0)
	require.NoError(t, err)
	require.NoError(t, engine.Deposit(sp.ID, alice, big.NewInt(60)))

	released, err := engine.ReleasePartial(sp.ID)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(60), released)

	require.NoError(t, engine.Deposit(sp.ID, bob, big.NewInt(30)))
	require.NoError(t, engine.Cancel(sp.ID, creator))

	// Collected 90, released 60: only 30 remains in custody, so the refund
	// pays alice 30 and leaves nothing for bob.
	refunded, err := engine.Refund(sp.ID, creator)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(30), refunded)
	require.Equal(t, big.NewInt(70), state.balance(alice))
	require.Equal(t, big.NewInt(70), state.balance(bob))
	require.Equal(t, big.NewInt(0), state.balance(vaultAddr))

	got, err := engine.Get(sp.ID)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(30), got.Participants[0].AmountRefunded)
	require.Equal(t, big.NewInt(0), got.Participants[1].AmountRefunded)

	// Nothing further to disburse.
	refunded, err = engine.Refund(sp.ID, creator)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(0), refunded)
}

func TestRefundNeverDrawsOnOtherSplitsCustody(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	creator := addr(0x01)
	alice := addr(0x02)
	bob := addr(0x03)
	state.fund(alice, 100)
	state.fund(bob, 100)

	drained, err := engine.Create(creator, "drained", big.NewInt(100), []ShareInput{
		{Address: alice, Amount: big.NewInt(60)},
		{Address: addr(0x04), Amount: big.NewInt(40)},
	}, 0)
	require.NoError(t, err)
	require.NoError(t, engine.Deposit(drained.ID, alice, big.NewInt(60)))
	_, err = engine.ReleasePartial(drained.ID)
	require.NoError(t, err)
	require.NoError(t, engine.Cancel(drained.ID, creator))

	victim, err := engine.Create(creator, "victim", big.NewInt(100), []ShareInput{
		{Address: bob, Amount: big.NewInt(80)},
		{Address: addr(0x05), Amount: big.NewInt(20)},
	}, 0)
	require.NoError(t, err)
	require.NoError(t, engine.Deposit(victim.ID, bob, big.NewInt(80)))
	require.Equal(t, big.NewInt(80), state.balance(vaultAddr))

	// The partial release already consumed the first split's custody, so its
	// refund disburses nothing and the vault keeps the second split's funds.
	refunded, err := engine.Refund(drained.ID, creator)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(0), refunded)
	require.Equal(t, big.NewInt(40), state.balance(alice))
	require.Equal(t, big.NewInt(80), state.balance(vaultAddr))
}

func TestExpire(t *testing.T) {
	engine, _, emitter := newTestEngine(t)
	creator := addr(0x01)

	evergreen, err := engine.Create(creator, "open ended", big.NewInt(10), []ShareInput{
		{Address: addr(0x02), Amount: big.NewInt(10)},
	}, 0)
	require.NoError(t, err)
	engine.SetNowFunc(func() int64 { return 9_999_999 })
	require.ErrorIs(t, engine.Expire(evergreen.ID), ErrDeadlineNotReached)
	engine.SetNowFunc(func() int64 { return 1_000 })

	sp, err := engine.Create(creator, "deadline", big.NewInt(10), []ShareInput{
		{Address: addr(0x02), Amount: big.NewInt(10)},
	}, 2_000)
	require.NoError(t, err)

	engine.SetNowFunc(func() int64 { return 1_500 })
	require.ErrorIs(t, engine.Expire(sp.ID), ErrDeadlineNotReached)
	engine.SetNowFunc(func() int64 { return 2_000 })
	require.NoError(t, engine.Expire(sp.ID))

	got, err := engine.Get(sp.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)
	require.Contains(t, emitter.types(), EventTypeSplitExpired)

	// Terminal splits are left untouched.
	engine.SetNowFunc(func() int64 { return 3_000 })
	require.NoError(t, engine.Expire(sp.ID))
}

func TestDepositRejectedAfterDeadline(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	alice := addr(0x02)
	state.fund(alice, 100)

	sp, err := engine.Create(addr(0x01), "deadline", big.NewInt(100), []ShareInput{
		{Address: alice, Amount: big.NewInt(100)},
	}, 2_000)
	require.NoError(t, err)

	engine.SetNowFunc(func() int64 { return 2_500 })
	require.ErrorIs(t, engine.Deposit(sp.ID, alice, big.NewInt(10)), ErrSplitExpired)
}

func TestIsFullyFunded(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	alice := addr(0x02)
	state.fund(alice, 100)

	sp, err := engine.Create(addr(0x01), "trip", big.NewInt(100), []ShareInput{
		{Address: alice, Amount: big.NewInt(100)},
	}, 0)
	require.NoError(t, err)

	funded, err := engine.IsFullyFunded(sp.ID)
	require.NoError(t, err)
	require.False(t, funded)

	require.NoError(t, engine.Deposit(sp.ID, alice, big.NewInt(100)))

	funded, err = engine.IsFullyFunded(sp.ID)
	require.NoError(t, err)
	require.True(t, funded)

	_, err = engine.IsFullyFunded(999)
	require.ErrorIs(t, err, ErrSplitNotFound)
}
