package core

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"splitledger/core/state"
	"splitledger/native/split"
	"splitledger/native/verify"
	"splitledger/storage"
)

var (
	vaultAddr  = [20]byte{0xAA}
	poolAddr   = [20]byte{0xBB}
	oracleAddr = [20]byte{0xCC}
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	node := NewNode(state.NewManager(storage.NewMemDB()))
	node.SetNowFunc(func() int64 { return 1_000 })
	require.NoError(t, node.Initialize(vaultAddr, poolAddr, [][20]byte{oracleAddr}))
	return node
}

func addr(b byte) [20]byte {
	var out [20]byte
	out[0] = b
	return out
}

func TestInitializeEmitsEvent(t *testing.T) {
	node := newTestNode(t)

	events := node.EventsSince(0)
	require.Len(t, events, 1)
	require.Equal(t, EventTypeInitialized, events[0].Event.Type)
	require.Equal(t, uint64(1), events[0].Sequence)
}

func TestSplitLifecycleThroughNode(t *testing.T) {
	node := newTestNode(t)
	creator := addr(0x01)
	alice := addr(0x02)
	bob := addr(0x03)
	require.NoError(t, node.Credit(alice, big.NewInt(100)))
	require.NoError(t, node.Credit(bob, big.NewInt(100)))

	sp, err := node.SplitCreate(creator, "trip", big.NewInt(100), []split.ShareInput{
		{Address: alice, Amount: big.NewInt(60)},
		{Address: bob, Amount: big.NewInt(40)},
	}, 0)
	require.NoError(t, err)

	require.NoError(t, node.SplitDeposit(sp.ID, alice, big.NewInt(60)))

	funded, err := node.SplitIsFullyFunded(sp.ID)
	require.NoError(t, err)
	require.False(t, funded)

	require.NoError(t, node.SplitDeposit(sp.ID, bob, big.NewInt(40)))

	got, err := node.SplitGet(sp.ID)
	require.NoError(t, err)
	require.Equal(t, split.StatusReleased, got.Status)

	balance, err := node.Balance(creator)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100), balance)
}

func TestSplitExpireUsesInjectedClock(t *testing.T) {
	node := newTestNode(t)
	alice := addr(0x02)
	require.NoError(t, node.Credit(alice, big.NewInt(100)))

	sp, err := node.SplitCreate(addr(0x01), "trip", big.NewInt(100), []split.ShareInput{
		{Address: alice, Amount: big.NewInt(100)},
	}, 2_000)
	require.NoError(t, err)

	require.ErrorIs(t, node.SplitExpire(sp.ID), split.ErrDeadlineNotReached)

	node.SetNowFunc(func() int64 { return 2_000 })
	require.NoError(t, node.SplitExpire(sp.ID))

	got, err := node.SplitGet(sp.ID)
	require.NoError(t, err)
	require.Equal(t, split.StatusCancelled, got.Status)
}

func TestRewardsFlowThroughNode(t *testing.T) {
	node := newTestNode(t)
	user := addr(0x01)
	require.NoError(t, node.Credit(poolAddr, big.NewInt(1_000)))

	require.NoError(t, node.RewardsTrackCreated(user, 1))
	require.NoError(t, node.RewardsTrackUsage(user, 1, big.NewInt(2_000)))

	earned, err := node.RewardsCalculate(user)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(17), earned)

	claimed, err := node.RewardsClaim(user)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(17), claimed)

	balance, err := node.Balance(user)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(17), balance)
}

func TestVerificationFlowThroughNode(t *testing.T) {
	node := newTestNode(t)
	alice := addr(0x02)
	require.NoError(t, node.Credit(alice, big.NewInt(100)))

	sp, err := node.SplitCreate(addr(0x01), "trip", big.NewInt(100), []split.ShareInput{
		{Address: alice, Amount: big.NewInt(100)},
	}, 0)
	require.NoError(t, err)

	request, err := node.VerificationSubmit("1", alice, "receipt-hash", "")
	require.NoError(t, err)
	require.Equal(t, sp.ID, request.SplitID)

	require.NoError(t, node.VerificationAdjudicate(request.VerificationID, oracleAddr, true))

	status, err := node.VerificationStatus("1")
	require.NoError(t, err)
	require.Equal(t, verify.StatusVerified, status)
}

func TestEventsSinceCursor(t *testing.T) {
	node := newTestNode(t)
	alice := addr(0x02)
	require.NoError(t, node.Credit(alice, big.NewInt(100)))

	_, err := node.SplitCreate(addr(0x01), "trip", big.NewInt(100), []split.ShareInput{
		{Address: alice, Amount: big.NewInt(100)},
	}, 0)
	require.NoError(t, err)

	all := node.EventsSince(0)
	require.Len(t, all, 2)

	tail := node.EventsSince(1)
	require.Len(t, tail, 1)
	require.Equal(t, split.EventTypeSplitCreated, tail[0].Event.Type)

	require.Empty(t, node.EventsSince(all[len(all)-1].Sequence))
}

func TestSubscribeEventsDeliversBacklogAndLive(t *testing.T) {
	node := newTestNode(t)
	alice := addr(0x02)
	require.NoError(t, node.Credit(alice, big.NewInt(100)))

	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	ch, cancel, backlog := node.SubscribeEvents(ctx, 0)
	defer cancel()
	require.Len(t, backlog, 1, "initialization event should be replayed")

	_, err := node.SplitCreate(addr(0x01), "trip", big.NewInt(100), []split.ShareInput{
		{Address: alice, Amount: big.NewInt(100)},
	}, 0)
	require.NoError(t, err)

	evt := <-ch
	require.Equal(t, split.EventTypeSplitCreated, evt.Event.Type)
	require.Greater(t, evt.Sequence, backlog[0].Sequence)

	cancel()
	_, open := <-ch
	require.False(t, open, "cancel should close the subscription channel")
}
