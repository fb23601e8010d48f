package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"splitledger/native/rewards"
	"splitledger/native/split"
	"splitledger/native/verify"
	"splitledger/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemDB())
}

func addr(b byte) [20]byte {
	var out [20]byte
	out[0] = b
	return out
}

func TestAccountDefaultsToZeroBalance(t *testing.T) {
	m := newTestManager(t)

	acc, err := m.GetAccount(addr(0x01))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(0), acc.Balance)

	acc.Balance = big.NewInt(250)
	acc.Nonce = 3
	require.NoError(t, m.PutAccount(addr(0x01), acc))

	got, err := m.GetAccount(addr(0x01))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(250), got.Balance)
	require.Equal(t, uint64(3), got.Nonce)
}

func TestSplitRoundTrip(t *testing.T) {
	m := newTestManager(t)

	_, ok, err := m.SplitGet(1)
	require.NoError(t, err)
	require.False(t, ok)

	exists, err := m.SplitExists(1)
	require.NoError(t, err)
	require.False(t, exists)

	sp := &split.Split{
		ID:              1,
		Creator:         addr(0x01),
		Description:     "dinner",
		TotalAmount:     big.NewInt(100),
		AmountCollected: big.NewInt(40),
		AmountReleased:  big.NewInt(0),
		Status:          split.StatusActive,
		CreatedAt:       1_000,
		Participants: []split.Participant{
			{Address: addr(0x02), ShareAmount: big.NewInt(100), AmountPaid: big.NewInt(40), AmountRefunded: big.NewInt(0)},
		},
	}
	require.NoError(t, m.SplitPut(sp))

	got, ok, err := m.SplitGet(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sp.Description, got.Description)
	require.Equal(t, big.NewInt(40), got.AmountCollected)
	require.Len(t, got.Participants, 1)
	require.Equal(t, addr(0x02), got.Participants[0].Address)

	exists, err = m.SplitExists(1)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestSequencesAreMonotonic(t *testing.T) {
	m := newTestManager(t)

	first, err := m.NextSplitID()
	require.NoError(t, err)
	require.Equal(t, uint64(1), first)

	second, err := m.NextSplitID()
	require.NoError(t, err)
	require.Equal(t, uint64(2), second)

	// Counters are independent per record family.
	activityID, err := m.NextActivityID()
	require.NoError(t, err)
	require.Equal(t, uint64(1), activityID)

	verificationID, err := m.NextVerificationID()
	require.NoError(t, err)
	require.Equal(t, uint64(1), verificationID)
}

func TestConfiguredAddresses(t *testing.T) {
	m := newTestManager(t)

	_, err := m.VaultAddress()
	require.Error(t, err)
	_, err = m.RewardsPoolAddress()
	require.Error(t, err)

	require.NoError(t, m.SetVaultAddress(addr(0xAA)))
	require.NoError(t, m.SetRewardsPoolAddress(addr(0xBB)))

	vault, err := m.VaultAddress()
	require.NoError(t, err)
	require.Equal(t, addr(0xAA), vault)

	pool, err := m.RewardsPoolAddress()
	require.NoError(t, err)
	require.Equal(t, addr(0xBB), pool)
}

func TestRewardsRoundTrip(t *testing.T) {
	m := newTestManager(t)
	user := addr(0x01)

	_, ok, err := m.RewardsGet(user)
	require.NoError(t, err)
	require.False(t, ok)

	record := &rewards.UserRewards{
		User:                  user,
		TotalSplitsCreated:    2,
		TotalAmountTransacted: big.NewInt(5_000),
		RewardsEarned:         big.NewInt(25),
		RewardsClaimed:        big.NewInt(0),
		Status:                rewards.StatusActive,
	}
	require.NoError(t, m.RewardsPut(record))

	got, ok, err := m.RewardsGet(user)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(2), got.TotalSplitsCreated)
	require.Equal(t, big.NewInt(5_000), got.TotalAmountTransacted)
}

func TestActivityLogIsWriteOnce(t *testing.T) {
	m := newTestManager(t)

	activity := &rewards.UserActivity{
		User:      addr(0x01),
		Kind:      rewards.ActivitySplitCreated,
		SplitID:   1,
		Amount:    big.NewInt(0),
		Timestamp: 1_000,
	}
	require.NoError(t, m.ActivityPut(1, activity))
	require.Error(t, m.ActivityPut(1, activity), "overwriting a recorded activity must fail")

	got, ok, err := m.ActivityGet(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rewards.ActivitySplitCreated, got.Kind)
}

func TestVerificationRoundTripAndIndex(t *testing.T) {
	m := newTestManager(t)

	ids, err := m.SplitVerifications(1)
	require.NoError(t, err)
	require.Empty(t, ids)

	request := &verify.Request{
		VerificationID: 1,
		SplitID:        1,
		Requester:      addr(0x01),
		ReceiptHash:    "abcd",
		SubmittedAt:    1_000,
		Status:         verify.StatusPending,
	}
	require.NoError(t, m.VerificationPut(request))
	require.NoError(t, m.AppendSplitVerification(1, 1))
	require.NoError(t, m.AppendSplitVerification(1, 2))

	ids, err = m.SplitVerifications(1)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2}, ids)

	got, ok, err := m.VerificationGet(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "abcd", got.ReceiptHash)
}

func TestOracleSet(t *testing.T) {
	m := newTestManager(t)

	oracles, err := m.Oracles()
	require.NoError(t, err)
	require.Empty(t, oracles)

	want := [][20]byte{addr(0x0A), addr(0x0B)}
	require.NoError(t, m.SetOracles(want))

	oracles, err = m.Oracles()
	require.NoError(t, err)
	require.Equal(t, want, oracles)
}

func TestManagerPersistsAcrossInstances(t *testing.T) {
	db := storage.NewMemDB()
	first := NewManager(db)
	require.NoError(t, first.SetVaultAddress(addr(0xAA)))
	_, err := first.NextSplitID()
	require.NoError(t, err)

	second := NewManager(db)
	vault, err := second.VaultAddress()
	require.NoError(t, err)
	require.Equal(t, addr(0xAA), vault)

	id, err := second.NextSplitID()
	require.NoError(t, err)
	require.Equal(t, uint64(2), id)
}
