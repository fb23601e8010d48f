package state

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"splitledger/core/types"
	"splitledger/native/rewards"
	"splitledger/native/split"
	"splitledger/native/verify"
	"splitledger/storage"
)

var (
	accountPrefix        = []byte("account:")
	splitPrefix          = []byte("split:")
	rewardsPrefix        = []byte("rewards:")
	activityPrefix       = []byte("activity:")
	verificationPrefix   = []byte("verification:")
	splitVerifyPrefix    = []byte("split-verifications:")
	splitSeqKey          = ethcrypto.Keccak256([]byte("seq/split"))
	activitySeqKey       = ethcrypto.Keccak256([]byte("seq/activity"))
	verificationSeqKey   = ethcrypto.Keccak256([]byte("seq/verification"))
	oracleSetKey         = ethcrypto.Keccak256([]byte("config/oracles"))
	vaultAddressKey      = ethcrypto.Keccak256([]byte("config/vault"))
	rewardsPoolAddrKey   = ethcrypto.Keccak256([]byte("config/rewards-pool"))
	errVaultUnset        = errors.New("state: escrow vault address not configured")
	errRewardsPoolUnset  = errors.New("state: rewards pool address not configured")
	errValueRequiresDest = errors.New("state: decode destination required")
)

// Manager provides the composite-key read/write surface shared by the three
// engines. Every record is JSON-encoded under a keccak-hashed key of the form
// prefix||id, giving single-key read-modify-write semantics over any Database
// backend.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func addressKey(prefix []byte, addr [20]byte) []byte {
	buf := make([]byte, len(prefix)+len(addr))
	copy(buf, prefix)
	copy(buf[len(prefix):], addr[:])
	return ethcrypto.Keccak256(buf)
}

func idKey(prefix []byte, id uint64) []byte {
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], id)
	return ethcrypto.Keccak256(buf)
}

func (m *Manager) put(key []byte, value interface{}) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

// get decodes the value stored under key into out. The boolean return
// indicates whether the key existed.
func (m *Manager) get(key []byte, out interface{}) (bool, error) {
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if out == nil {
		return true, errValueRequiresDest
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// nextSequence increments and persists the named monotone counter, returning
// the new value. Counters start at one; the host's call serialization is the
// only concurrency guard they need.
func (m *Manager) nextSequence(key []byte) (uint64, error) {
	var current uint64
	if _, err := m.get(key, &current); err != nil {
		return 0, err
	}
	next := current + 1
	if err := m.put(key, next); err != nil {
		return 0, err
	}
	return next, nil
}

// --- accounts ---

// GetAccount returns the account stored for addr, or a zero-balance account
// when none exists.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	account := &types.Account{}
	ok, err := m.get(addressKey(accountPrefix, addr), account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return (&types.Account{}).Normalize(), nil
	}
	return account.Normalize(), nil
}

// PutAccount persists the account record for addr.
func (m *Manager) PutAccount(addr [20]byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	return m.put(addressKey(accountPrefix, addr), account.Normalize())
}

// --- escrow ledger ---

// SplitPut validates and persists a split record.
func (m *Manager) SplitPut(sp *split.Split) error {
	sanitized, err := split.Sanitize(sp)
	if err != nil {
		return err
	}
	return m.put(idKey(splitPrefix, sanitized.ID), sanitized)
}

// SplitGet returns the split stored under id.
func (m *Manager) SplitGet(id uint64) (*split.Split, bool, error) {
	sp := &split.Split{}
	ok, err := m.get(idKey(splitPrefix, id), sp)
	if err != nil || !ok {
		return nil, false, err
	}
	return sp, true, nil
}

// SplitExists reports whether a split record exists for id.
func (m *Manager) SplitExists(id uint64) (bool, error) {
	_, ok, err := m.SplitGet(id)
	return ok, err
}

// NextSplitID allocates the next split id.
func (m *Manager) NextSplitID() (uint64, error) {
	return m.nextSequence(splitSeqKey)
}

// VaultAddress returns the account that custodies escrowed funds.
func (m *Manager) VaultAddress() ([20]byte, error) {
	return m.configuredAddress(vaultAddressKey, errVaultUnset)
}

// SetVaultAddress configures the escrow custody account.
func (m *Manager) SetVaultAddress(addr [20]byte) error {
	return m.put(vaultAddressKey, addr[:])
}

// --- rewards ledger ---

// RewardsGet returns the rewards record stored for user.
func (m *Manager) RewardsGet(user [20]byte) (*rewards.UserRewards, bool, error) {
	record := &rewards.UserRewards{}
	ok, err := m.get(addressKey(rewardsPrefix, user), record)
	if err != nil || !ok {
		return nil, false, err
	}
	return record.Normalize(), true, nil
}

// RewardsPut persists the rewards record.
func (m *Manager) RewardsPut(record *rewards.UserRewards) error {
	if record == nil {
		return fmt.Errorf("state: nil rewards record")
	}
	return m.put(addressKey(rewardsPrefix, record.User), record.Normalize())
}

// NextActivityID allocates the next activity id.
func (m *Manager) NextActivityID() (uint64, error) {
	return m.nextSequence(activitySeqKey)
}

// ActivityPut appends an immutable activity log entry. Entries are write-once:
// overwriting an existing id is rejected.
func (m *Manager) ActivityPut(id uint64, activity *rewards.UserActivity) error {
	if activity == nil {
		return fmt.Errorf("state: nil activity")
	}
	key := idKey(activityPrefix, id)
	existing, err := m.get(key, &rewards.UserActivity{})
	if err != nil {
		return err
	}
	if existing {
		return fmt.Errorf("state: activity %d already recorded", id)
	}
	return m.put(key, activity)
}

// ActivityGet returns the activity log entry stored under id.
func (m *Manager) ActivityGet(id uint64) (*rewards.UserActivity, bool, error) {
	activity := &rewards.UserActivity{}
	ok, err := m.get(idKey(activityPrefix, id), activity)
	if err != nil || !ok {
		return nil, false, err
	}
	return activity, true, nil
}

// RewardsPoolAddress returns the account claims are paid from.
func (m *Manager) RewardsPoolAddress() ([20]byte, error) {
	return m.configuredAddress(rewardsPoolAddrKey, errRewardsPoolUnset)
}

// SetRewardsPoolAddress configures the rewards pool account.
func (m *Manager) SetRewardsPoolAddress(addr [20]byte) error {
	return m.put(rewardsPoolAddrKey, addr[:])
}

// --- verification workflow ---

// VerificationGet returns the verification request stored under id.
func (m *Manager) VerificationGet(id uint64) (*verify.Request, bool, error) {
	request := &verify.Request{}
	ok, err := m.get(idKey(verificationPrefix, id), request)
	if err != nil || !ok {
		return nil, false, err
	}
	return request, true, nil
}

// VerificationPut persists a verification request.
func (m *Manager) VerificationPut(request *verify.Request) error {
	if request == nil {
		return fmt.Errorf("state: nil verification request")
	}
	return m.put(idKey(verificationPrefix, request.VerificationID), request)
}

// NextVerificationID allocates the next verification id.
func (m *Manager) NextVerificationID() (uint64, error) {
	return m.nextSequence(verificationSeqKey)
}

// SplitVerifications returns every verification id ever recorded against the
// split, oldest first.
func (m *Manager) SplitVerifications(splitID uint64) ([]uint64, error) {
	var ids []uint64
	if _, err := m.get(idKey(splitVerifyPrefix, splitID), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// AppendSplitVerification adds a verification id to the split's history index.
// Duplicate ids are ignored to keep the index deterministic.
func (m *Manager) AppendSplitVerification(splitID, verificationID uint64) error {
	ids, err := m.SplitVerifications(splitID)
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == verificationID {
			return nil
		}
	}
	ids = append(ids, verificationID)
	return m.put(idKey(splitVerifyPrefix, splitID), ids)
}

// Oracles returns the set of accounts authorized to adjudicate verification
// requests.
func (m *Manager) Oracles() ([][20]byte, error) {
	var raw [][]byte
	if _, err := m.get(oracleSetKey, &raw); err != nil {
		return nil, err
	}
	oracles := make([][20]byte, 0, len(raw))
	for _, b := range raw {
		if len(b) != 20 {
			return nil, fmt.Errorf("state: malformed oracle address")
		}
		var addr [20]byte
		copy(addr[:], b)
		oracles = append(oracles, addr)
	}
	return oracles, nil
}

// SetOracles replaces the oracle whitelist. The set is admin-managed
// configuration; engines only read it.
func (m *Manager) SetOracles(oracles [][20]byte) error {
	raw := make([][]byte, 0, len(oracles))
	for _, addr := range oracles {
		raw = append(raw, append([]byte(nil), addr[:]...))
	}
	return m.put(oracleSetKey, raw)
}

func (m *Manager) configuredAddress(key []byte, missing error) ([20]byte, error) {
	var raw []byte
	ok, err := m.get(key, &raw)
	if err != nil {
		return [20]byte{}, err
	}
	if !ok {
		return [20]byte{}, missing
	}
	if len(raw) != 20 {
		return [20]byte{}, fmt.Errorf("state: malformed configured address")
	}
	var addr [20]byte
	copy(addr[:], raw)
	return addr, nil
}
