package core

import (
	"context"
	"encoding/hex"
	"math/big"
	"strconv"
	"sync"

	"splitledger/core/events"
	"splitledger/core/state"
	"splitledger/core/types"
	"splitledger/native/rewards"
	"splitledger/native/split"
	"splitledger/native/verify"
)

// EventTypeInitialized is emitted once when the ledger configuration is
// installed at boot.
const EventTypeInitialized = "ledger.initialized"

// eventLogLimit bounds the in-memory notification backlog retained for late
// WebSocket subscribers.
const eventLogLimit = 1024

// SequencedEvent pairs an emitted event with its position in the node's
// notification stream.
type SequencedEvent struct {
	Sequence uint64       `json:"sequence"`
	Event    *types.Event `json:"event"`
}

// Node hosts the three engines over a shared state manager. It serializes
// every public operation behind a single mutex, which is the atomicity
// guarantee the engines rely on: each operation runs a full read-modify-write
// cycle with no interleaving. The node also collects engine events and fans
// them out to subscribers.
type Node struct {
	mu     sync.Mutex
	state  *state.Manager
	splits *split.Engine
	points *rewards.Engine
	attest *verify.Engine

	evMu        sync.Mutex
	eventLog    []SequencedEvent
	nextSeq     uint64
	subscribers map[uint64]chan SequencedEvent
	nextSubID   uint64
}

// NewNode wires the engines against the supplied state manager and registers
// itself as their event emitter.
func NewNode(st *state.Manager) *Node {
	n := &Node{
		state:       st,
		splits:      split.NewEngine(),
		points:      rewards.NewEngine(),
		attest:      verify.NewEngine(),
		subscribers: make(map[uint64]chan SequencedEvent),
	}
	n.splits.SetState(st)
	n.splits.SetEmitter(n)
	n.points.SetState(st)
	n.points.SetEmitter(n)
	n.attest.SetState(st)
	n.attest.SetEmitter(n)
	return n
}

// SetNowFunc overrides the time source of every engine. Intended for tests.
func (n *Node) SetNowFunc(now func() int64) {
	n.splits.SetNowFunc(now)
	n.points.SetNowFunc(now)
	n.attest.SetNowFunc(now)
}

// Initialize installs the ledger configuration (custody vault, rewards pool,
// oracle whitelist) and emits the initialization notification.
func (n *Node) Initialize(vault, rewardsPool [20]byte, oracles [][20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.state.SetVaultAddress(vault); err != nil {
		return err
	}
	if err := n.state.SetRewardsPoolAddress(rewardsPool); err != nil {
		return err
	}
	if err := n.state.SetOracles(oracles); err != nil {
		return err
	}
	n.append(&types.Event{Type: EventTypeInitialized, Attributes: map[string]string{
		"vault":       hex.EncodeToString(vault[:]),
		"rewardsPool": hex.EncodeToString(rewardsPool[:]),
		"oracles":     strconv.Itoa(len(oracles)),
	}})
	return nil
}

// Emit implements events.Emitter for the engines.
func (n *Node) Emit(evt events.Event) {
	carrier, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		return
	}
	n.append(carrier.Event())
}

func (n *Node) append(evt *types.Event) {
	if evt == nil {
		return
	}
	n.evMu.Lock()
	defer n.evMu.Unlock()
	n.nextSeq++
	sequenced := SequencedEvent{Sequence: n.nextSeq, Event: evt}
	n.eventLog = append(n.eventLog, sequenced)
	if len(n.eventLog) > eventLogLimit {
		n.eventLog = n.eventLog[len(n.eventLog)-eventLogLimit:]
	}
	for _, ch := range n.subscribers {
		select {
		case ch <- sequenced:
		default:
			// Slow subscribers miss notifications rather than stalling
			// the engines; the stream is fire-and-forget.
		}
	}
}

// EventsSince returns the retained notifications with a sequence greater than
// the supplied cursor.
func (n *Node) EventsSince(cursor uint64) []SequencedEvent {
	n.evMu.Lock()
	defer n.evMu.Unlock()
	out := make([]SequencedEvent, 0, len(n.eventLog))
	for _, evt := range n.eventLog {
		if evt.Sequence > cursor {
			out = append(out, evt)
		}
	}
	return out
}

// SubscribeEvents registers a notification subscriber. The returned backlog
// holds the retained events after the cursor; the channel delivers everything
// emitted afterwards until the context ends or cancel is called.
func (n *Node) SubscribeEvents(ctx context.Context, cursor uint64) (<-chan SequencedEvent, func(), []SequencedEvent) {
	n.evMu.Lock()
	backlog := make([]SequencedEvent, 0, len(n.eventLog))
	for _, evt := range n.eventLog {
		if evt.Sequence > cursor {
			backlog = append(backlog, evt)
		}
	}
	ch := make(chan SequencedEvent, 64)
	id := n.nextSubID
	n.nextSubID++
	n.subscribers[id] = ch
	n.evMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.evMu.Lock()
			delete(n.subscribers, id)
			close(ch)
			n.evMu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel, backlog
}

// --- escrow ledger operations ---

func (n *Node) SplitCreate(creator [20]byte, description string, total *big.Int, shares []split.ShareInput, deadline int64) (*split.Split, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.splits.Create(creator, description, total, shares, deadline)
}

func (n *Node) SplitDeposit(id uint64, participant [20]byte, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.splits.Deposit(id, participant, amount)
}

func (n *Node) SplitRelease(id uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.splits.ReleaseFunds(id)
}

func (n *Node) SplitReleasePartial(id uint64) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.splits.ReleasePartial(id)
}

func (n *Node) SplitCancel(id uint64, caller [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.splits.Cancel(id, caller)
}

func (n *Node) SplitRefund(id uint64, caller [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.splits.Refund(id, caller)
}

func (n *Node) SplitExpire(id uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.splits.Expire(id)
}

func (n *Node) SplitGet(id uint64) (*split.Split, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.splits.Get(id)
}

func (n *Node) SplitIsFullyFunded(id uint64) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.splits.IsFullyFunded(id)
}

// --- rewards ledger operations ---

func (n *Node) RewardsTrackUsage(user [20]byte, splitID uint64, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.points.TrackSplitUsage(user, splitID, amount)
}

func (n *Node) RewardsTrackCreated(user [20]byte, splitID uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.points.TrackSplitCreated(user, splitID)
}

func (n *Node) RewardsCalculate(user [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.points.Calculate(user)
}

func (n *Node) RewardsClaim(user [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.points.Claim(user)
}

func (n *Node) RewardsGet(user [20]byte) (*rewards.UserRewards, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.points.Get(user)
}

// --- verification workflow operations ---

func (n *Node) VerificationSubmit(splitRef string, requester [20]byte, receiptHash, evidenceURL string) (*verify.Request, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.attest.Submit(splitRef, requester, receiptHash, evidenceURL)
}

func (n *Node) VerificationAdjudicate(verificationID uint64, caller [20]byte, verified bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.attest.Adjudicate(verificationID, caller, verified)
}

func (n *Node) VerificationStatus(splitRef string) (verify.Status, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.attest.Status(splitRef)
}

func (n *Node) VerificationGet(verificationID uint64) (*verify.Request, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.attest.Get(verificationID)
}

// --- account reads ---

// Config returns the installed ledger configuration: the custody vault, the
// rewards pool, and the oracle whitelist.
func (n *Node) Config() (vault, rewardsPool [20]byte, oracles [][20]byte, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if vault, err = n.state.VaultAddress(); err != nil {
		return
	}
	if rewardsPool, err = n.state.RewardsPoolAddress(); err != nil {
		return
	}
	oracles, err = n.state.Oracles()
	return
}

// Balance returns the ledger balance for addr.
func (n *Node) Balance(addr [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	account, err := n.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(account.Normalize().Balance), nil
}

// Credit adds funds to an account. The escrow never mints value itself; this
// is the administrative entry point standing in for the external settlement
// rail that funds participant accounts and the rewards pool.
func (n *Node) Credit(addr [20]byte, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	account, err := n.state.GetAccount(addr)
	if err != nil {
		return err
	}
	account = account.Normalize()
	account.Balance = new(big.Int).Add(account.Balance, amount)
	return n.state.PutAccount(addr, account)
}
