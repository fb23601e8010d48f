package verify

import (
	"strconv"
	"strings"
	"time"

	"splitledger/core/events"
	"splitledger/core/types"
	"splitledger/native/common"
)

// rejectionReason is the fixed generic reason attached to rejected requests.
const rejectionReason = "evidence insufficient"

type engineState interface {
	SplitExists(id uint64) (bool, error)
	VerificationGet(id uint64) (*Request, bool, error)
	VerificationPut(*Request) error
	NextVerificationID() (uint64, error)
	SplitVerifications(splitID uint64) ([]uint64, error)
	AppendSplitVerification(splitID, verificationID uint64) error
	Oracles() ([][20]byte, error)
}

type verifyEvent struct {
	evt *types.Event
}

func (e verifyEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e verifyEvent) Event() *types.Event { return e.evt }

// Engine implements the oracle-gated attestation state machine keyed to an
// escrow split. Adjudication authority comes from an admin-managed whitelist
// that the engine only reads.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates a verification engine with a no-op emitter.
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
	e.emitter.Emit(verifyEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// ParseSplitRef resolves a textual split reference into the escrow ledger's
// numeric id space. The parse is strict: any non-digit input is rejected
// rather than silently skipped.
func ParseSplitRef(ref string) (uint64, error) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return 0, ErrInvalidSplitRef
	}
	id, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, ErrInvalidSplitRef
	}
	return id, nil
}

// Submit stores a pending verification request for the referenced split. At
// most one pending request may exist per split at any time; settled requests
// are retained as history and do not block new submissions.
func (e *Engine) Submit(splitRef string, requester [20]byte, receiptHash, evidenceURL string) (*Request, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	splitID, err := ParseSplitRef(splitRef)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(receiptHash) == "" {
		return nil, ErrEmptyReceiptHash
	}
	exists, err := e.state.SplitExists(splitID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrSplitNotFound
	}
	ids, err := e.state.SplitVerifications(splitID)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		request, ok, err := e.state.VerificationGet(id)
		if err != nil {
			return nil, err
		}
		if ok && request.Status == StatusPending {
			return nil, ErrVerificationExists
		}
	}
	verificationID, err := e.state.NextVerificationID()
	if err != nil {
		return nil, err
	}
	request := &Request{
		VerificationID: verificationID,
		SplitID:        splitID,
		Requester:      requester,
		ReceiptHash:    strings.TrimSpace(receiptHash),
		EvidenceURL:    strings.TrimSpace(evidenceURL),
		SubmittedAt:    e.now(),
		Status:         StatusPending,
	}
	if err := e.state.VerificationPut(request); err != nil {
		return nil, err
	}
	if err := e.state.AppendSplitVerification(splitID, verificationID); err != nil {
		return nil, err
	}
	e.emit(NewSubmittedEvent(request))
	return request.Clone(), nil
}

// Adjudicate settles a pending request. Only whitelisted oracles may decide,
// and a decision, once made, cannot be revised.
func (e *Engine) Adjudicate(verificationID uint64, caller [20]byte, verified bool) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	oracles, err := e.state.Oracles()
	if err != nil {
		return err
	}
	if err := common.RequireMember(caller, oracles); err != nil {
		return ErrOracleNotAuthorized
	}
	request, ok, err := e.state.VerificationGet(verificationID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrVerificationNotFound
	}
	if request.Status != StatusPending {
		return ErrVerificationClosed
	}
	if verified {
		request.Status = StatusVerified
	} else {
		request.Status = StatusRejected
		request.RejectionReason = rejectionReason
	}
	request.VerifiedBy = caller
	request.VerifiedAt = e.now()
	if err := e.state.VerificationPut(request); err != nil {
		return err
	}
	e.emit(NewCompletedEvent(request))
	return nil
}

// Status reports the verification standing of a split using a
// last-settled-wins policy: the terminal request with the greatest
// adjudication timestamp decides, and Pending is returned when no request has
// settled.
func (e *Engine) Status(splitRef string) (Status, error) {
	if e == nil || e.state == nil {
		return StatusPending, ErrNilState
	}
	splitID, err := ParseSplitRef(splitRef)
	if err != nil {
		return StatusPending, err
	}
	ids, err := e.state.SplitVerifications(splitID)
	if err != nil {
		return StatusPending, err
	}
	latest := StatusPending
	var latestAt int64
	for _, id := range ids {
		request, ok, err := e.state.VerificationGet(id)
		if err != nil {
			return StatusPending, err
		}
		if !ok || !request.Status.Terminal() {
			continue
		}
		if request.VerifiedAt > latestAt {
			latestAt = request.VerifiedAt
			latest = request.Status
		}
	}
	return latest, nil
}

// Get returns the verification request for the given id.
func (e *Engine) Get(verificationID uint64) (*Request, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	request, ok, err := e.state.VerificationGet(verificationID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrVerificationNotFound
	}
	return request.Clone(), nil
}
