package verify

import "fmt"

// Status represents the adjudication state of a verification request.
type Status uint8

const (
	StatusPending Status = iota
	StatusVerified
	StatusRejected
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether the request has been adjudicated.
func (s Status) Terminal() bool {
	return s == StatusVerified || s == StatusRejected
}

// String returns the canonical lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusVerified:
		return "verified"
	case StatusRejected:
		return "rejected"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Request is an evidence submission awaiting oracle adjudication, tied to one
// split. Requests transition exactly once from pending to a terminal state and
// are never deleted or reopened; settled requests for a split are retained as
// history.
type Request struct {
	VerificationID  uint64   `json:"verificationId"`
	SplitID         uint64   `json:"splitId"`
	Requester       [20]byte `json:"requester"`
	ReceiptHash     string   `json:"receiptHash"`
	EvidenceURL     string   `json:"evidenceUrl,omitempty"`
	SubmittedAt     int64    `json:"submittedAt"`
	Status          Status   `json:"status"`
	VerifiedBy      [20]byte `json:"verifiedBy,omitempty"`
	VerifiedAt      int64    `json:"verifiedAt,omitempty"`
	RejectionReason string   `json:"rejectionReason,omitempty"`
}

// Clone returns a copy of the request.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}
