package verify

import (
	"encoding/hex"
	"strconv"

	"splitledger/core/types"
)

const (
	EventTypeVerificationSubmitted = "verify.submitted"
	EventTypeVerificationCompleted = "verify.completed"
)

// NewSubmittedEvent returns the payload emitted when evidence is submitted for
// a split.
func NewSubmittedEvent(r *Request) *types.Event {
	attrs := make(map[string]string)
	if r != nil {
		attrs["verificationId"] = strconv.FormatUint(r.VerificationID, 10)
		attrs["splitId"] = strconv.FormatUint(r.SplitID, 10)
		attrs["requester"] = hex.EncodeToString(r.Requester[:])
		attrs["receiptHash"] = r.ReceiptHash
	}
	return &types.Event{Type: EventTypeVerificationSubmitted, Attributes: attrs}
}

// NewCompletedEvent returns the payload emitted when an oracle settles a
// verification request.
func NewCompletedEvent(r *Request) *types.Event {
	attrs := make(map[string]string)
	if r != nil {
		attrs["verificationId"] = strconv.FormatUint(r.VerificationID, 10)
		attrs["splitId"] = strconv.FormatUint(r.SplitID, 10)
		attrs["status"] = r.Status.String()
		attrs["verifiedBy"] = hex.EncodeToString(r.VerifiedBy[:])
		attrs["verifiedAt"] = strconv.FormatInt(r.VerifiedAt, 10)
	}
	return &types.Event{Type: EventTypeVerificationCompleted, Attributes: attrs}
}
