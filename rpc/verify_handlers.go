package rpc

import (
	"errors"
	"net/http"

	"splitledger/native/verify"
)

type verifySubmitParams struct {
	SplitRef    string `json:"splitRef"`
	Requester   string `json:"requester"`
	ReceiptHash string `json:"receiptHash"`
	EvidenceURL string `json:"evidenceUrl,omitempty"`
}

type verifyAdjudicateParams struct {
	VerificationID uint64 `json:"verificationId"`
	Oracle         string `json:"oracle"`
	Verified       bool   `json:"verified"`
}

type verifyStatusParams struct {
	SplitRef string `json:"splitRef"`
}

type verifyIDParams struct {
	VerificationID uint64 `json:"verificationId"`
}

type verificationJSON struct {
	VerificationID  uint64 `json:"verificationId"`
	SplitID         uint64 `json:"splitId"`
	Requester       string `json:"requester"`
	ReceiptHash     string `json:"receiptHash"`
	EvidenceURL     string `json:"evidenceUrl,omitempty"`
	SubmittedAt     int64  `json:"submittedAt"`
	Status          string `json:"status"`
	VerifiedBy      string `json:"verifiedBy,omitempty"`
	VerifiedAt      int64  `json:"verifiedAt,omitempty"`
	RejectionReason string `json:"rejectionReason,omitempty"`
}

func verificationToJSON(req *verify.Request) verificationJSON {
	out := verificationJSON{
		VerificationID:  req.VerificationID,
		SplitID:         req.SplitID,
		Requester:       formatAddress(req.Requester),
		ReceiptHash:     req.ReceiptHash,
		EvidenceURL:     req.EvidenceURL,
		SubmittedAt:     req.SubmittedAt,
		Status:          req.Status.String(),
		VerifiedAt:      req.VerifiedAt,
		RejectionReason: req.RejectionReason,
	}
	if req.Status.Terminal() {
		out.VerifiedBy = formatAddress(req.VerifiedBy)
	}
	return out
}

func writeVerifyError(w http.ResponseWriter, req *RPCRequest, err error) {
	switch {
	case errors.Is(err, verify.ErrSplitNotFound),
		errors.Is(err, verify.ErrVerificationNotFound):
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "not_found", err.Error())
	case errors.Is(err, verify.ErrOracleNotAuthorized):
		writeError(w, http.StatusForbidden, req.ID, codeForbidden, "forbidden", err.Error())
	case errors.Is(err, verify.ErrInvalidSplitRef),
		errors.Is(err, verify.ErrEmptyReceiptHash):
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
	case errors.Is(err, verify.ErrVerificationExists),
		errors.Is(err, verify.ErrVerificationClosed):
		writeError(w, http.StatusConflict, req.ID, codeConflict, "conflict", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal_error", err.Error())
	}
}

func (s *Server) handleVerifySubmit(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params verifySubmitParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	requester, err := parseAddress(params.Requester)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	record, err := s.node.VerificationSubmit(params.SplitRef, requester, params.ReceiptHash, params.EvidenceURL)
	if err != nil {
		writeVerifyError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"verificationId": record.VerificationID})
}

func (s *Server) handleVerifyAdjudicate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params verifyAdjudicateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	oracle, err := parseAddress(params.Oracle)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.VerificationAdjudicate(params.VerificationID, oracle, params.Verified); err != nil {
		writeVerifyError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleVerifyStatus(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params verifyStatusParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	status, err := s.node.VerificationStatus(params.SplitRef)
	if err != nil {
		writeVerifyError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": status.String()})
}

func (s *Server) handleVerifyGet(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params verifyIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	record, err := s.node.VerificationGet(params.VerificationID)
	if err != nil {
		writeVerifyError(w, req, err)
		return
	}
	writeResult(w, req.ID, verificationToJSON(record))
}
