package rpc

import (
	"errors"
	"net/http"

	"splitledger/native/common"
	"splitledger/native/split"
)

type splitParticipantInput struct {
	Address string `json:"address"`
	Share   string `json:"share"`
}

type splitCreateParams struct {
	Creator      string                  `json:"creator"`
	Description  string                  `json:"description"`
	TotalAmount  string                  `json:"totalAmount"`
	Deadline     int64                   `json:"deadline,omitempty"`
	Participants []splitParticipantInput `json:"participants"`
}

type splitIDParams struct {
	ID uint64 `json:"id"`
}

type splitActorParams struct {
	ID     uint64 `json:"id"`
	Caller string `json:"caller"`
}

type splitDepositParams struct {
	ID          uint64 `json:"id"`
	Participant string `json:"participant"`
	Amount      string `json:"amount"`
}

type participantJSON struct {
	Address        string `json:"address"`
	ShareAmount    string `json:"shareAmount"`
	AmountPaid     string `json:"amountPaid"`
	AmountRefunded string `json:"amountRefunded"`
	HasPaid        bool   `json:"hasPaid"`
}

type splitJSON struct {
	ID              uint64            `json:"id"`
	Creator         string            `json:"creator"`
	Description     string            `json:"description"`
	TotalAmount     string            `json:"totalAmount"`
	AmountCollected string            `json:"amountCollected"`
	AmountReleased  string            `json:"amountReleased"`
	Status          string            `json:"status"`
	CreatedAt       int64             `json:"createdAt"`
	Deadline        int64             `json:"deadline,omitempty"`
	Participants    []participantJSON `json:"participants"`
}

func splitToJSON(sp *split.Split) splitJSON {
	out := splitJSON{
		ID:              sp.ID,
		Creator:         formatAddress(sp.Creator),
		Description:     sp.Description,
		TotalAmount:     sp.TotalAmount.String(),
		AmountCollected: sp.AmountCollected.String(),
		AmountReleased:  sp.AmountReleased.String(),
		Status:          sp.Status.String(),
		CreatedAt:       sp.CreatedAt,
		Deadline:        sp.Deadline,
	}
	for _, p := range sp.Participants {
		out.Participants = append(out.Participants, participantJSON{
			Address:        formatAddress(p.Address),
			ShareAmount:    p.ShareAmount.String(),
			AmountPaid:     p.AmountPaid.String(),
			AmountRefunded: p.AmountRefunded.String(),
			HasPaid:        p.HasPaid,
		})
	}
	return out
}

func writeSplitError(w http.ResponseWriter, req *RPCRequest, err error) {
	switch {
	case errors.Is(err, split.ErrSplitNotFound):
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "not_found", err.Error())
	case errors.Is(err, common.ErrUnauthorized):
		writeError(w, http.StatusForbidden, req.ID, codeForbidden, "forbidden", err.Error())
	case errors.Is(err, split.ErrInvalidShares),
		errors.Is(err, split.ErrNoParticipants),
		errors.Is(err, split.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
	case errors.Is(err, split.ErrNotAcceptingDeposits),
		errors.Is(err, split.ErrParticipantNotFound),
		errors.Is(err, split.ErrDepositExceedsShare),
		errors.Is(err, split.ErrSplitReleased),
		errors.Is(err, split.ErrSplitCancelled),
		errors.Is(err, split.ErrSplitFullyFunded),
		errors.Is(err, split.ErrNoFundsAvailable),
		errors.Is(err, split.ErrSplitExpired),
		errors.Is(err, split.ErrSplitNotCancelled),
		errors.Is(err, split.ErrDeadlineNotReached),
		errors.Is(err, split.ErrInsufficientBalance):
		writeError(w, http.StatusConflict, req.ID, codeConflict, "conflict", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal_error", err.Error())
	}
}

func (s *Server) handleSplitCreate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params splitCreateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	creator, err := parseAddress(params.Creator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	total, err := parsePositiveAmount(params.TotalAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	shares := make([]split.ShareInput, 0, len(params.Participants))
	for _, p := range params.Participants {
		addr, err := parseAddress(p.Address)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
		amount, err := parsePositiveAmount(p.Share)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
		shares = append(shares, split.ShareInput{Address: addr, Amount: amount})
	}
	sp, err := s.node.SplitCreate(creator, params.Description, total, shares, params.Deadline)
	if err != nil {
		writeSplitError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"id": sp.ID})
}

func (s *Server) handleSplitDeposit(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params splitDepositParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	participant, err := parseAddress(params.Participant)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.SplitDeposit(params.ID, participant, amount); err != nil {
		writeSplitError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleSplitRelease(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params splitIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.SplitRelease(params.ID); err != nil {
		writeSplitError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleSplitReleasePartial(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params splitIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	released, err := s.node.SplitReleasePartial(params.ID)
	if err != nil {
		writeSplitError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"released": released.String()})
}

func (s *Server) handleSplitCancel(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params splitActorParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.SplitCancel(params.ID, caller); err != nil {
		writeSplitError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleSplitRefund(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params splitActorParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	refunded, err := s.node.SplitRefund(params.ID, caller)
	if err != nil {
		writeSplitError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"refunded": refunded.String()})
}

func (s *Server) handleSplitExpire(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params splitIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.SplitExpire(params.ID); err != nil {
		writeSplitError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleSplitGet(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params splitIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	sp, err := s.node.SplitGet(params.ID)
	if err != nil {
		writeSplitError(w, req, err)
		return
	}
	writeResult(w, req.ID, splitToJSON(sp))
}

func (s *Server) handleSplitIsFullyFunded(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params splitIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	funded, err := s.node.SplitIsFullyFunded(params.ID)
	if err != nil {
		writeSplitError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"fullyFunded": funded})
}

type balanceParams struct {
	Address string `json:"address"`
}

type configJSON struct {
	Vault       string   `json:"vault"`
	RewardsPool string   `json:"rewardsPool"`
	Oracles     []string `json:"oracles"`
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	vault, pool, oracles, err := s.node.Config()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal_error", err.Error())
		return
	}
	out := configJSON{
		Vault:       formatAddress(vault),
		RewardsPool: formatAddress(pool),
		Oracles:     make([]string, 0, len(oracles)),
	}
	for _, oracle := range oracles {
		out.Oracles = append(out.Oracles, formatAddress(oracle))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params balanceParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	balance, err := s.node.Balance(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal_error", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]string{"balance": balance.String()})
}
