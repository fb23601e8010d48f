package rpc

import (
	"errors"
	"net/http"

	"splitledger/native/rewards"
)

type rewardsTrackParams struct {
	User    string `json:"user"`
	SplitID uint64 `json:"splitId"`
	Amount  string `json:"amount"`
}

type rewardsTrackCreatedParams struct {
	User    string `json:"user"`
	SplitID uint64 `json:"splitId"`
}

type rewardsUserParams struct {
	User string `json:"user"`
}

type rewardsJSON struct {
	User                    string `json:"user"`
	TotalSplitsCreated      uint64 `json:"totalSplitsCreated"`
	TotalSplitsParticipated uint64 `json:"totalSplitsParticipated"`
	TotalAmountTransacted   string `json:"totalAmountTransacted"`
	RewardsEarned           string `json:"rewardsEarned"`
	RewardsClaimed          string `json:"rewardsClaimed"`
	Available               string `json:"available"`
	LastActivity            int64  `json:"lastActivity"`
	Status                  string `json:"status"`
}

func rewardsToJSON(ur *rewards.UserRewards) rewardsJSON {
	ur = ur.Clone().Normalize()
	return rewardsJSON{
		User:                    formatAddress(ur.User),
		TotalSplitsCreated:      ur.TotalSplitsCreated,
		TotalSplitsParticipated: ur.TotalSplitsParticipated,
		TotalAmountTransacted:   ur.TotalAmountTransacted.String(),
		RewardsEarned:           ur.RewardsEarned.String(),
		RewardsClaimed:          ur.RewardsClaimed.String(),
		Available:               ur.Available().String(),
		LastActivity:            ur.LastActivity,
		Status:                  ur.Status.String(),
	}
}

func writeRewardsError(w http.ResponseWriter, req *RPCRequest, err error) {
	switch {
	case errors.Is(err, rewards.ErrUserNotFound):
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "not_found", err.Error())
	case errors.Is(err, rewards.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
	case errors.Is(err, rewards.ErrNotActive),
		errors.Is(err, rewards.ErrInsufficientRewards),
		errors.Is(err, rewards.ErrPoolExhausted):
		writeError(w, http.StatusConflict, req.ID, codeConflict, "conflict", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal_error", err.Error())
	}
}

func (s *Server) handleRewardsTrack(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params rewardsTrackParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	user, err := parseAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.RewardsTrackUsage(user, params.SplitID, amount); err != nil {
		writeRewardsError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleRewardsTrackCreated(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params rewardsTrackCreatedParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	user, err := parseAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.RewardsTrackCreated(user, params.SplitID); err != nil {
		writeRewardsError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleRewardsCalculate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params rewardsUserParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	user, err := parseAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	earned, err := s.node.RewardsCalculate(user)
	if err != nil {
		writeRewardsError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"earned": earned.String()})
}

func (s *Server) handleRewardsClaim(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params rewardsUserParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	user, err := parseAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	claimed, err := s.node.RewardsClaim(user)
	if err != nil {
		writeRewardsError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"claimed": claimed.String()})
}

func (s *Server) handleRewardsGet(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params rewardsUserParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	user, err := parseAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	record, err := s.node.RewardsGet(user)
	if err != nil {
		writeRewardsError(w, req, err)
		return
	}
	writeResult(w, req.ID, rewardsToJSON(record))
}
