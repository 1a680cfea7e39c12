package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"lpstaking/internal/auth"
	"lpstaking/internal/model"
	"lpstaking/internal/vault"
)

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func pathAddress(r *http.Request, name string) (common.Address, error) {
	raw := chi.URLParam(r, name)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", name, raw)
	}
	return common.HexToAddress(raw), nil
}

// signed decodes a signed request body, runs op and writes its result.
func (s *Server) signed(w http.ResponseWriter, r *http.Request, op func(req auth.Request) (interface{}, error)) {
	var req auth.Request
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	out, err := op(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) Initialize(w http.ResponseWriter, r *http.Request) {
	s.signed(w, r, func(req auth.Request) (interface{}, error) {
		return s.ctrl.Initialize(r.Context(), req)
	})
}

func (s *Server) Stake(w http.ResponseWriter, r *http.Request) {
	s.signed(w, r, func(req auth.Request) (interface{}, error) {
		return s.ctrl.Stake(r.Context(), req)
	})
}

func (s *Server) Unstake(w http.ResponseWriter, r *http.Request) {
	s.signed(w, r, func(req auth.Request) (interface{}, error) {
		return s.ctrl.Unstake(r.Context(), req)
	})
}

func (s *Server) Claim(w http.ResponseWriter, r *http.Request) {
	s.signed(w, r, func(req auth.Request) (interface{}, error) {
		paid, err := s.ctrl.Claim(r.Context(), req)
		if err != nil {
			return nil, err
		}
		return map[string]uint64{"rewards": paid}, nil
	})
}

func (s *Server) FundRewards(w http.ResponseWriter, r *http.Request) {
	s.signed(w, r, func(req auth.Request) (interface{}, error) {
		return s.ctrl.FundRewards(r.Context(), req)
	})
}

func (s *Server) SetRewardRate(w http.ResponseWriter, r *http.Request) {
	s.signed(w, r, func(req auth.Request) (interface{}, error) {
		return s.ctrl.SetRewardRate(r.Context(), req)
	})
}

func (s *Server) SetRewardMultiplier(w http.ResponseWriter, r *http.Request) {
	s.signed(w, r, func(req auth.Request) (interface{}, error) {
		return s.ctrl.SetRewardMultiplier(r.Context(), req)
	})
}

type mintRequest struct {
	Token   string         `json:"token"`
	Address common.Address `json:"address"`
	Amount  uint64         `json:"amount"`
}

func (s *Server) Mint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := decode(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	token, err := model.ParseToken(req.Token)
	if err != nil {
		badRequest(w, err)
		return
	}
	acct := vault.UserAccount(token, req.Address)
	balance, err := s.ctrl.Mint(r.Context(), acct, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Account: acct, Balance: balance})
}

func (s *Server) GetPool(w http.ResponseWriter, r *http.Request) {
	pool, err := s.ctrl.Pool(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

func (s *Server) QueryPosition(w http.ResponseWriter, r *http.Request) {
	s.signed(w, r, func(req auth.Request) (interface{}, error) {
		pos, ok, err := s.ctrl.Position(r.Context(), req)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("position %s: %w", req.Owner.Hex(), model.ErrNotFound)
		}
		return pos, nil
	})
}

func (s *Server) QueryClaimable(w http.ResponseWriter, r *http.Request) {
	s.signed(w, r, func(req auth.Request) (interface{}, error) {
		return s.ctrl.Claimable(r.Context(), req)
	})
}

func (s *Server) QueryPending(w http.ResponseWriter, r *http.Request) {
	s.signed(w, r, func(req auth.Request) (interface{}, error) {
		pending, ok, err := s.ctrl.PendingReward(r.Context(), req)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("pending reward %s: %w", req.Owner.Hex(), model.ErrNotFound)
		}
		return pending, nil
	})
}

func (s *Server) GetNonce(w http.ResponseWriter, r *http.Request) {
	owner, err := pathAddress(r, "owner")
	if err != nil {
		badRequest(w, err)
		return
	}
	nonce, err := s.ctrl.Nonce(r.Context(), owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"nonce": nonce})
}

type balanceResponse struct {
	Account model.Account `json:"account"`
	Balance uint64        `json:"balance"`
}

func (s *Server) GetBalance(w http.ResponseWriter, r *http.Request) {
	token, err := model.ParseToken(chi.URLParam(r, "token"))
	if err != nil {
		badRequest(w, err)
		return
	}
	addr, err := pathAddress(r, "address")
	if err != nil {
		badRequest(w, err)
		return
	}
	acct := vault.UserAccount(token, addr)
	balance, err := s.ctrl.Balance(r.Context(), acct)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Account: acct, Balance: balance})
}
