// Package auth binds staking requests to the key that signed them.
package auth

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"lpstaking/internal/model"
)

// Action names the operation a request authorizes.
type Action string

const (
	ActionInitialize          Action = "initialize"
	ActionStake               Action = "stake"
	ActionUnstake             Action = "unstake"
	ActionClaim               Action = "claim"
	ActionFundRewards         Action = "fund_rewards"
	ActionSetRewardRate       Action = "set_reward_rate"
	ActionSetRewardMultiplier Action = "set_reward_multiplier"
	// ActionQuery authorizes reads of the signer's own position.
	ActionQuery Action = "query"
)

const digestDomain = "lpstaking/request/v1"

// MaxQueryWindow bounds how far in the future a query's expiry may lie, in
// seconds.
const MaxQueryWindow = 300

// Request is a signed instruction from Owner. Fields that an action does not
// use stay zero but are still covered by the signature.
type Request struct {
	Action     Action         `json:"action"`
	Owner      common.Address `json:"owner"`
	Amount     uint64         `json:"amount,omitempty"`
	Lockup     int64          `json:"lockup,omitempty"`
	Rate       uint64         `json:"rate,omitempty"`
	Multiplier uint64         `json:"multiplier,omitempty"`
	Nonce      uint64         `json:"nonce"`
	Expiry     uint64         `json:"expiry,omitempty"`
	Signature  hexutil.Bytes  `json:"signature"`
}

type digestPayload struct {
	Domain     string
	Program    common.Address
	Action     string
	Owner      common.Address
	Amount     uint64
	Lockup     uint64
	Rate       uint64
	Multiplier uint64
	Nonce      uint64
	Expiry     uint64
}

// Digest is the keccak256 hash signed for req under program.
func (r Request) Digest(program common.Address) ([]byte, error) {
	encoded, err := rlp.EncodeToBytes(&digestPayload{
		Domain:     digestDomain,
		Program:    program,
		Action:     string(r.Action),
		Owner:      r.Owner,
		Amount:     r.Amount,
		Lockup:     uint64(r.Lockup),
		Rate:       r.Rate,
		Multiplier: r.Multiplier,
		Nonce:      r.Nonce,
		Expiry:     r.Expiry,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return crypto.Keccak256(encoded), nil
}

// Sign sets Owner to the key's address and attaches a signature.
func Sign(req Request, program common.Address, key *ecdsa.PrivateKey) (Request, error) {
	req.Owner = crypto.PubkeyToAddress(key.PublicKey)
	digest, err := req.Digest(program)
	if err != nil {
		return Request{}, err
	}
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return Request{}, fmt.Errorf("sign request: %w", err)
	}
	req.Signature = sig
	return req, nil
}

// Authenticate recovers the signer of req and checks it is the claimed owner
// and that req authorizes action.
func Authenticate(req Request, program common.Address, action Action) (common.Address, error) {
	if req.Action != action {
		return common.Address{}, fmt.Errorf("request for %q used as %q: %w", req.Action, action, model.ErrUnauthorized)
	}
	if req.Nonce == 0 {
		return common.Address{}, fmt.Errorf("nonce must be greater than zero: %w", model.ErrUnauthorized)
	}
	return recoverOwner(req, program)
}

// NewQuery returns an unsigned read request that expires window seconds
// after now.
func NewQuery(now, window uint64) Request {
	return Request{Action: ActionQuery, Expiry: now + window}
}

// AuthenticateQuery checks a signed read request at time now. Reads carry a
// short expiry instead of a nonce, so they never write state.
func AuthenticateQuery(req Request, program common.Address, now uint64) (common.Address, error) {
	if req.Action != ActionQuery {
		return common.Address{}, fmt.Errorf("request for %q used as %q: %w", req.Action, ActionQuery, model.ErrUnauthorized)
	}
	if req.Expiry < now {
		return common.Address{}, fmt.Errorf("query expired at %d, now %d: %w", req.Expiry, now, model.ErrUnauthorized)
	}
	if req.Expiry-now > MaxQueryWindow {
		return common.Address{}, fmt.Errorf("query expiry %d more than %ds ahead: %w", req.Expiry, MaxQueryWindow, model.ErrUnauthorized)
	}
	return recoverOwner(req, program)
}

func recoverOwner(req Request, program common.Address) (common.Address, error) {
	if len(req.Signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes: %w", crypto.SignatureLength, model.ErrUnauthorized)
	}

	digest, err := req.Digest(program)
	if err != nil {
		return common.Address{}, err
	}
	pubKey, err := crypto.SigToPub(digest, req.Signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature: %v: %w", err, model.ErrUnauthorized)
	}
	signer := crypto.PubkeyToAddress(*pubKey)
	if signer != req.Owner {
		return common.Address{}, fmt.Errorf("signer %s does not match owner %s: %w", signer.Hex(), req.Owner.Hex(), model.ErrUnauthorized)
	}
	return signer, nil
}

// ParseKey decodes a hex-encoded secp256k1 private key.
func ParseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(trimHexPrefix(hexKey))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
