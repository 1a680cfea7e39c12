package model

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Token identifies one of the two fungible tokens the pool handles.
type Token uint8

const (
	TokenLP Token = iota + 1
	TokenReward
)

func (t Token) String() string {
	switch t {
	case TokenLP:
		return "lp"
	case TokenReward:
		return "reward"
	default:
		return fmt.Sprintf("token(%d)", uint8(t))
	}
}

// ParseToken converts "lp" or "reward" into a Token.
func ParseToken(input string) (Token, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "lp":
		return TokenLP, nil
	case "reward", "rewards":
		return TokenReward, nil
	default:
		return 0, fmt.Errorf("unknown token: %q", input)
	}
}

// Account addresses a token balance slot: a token plus its holder.
type Account struct {
	Token   Token          `json:"token"`
	Address common.Address `json:"address"`
}

// Key returns a stable storage key for the account.
func (a Account) Key() string {
	return a.Token.String() + ":" + strings.ToLower(a.Address.Hex())
}

func (a Account) String() string {
	return a.Key()
}
