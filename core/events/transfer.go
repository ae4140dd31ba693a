package events

import (
	"math/big"
	"strings"

	"labledger/core/types"
)

const (
	// TypeTransfer is emitted for every token balance movement.
	TypeTransfer = "token.transfer"
	// TypeApproval is emitted when an owner sets a spender allowance.
	TypeApproval = "token.approval"
	// TypeMint is emitted when genesis or the faucet creates supply.
	TypeMint = "token.mint"
)

type Transfer struct {
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{
		"from":   FormatAddress(e.From),
		"to":     FormatAddress(e.To),
		"amount": FormatAmount(e.Amount),
	}
	return &types.Event{Type: TypeTransfer, Attributes: attrs}
}

type Approval struct {
	Owner   [20]byte
	Spender [20]byte
	Amount  *big.Int
}

func (Approval) EventType() string { return TypeApproval }

func (e Approval) Event() *types.Event {
	attrs := map[string]string{
		"owner":   FormatAddress(e.Owner),
		"spender": FormatAddress(e.Spender),
		"amount":  FormatAmount(e.Amount),
	}
	return &types.Event{Type: TypeApproval, Attributes: attrs}
}

type Mint struct {
	To     [20]byte
	Amount *big.Int
	Source string
}

func (Mint) EventType() string { return TypeMint }

func (e Mint) Event() *types.Event {
	attrs := map[string]string{
		"to":     FormatAddress(e.To),
		"amount": FormatAmount(e.Amount),
	}
	if source := strings.TrimSpace(e.Source); source != "" {
		attrs["source"] = source
	}
	return &types.Event{Type: TypeMint, Attributes: attrs}
}
