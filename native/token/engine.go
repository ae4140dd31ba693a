package token

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	ledgererrors "labledger/core/errors"
	"labledger/core/events"
	"labledger/native/common"
)

var (
	errNilState = errors.New("token engine: state not configured")

	// ErrInsufficientFunds is returned when the debited account cannot cover
	// the transfer.
	ErrInsufficientFunds = fmt.Errorf("%w: transfer amount exceeds balance", ledgererrors.ErrInsufficientBalance)
	// ErrInsufficientAllowance is returned when a delegated transfer exceeds
	// the approved amount.
	ErrInsufficientAllowance = fmt.Errorf("%w: transfer amount exceeds allowance", ledgererrors.ErrInsufficientBalance)
)

type engineState interface {
	TokenBalance(addr [20]byte) (*big.Int, error)
	SetTokenBalance(addr [20]byte, amount *big.Int) error
	TokenAllowance(owner, spender [20]byte) (*big.Int, error)
	SetTokenAllowance(owner, spender [20]byte, amount *big.Int) error
	TokenSupply() (*big.Int, error)
	SetTokenSupply(amount *big.Int) error
}

// Engine implements the fungible token ledger every custody movement goes
// through. Each call either updates both sides of the movement or neither.
type Engine struct {
	state   engineState
	emitter events.Emitter
}

// NewEngine creates a token engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

// BalanceOf returns the balance held by owner.
func (e *Engine) BalanceOf(owner [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	bal, err := e.state.TokenBalance(owner)
	if err != nil {
		return nil, err
	}
	return common.CloneAmount(bal), nil
}

// Allowance returns the amount spender may still move on behalf of owner.
func (e *Engine) Allowance(owner, spender [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	allowance, err := e.state.TokenAllowance(owner, spender)
	if err != nil {
		return nil, err
	}
	return common.CloneAmount(allowance), nil
}

// Transfer moves amount from the caller to the recipient.
func (e *Engine) Transfer(from, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := common.CheckAmount(amount); err != nil {
		return err
	}
	return e.move(from, to, common.CloneAmount(amount))
}

// Approve sets the allowance spender may draw from owner, replacing any
// previous value.
func (e *Engine) Approve(owner, spender [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := common.CheckAmount(amount); err != nil {
		return err
	}
	amt := common.CloneAmount(amount)
	if err := e.state.SetTokenAllowance(owner, spender, amt); err != nil {
		return err
	}
	e.emit(events.Approval{Owner: owner, Spender: spender, Amount: amt})
	return nil
}

// TransferFrom moves amount from owner to the recipient using the allowance
// previously granted to spender.
func (e *Engine) TransferFrom(spender, owner, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := common.CheckAmount(amount); err != nil {
		return err
	}
	amt := common.CloneAmount(amount)
	allowance, err := e.state.TokenAllowance(owner, spender)
	if err != nil {
		return err
	}
	allowance = common.CloneAmount(allowance)
	if allowance.Cmp(amt) < 0 {
		return ErrInsufficientAllowance
	}
	balance, err := e.state.TokenBalance(owner)
	if err != nil {
		return err
	}
	if common.CloneAmount(balance).Cmp(amt) < 0 {
		return ErrInsufficientFunds
	}
	remaining := new(big.Int).Sub(allowance, amt)
	if err := e.state.SetTokenAllowance(owner, spender, remaining); err != nil {
		return err
	}
	return e.move(owner, to, amt)
}

// Mint credits new supply to the recipient. It is reserved for genesis
// allocations and the operator faucet.
func (e *Engine) Mint(to [20]byte, amount *big.Int, source string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := common.CheckPositive(amount); err != nil {
		return err
	}
	amt := common.CloneAmount(amount)
	supply, err := e.state.TokenSupply()
	if err != nil {
		return err
	}
	newSupply, err := common.SafeAdd(supply, amt)
	if err != nil {
		return err
	}
	balance, err := e.state.TokenBalance(to)
	if err != nil {
		return err
	}
	newBalance, err := common.SafeAdd(balance, amt)
	if err != nil {
		return err
	}
	if err := e.state.SetTokenSupply(newSupply); err != nil {
		return err
	}
	if err := e.state.SetTokenBalance(to, newBalance); err != nil {
		return err
	}
	e.emit(events.Mint{To: to, Amount: amt, Source: strings.TrimSpace(source)})
	return nil
}

// TotalSupply returns the amount minted so far.
func (e *Engine) TotalSupply() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	supply, err := e.state.TokenSupply()
	if err != nil {
		return nil, err
	}
	return common.CloneAmount(supply), nil
}

func (e *Engine) move(from, to [20]byte, amt *big.Int) error {
	if amt.Sign() == 0 {
		return nil
	}
	fromBal, err := e.state.TokenBalance(from)
	if err != nil {
		return err
	}
	fromBal = common.CloneAmount(fromBal)
	if fromBal.Cmp(amt) < 0 {
		return ErrInsufficientFunds
	}
	if from == to {
		e.emit(events.Transfer{From: from, To: to, Amount: amt})
		return nil
	}
	toBal, err := e.state.TokenBalance(to)
	if err != nil {
		return err
	}
	newTo, err := common.SafeAdd(toBal, amt)
	if err != nil {
		return err
	}
	if err := e.state.SetTokenBalance(from, new(big.Int).Sub(fromBal, amt)); err != nil {
		return err
	}
	if err := e.state.SetTokenBalance(to, newTo); err != nil {
		return err
	}
	e.emit(events.Transfer{From: from, To: to, Amount: amt})
	return nil
}
