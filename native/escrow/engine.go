package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	ledgererrors "labledger/core/errors"
	"labledger/core/events"
	"labledger/core/types"
	"labledger/crypto"
	"labledger/native/common"
)

var errNilState = errors.New("escrow engine: state not configured")

var errNilToken = errors.New("escrow engine: token ledger not configured")

// CustodyAddress holds every unreleased order payment.
var CustodyAddress = crypto.ModuleAddress(common.ModuleEscrow)

type engineState interface {
	OrderPut(*Order) error
	OrderGet(id [32]byte) (*Order, bool, error)
}

type tokenLedger interface {
	Transfer(from, to [20]byte, amount *big.Int) error
	TransferFrom(spender, owner, to [20]byte, amount *big.Int) error
}

// Payment describes a single payOrder call. Metadata fields are only recorded
// by the payment that creates the order; later payments just add to
// AmountPaid.
type Payment struct {
	OrderID                  [32]byte
	ServiceID                [32]byte
	CustomerSubstrateAddress string
	SellerSubstrateAddress   string
	CustomerAddress          [20]byte
	SellerAddress            [20]byte
	DNASampleTrackingID      string
	TestingPrice             *big.Int
	QCPrice                  *big.Int
	Amount                   *big.Int
}

// Engine wires the order ledger with external state, the token ledger and
// event emitters. The administrator is fixed at construction.
type Engine struct {
	state   engineState
	token   tokenLedger
	emitter events.Emitter
	pauses  common.PauseView
	admin   [20]byte
	nowFn   func() int64
}

// NewEngine creates an escrow engine whose fulfillment and refund paths are
// restricted to admin.
func NewEngine(admin [20]byte) *Engine {
	return &Engine{
		admin:   admin,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetToken configures the token ledger custody moves through.
func (e *Engine) SetToken(token tokenLedger) { e.token = token }

// SetPauses configures the pause view consulted before mutating calls.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Admin returns the escrow administrator.
func (e *Engine) Admin() [20]byte { return e.admin }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(orderEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.token == nil {
		return errNilToken
	}
	return nil
}

func (e *Engine) loadOrder(id [32]byte) (*Order, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	order, ok, err := e.state.OrderGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("escrow: order %x: %w", id, ledgererrors.ErrNotFound)
	}
	return order, nil
}

func (e *Engine) storeOrder(o *Order) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.OrderPut(o)
}

// GetOrderByOrderID returns a copy of the stored order.
func (e *Engine) GetOrderByOrderID(id [32]byte) (*Order, error) {
	order, err := e.loadOrder(id)
	if err != nil {
		return nil, err
	}
	return order.Clone(), nil
}

// PayOrder pulls p.Amount from the caller into escrow custody and records it
// against the order, creating the order on first payment. Payments accumulate
// until the order is fulfilled or refunded.
func (e *Engine) PayOrder(caller [20]byte, p Payment) (*Order, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, common.ModuleEscrow); err != nil {
		return nil, err
	}
	if err := common.CheckPositive(p.Amount); err != nil {
		return nil, fmt.Errorf("escrow: pay order: %w", err)
	}
	total, err := common.SafeAdd(p.TestingPrice, p.QCPrice)
	if err != nil {
		return nil, fmt.Errorf("escrow: pay order: %w", err)
	}
	existing, found, err := e.state.OrderGet(p.OrderID)
	if err != nil {
		return nil, err
	}
	if found && existing.Status.Terminal() {
		return nil, fmt.Errorf("escrow: cannot pay order in status %s: %w", existing.Status, ledgererrors.ErrInvalidState)
	}
	amount := common.CloneAmount(p.Amount)
	if err := e.token.TransferFrom(CustodyAddress, caller, CustodyAddress, amount); err != nil {
		return nil, fmt.Errorf("escrow: pull payment: %w", err)
	}

	now := e.now()
	var order *Order
	if found {
		order = existing
		paid, err := common.SafeAdd(order.AmountPaid, amount)
		if err != nil {
			return nil, fmt.Errorf("escrow: pay order: %w", err)
		}
		stored, err := order.TotalPrice()
		if err != nil {
			return nil, err
		}
		order.AmountPaid = paid
		order.Status = PaymentStatus(paid, stored)
		order.UpdatedAt = now
	} else {
		order = &Order{
			OrderID:                  p.OrderID,
			ServiceID:                p.ServiceID,
			CustomerSubstrateAddress: p.CustomerSubstrateAddress,
			SellerSubstrateAddress:   p.SellerSubstrateAddress,
			CustomerAddress:          p.CustomerAddress,
			SellerAddress:            p.SellerAddress,
			DNASampleTrackingID:      p.DNASampleTrackingID,
			TestingPrice:             common.CloneAmount(p.TestingPrice),
			QCPrice:                  common.CloneAmount(p.QCPrice),
			AmountPaid:               amount,
			Status:                   PaymentStatus(amount, total),
			CreatedAt:                now,
			UpdatedAt:                now,
		}
	}
	if err := e.storeOrder(order); err != nil {
		return nil, err
	}
	e.emit(NewOrderPaidEvent(order, caller, amount))
	return order.Clone(), nil
}

// FulfillOrder releases the order's custody to the seller settlement address.
// Only the escrow administrator may call it, and only once the order is fully
// paid.
func (e *Engine) FulfillOrder(caller [20]byte, id [32]byte) (*Order, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, common.ModuleEscrow); err != nil {
		return nil, err
	}
	if caller != e.admin {
		return nil, fmt.Errorf("escrow: fulfill order: %w", ledgererrors.ErrNotAuthorized)
	}
	order, err := e.loadOrder(id)
	if err != nil {
		return nil, err
	}
	if order.Status.Terminal() {
		return nil, fmt.Errorf("escrow: cannot fulfill order in status %s: %w", order.Status, ledgererrors.ErrInvalidState)
	}
	if order.Status != OrderPaid {
		return nil, fmt.Errorf("escrow: fulfill order: %w", ledgererrors.ErrOrderUnderpaid)
	}
	released := common.CloneAmount(order.AmountPaid)
	order.Status = OrderFulfilled
	order.UpdatedAt = e.now()
	if err := e.storeOrder(order); err != nil {
		return nil, err
	}
	if err := e.token.Transfer(CustodyAddress, order.SellerAddress, released); err != nil {
		return nil, fmt.Errorf("escrow: release to seller: %w", err)
	}
	e.emit(NewOrderFulfilledEvent(order, caller, released))
	return order.Clone(), nil
}

// RefundOrder cancels a non-terminal order and returns everything paid to the
// customer settlement address. AmountPaid is zeroed in the same call.
func (e *Engine) RefundOrder(caller [20]byte, id [32]byte) (*Order, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, common.ModuleEscrow); err != nil {
		return nil, err
	}
	if caller != e.admin {
		return nil, fmt.Errorf("escrow: refund order: %w", ledgererrors.ErrNotAuthorized)
	}
	order, err := e.loadOrder(id)
	if err != nil {
		return nil, err
	}
	if order.Status.Terminal() {
		return nil, fmt.Errorf("escrow: cannot refund order in status %s: %w", order.Status, ledgererrors.ErrInvalidState)
	}
	refunded := common.CloneAmount(order.AmountPaid)
	order.AmountPaid = big.NewInt(0)
	order.Status = OrderRefunded
	order.UpdatedAt = e.now()
	if err := e.storeOrder(order); err != nil {
		return nil, err
	}
	if err := e.token.Transfer(CustodyAddress, order.CustomerAddress, refunded); err != nil {
		return nil, fmt.Errorf("escrow: refund to customer: %w", err)
	}
	e.emit(NewOrderRefundedEvent(order, caller, refunded))
	return order.Clone(), nil
}
