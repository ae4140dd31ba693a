package escrow

import (
	"fmt"
	"math/big"

	"labledger/native/common"
)

// OrderStatus represents the lifecycle states of an escrow order. The numeric
// values are part of the event and API surface.
type OrderStatus uint8

const (
	OrderPaidPartial OrderStatus = iota
	OrderPaid
	OrderFulfilled
	OrderRefunded
)

func (s OrderStatus) String() string {
	switch s {
	case OrderPaidPartial:
		return "PAID_PARTIAL"
	case OrderPaid:
		return "PAID"
	case OrderFulfilled:
		return "FULFILLED"
	case OrderRefunded:
		return "REFUNDED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
}

// Valid reports whether the status value is within the supported range.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPaidPartial, OrderPaid, OrderFulfilled, OrderRefunded:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return s == OrderFulfilled || s == OrderRefunded
}

// Order captures the payment record for a single lab service order. The
// identifier is supplied by the caller. Substrate addresses belong to an
// external address space and are stored verbatim for reconciliation.
type Order struct {
	OrderID                  [32]byte
	ServiceID                [32]byte
	CustomerSubstrateAddress string
	SellerSubstrateAddress   string
	CustomerAddress          [20]byte
	SellerAddress            [20]byte
	DNASampleTrackingID      string
	TestingPrice             *big.Int
	QCPrice                  *big.Int
	AmountPaid               *big.Int
	Status                   OrderStatus
	CreatedAt                int64
	UpdatedAt                int64
}

// Clone returns a deep copy of the order so callers can safely mutate the copy
// without affecting the stored instance.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.TestingPrice = common.CloneAmount(o.TestingPrice)
	clone.QCPrice = common.CloneAmount(o.QCPrice)
	clone.AmountPaid = common.CloneAmount(o.AmountPaid)
	return &clone
}

// TotalPrice returns TestingPrice + QCPrice.
func (o *Order) TotalPrice() (*big.Int, error) {
	return common.SafeAdd(o.TestingPrice, o.QCPrice)
}

// PaymentStatus returns PAID when paid covers the total and PAID_PARTIAL
// otherwise.
func PaymentStatus(paid, total *big.Int) OrderStatus {
	if common.CloneAmount(paid).Cmp(common.CloneAmount(total)) >= 0 {
		return OrderPaid
	}
	return OrderPaidPartial
}

// SanitizeOrder validates the supplied order, returning a cloned instance with
// non-nil amount fields. The function does not mutate the original value.
func SanitizeOrder(o *Order) (*Order, error) {
	if o == nil {
		return nil, fmt.Errorf("nil order")
	}
	clone := o.Clone()
	for name, amt := range map[string]*big.Int{
		"testing price": clone.TestingPrice,
		"qc price":      clone.QCPrice,
		"amount paid":   clone.AmountPaid,
	} {
		if err := common.CheckAmount(amt); err != nil {
			return nil, fmt.Errorf("order %s: %w", name, err)
		}
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid order status: %d", clone.Status)
	}
	return clone, nil
}
