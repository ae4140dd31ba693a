package escrow

import (
	"math/big"
	"strconv"

	"labledger/core/events"
	"labledger/core/types"
)

const (
	EventTypeOrderPaid      = "escrow.order_paid"
	EventTypeOrderFulfilled = "escrow.order_fulfilled"
	EventTypeOrderRefunded  = "escrow.order_refunded"
)

// NewOrderPaidEvent returns the canonical payload emitted whenever a payment
// is accepted for an order, whether it created the order or topped it up.
func NewOrderPaidEvent(o *Order, payer [20]byte, amount *big.Int) *types.Event {
	evt := newOrderEvent(EventTypeOrderPaid, o)
	evt.Attributes["payer"] = events.FormatAddress(payer)
	evt.Attributes["payAmount"] = events.FormatAmount(amount)
	return evt
}

// NewOrderFulfilledEvent returns the canonical payload emitted when custody is
// released to the seller.
func NewOrderFulfilledEvent(o *Order, actor [20]byte, released *big.Int) *types.Event {
	evt := newOrderEvent(EventTypeOrderFulfilled, o)
	evt.Attributes["actor"] = events.FormatAddress(actor)
	evt.Attributes["releasedAmount"] = events.FormatAmount(released)
	return evt
}

// NewOrderRefundedEvent returns the canonical payload emitted when custody is
// returned to the customer.
func NewOrderRefundedEvent(o *Order, actor [20]byte, refunded *big.Int) *types.Event {
	evt := newOrderEvent(EventTypeOrderRefunded, o)
	evt.Attributes["actor"] = events.FormatAddress(actor)
	evt.Attributes["refundedAmount"] = events.FormatAmount(refunded)
	return evt
}

func newOrderEvent(eventType string, o *Order) *types.Event {
	attrs := make(map[string]string)
	if o == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeOrder(o)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["orderId"] = events.FormatHash(sanitized.OrderID)
	attrs["serviceId"] = events.FormatHash(sanitized.ServiceID)
	attrs["customerSubstrateAddress"] = sanitized.CustomerSubstrateAddress
	attrs["sellerSubstrateAddress"] = sanitized.SellerSubstrateAddress
	attrs["customerAddress"] = events.FormatAddress(sanitized.CustomerAddress)
	attrs["sellerAddress"] = events.FormatAddress(sanitized.SellerAddress)
	attrs["dnaSampleTrackingId"] = sanitized.DNASampleTrackingID
	attrs["testingPrice"] = sanitized.TestingPrice.String()
	attrs["qcPrice"] = sanitized.QCPrice.String()
	attrs["amountPaid"] = sanitized.AmountPaid.String()
	attrs["status"] = strconv.FormatUint(uint64(sanitized.Status), 10)
	attrs["updatedAt"] = strconv.FormatInt(sanitized.UpdatedAt, 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}

type orderEvent struct {
	evt *types.Event
}

func (e orderEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e orderEvent) Event() *types.Event { return e.evt }
