package requests

import (
	"math/big"
	"strconv"

	"labledger/core/events"
	"labledger/core/types"
	"labledger/native/escrow"
)

const (
	EventTypeCreated          = "requests.created"
	EventTypeClaimed          = "requests.claimed"
	EventTypeProcessed        = "requests.processed"
	EventTypeExcessRefunded   = "requests.excess_refunded"
	EventTypeUnstaked         = "requests.unstaked"
	EventTypeUnstakeRetrieved = "requests.unstaked_retrieved"
)

func snapshotAttributes(r *Request) map[string]string {
	return map[string]string{
		"hash":            events.FormatHash(r.Hash),
		"requester":       events.FormatAddress(r.Requester),
		"labAddress":      events.FormatAddress(r.LabAddress),
		"country":         r.Country,
		"city":            r.City,
		"serviceCategory": r.ServiceCategory,
		"stakingAmount":   events.FormatAmount(r.StakingAmount),
		"status":          strconv.FormatUint(uint64(r.Status), 10),
		"unstakedAt":      strconv.FormatInt(r.UnstakedAt, 10),
		"createdAt":       strconv.FormatInt(r.CreatedAt, 10),
	}
}

// NewCreatedEvent carries the full snapshot of a freshly staked request.
func NewCreatedEvent(r *Request) *types.Event {
	return &types.Event{Type: EventTypeCreated, Attributes: snapshotAttributes(r)}
}

// NewClaimedEvent records which lab claimed the request.
func NewClaimedEvent(lab [20]byte, hash [32]byte) *types.Event {
	return &types.Event{Type: EventTypeClaimed, Attributes: map[string]string{
		"lab":         events.FormatAddress(lab),
		"requestHash": events.FormatHash(hash),
	}}
}

// NewExcessRefundedEvent records the stake returned to the requester when it
// exceeded the quoted price.
func NewExcessRefundedEvent(r *Request, amount *big.Int) *types.Event {
	attrs := snapshotAttributes(r)
	attrs["amount"] = events.FormatAmount(amount)
	return &types.Event{Type: EventTypeExcessRefunded, Attributes: attrs}
}

// NewProcessedEvent carries the request-to-order handoff tuple.
func NewProcessedEvent(r *Request, offer *ServiceOffer, p escrow.Payment) *types.Event {
	return &types.Event{Type: EventTypeProcessed, Attributes: map[string]string{
		"requestHash":              events.FormatHash(r.Hash),
		"orderId":                  events.FormatHash(p.OrderID),
		"serviceId":                events.FormatHash(offer.ServiceID),
		"customerSubstrateAddress": p.CustomerSubstrateAddress,
		"sellerSubstrateAddress":   p.SellerSubstrateAddress,
		"customerAddress":          events.FormatAddress(p.CustomerAddress),
		"sellerAddress":            events.FormatAddress(p.SellerAddress),
		"dnaSampleTrackingId":      p.DNASampleTrackingID,
		"testingPrice":             events.FormatAmount(offer.TestingPrice),
		"qcPrice":                  events.FormatAmount(offer.QCPrice),
		"stakingAmount":            events.FormatAmount(r.StakingAmount),
	}}
}

// NewUnstakedEvent marks the start of the retrieval cooldown.
func NewUnstakedEvent(r *Request) *types.Event {
	return &types.Event{Type: EventTypeUnstaked, Attributes: snapshotAttributes(r)}
}

// NewUnstakeRetrievedEvent carries the zeroed snapshot plus the amount paid
// back.
func NewUnstakeRetrievedEvent(r *Request, amount *big.Int) *types.Event {
	attrs := snapshotAttributes(r)
	attrs["amount"] = events.FormatAmount(amount)
	return &types.Event{Type: EventTypeUnstakeRetrieved, Attributes: attrs}
}

type requestEvent struct {
	evt *types.Event
}

func (e requestEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e requestEvent) Event() *types.Event { return e.evt }
