package rpc

import (
	"fmt"
	"math/big"
	"strings"

	"labledger/core/events"
	"labledger/core/types"
	"labledger/crypto"
	"labledger/native/escrow"
	"labledger/native/requests"
)

type requestJSON struct {
	Hash            string `json:"hash"`
	Requester       string `json:"requester"`
	LabAddress      string `json:"labAddress"`
	Country         string `json:"country"`
	City            string `json:"city"`
	ServiceCategory string `json:"serviceCategory"`
	StakingAmount   string `json:"stakingAmount"`
	Status          string `json:"status"`
	UnstakedAt      int64  `json:"unstakedAt"`
	CreatedAt       int64  `json:"createdAt"`
}

func requestJSONFrom(r *requests.Request) requestJSON {
	return requestJSON{
		Hash:            events.FormatHash(r.Hash),
		Requester:       events.FormatAddress(r.Requester),
		LabAddress:      events.FormatAddress(r.LabAddress),
		Country:         r.Country,
		City:            r.City,
		ServiceCategory: r.ServiceCategory,
		StakingAmount:   events.FormatAmount(r.StakingAmount),
		Status:          r.Status.String(),
		UnstakedAt:      r.UnstakedAt,
		CreatedAt:       r.CreatedAt,
	}
}

type offerJSON struct {
	RequestHash  string `json:"requestHash"`
	LabAddress   string `json:"labAddress"`
	ServiceID    string `json:"serviceId"`
	TestingPrice string `json:"testingPrice"`
	QCPrice      string `json:"qcPrice"`
}

func offerJSONFrom(o *requests.ServiceOffer) offerJSON {
	return offerJSON{
		RequestHash:  events.FormatHash(o.RequestHash),
		LabAddress:   events.FormatAddress(o.LabAddress),
		ServiceID:    events.FormatHash(o.ServiceID),
		TestingPrice: events.FormatAmount(o.TestingPrice),
		QCPrice:      events.FormatAmount(o.QCPrice),
	}
}

type orderJSON struct {
	OrderID                  string `json:"orderId"`
	ServiceID                string `json:"serviceId"`
	CustomerSubstrateAddress string `json:"customerSubstrateAddress"`
	SellerSubstrateAddress   string `json:"sellerSubstrateAddress"`
	CustomerAddress          string `json:"customerAddress"`
	SellerAddress            string `json:"sellerAddress"`
	DNASampleTrackingID      string `json:"dnaSampleTrackingId"`
	TestingPrice             string `json:"testingPrice"`
	QCPrice                  string `json:"qcPrice"`
	AmountPaid               string `json:"amountPaid"`
	Status                   string `json:"status"`
	CreatedAt                int64  `json:"createdAt"`
	UpdatedAt                int64  `json:"updatedAt"`
}

func orderJSONFrom(o *escrow.Order) orderJSON {
	return orderJSON{
		OrderID:                  events.FormatHash(o.OrderID),
		ServiceID:                events.FormatHash(o.ServiceID),
		CustomerSubstrateAddress: o.CustomerSubstrateAddress,
		SellerSubstrateAddress:   o.SellerSubstrateAddress,
		CustomerAddress:          events.FormatAddress(o.CustomerAddress),
		SellerAddress:            events.FormatAddress(o.SellerAddress),
		DNASampleTrackingID:      o.DNASampleTrackingID,
		TestingPrice:             events.FormatAmount(o.TestingPrice),
		QCPrice:                  events.FormatAmount(o.QCPrice),
		AmountPaid:               events.FormatAmount(o.AmountPaid),
		Status:                   o.Status.String(),
		CreatedAt:                o.CreatedAt,
		UpdatedAt:                o.UpdatedAt,
	}
}

type eventJSON struct {
	Sequence   uint64            `json:"sequence"`
	Timestamp  int64             `json:"timestamp"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func eventJSONFrom(record types.EventRecord) eventJSON {
	attrs := make(map[string]string, len(record.Attributes))
	for k, v := range record.Attributes {
		attrs[k] = v
	}
	return eventJSON{
		Sequence:   record.Sequence,
		Timestamp:  record.Timestamp,
		Type:       record.Type,
		Attributes: attrs,
	}
}

type hashListJSON struct {
	Hashes []string `json:"hashes"`
}

func hashListJSONFrom(hashes [][32]byte) hashListJSON {
	out := hashListJSON{Hashes: make([]string, 0, len(hashes))}
	for _, h := range hashes {
		out.Hashes = append(out.Hashes, events.FormatHash(h))
	}
	return out
}

func parseAddressField(name, raw string) ([20]byte, error) {
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return addr, fmt.Errorf("%s: %w", name, err)
	}
	return addr, nil
}

func parseHashField(name, raw string) ([32]byte, error) {
	h, err := crypto.ParseHash32(raw)
	if err != nil {
		return h, fmt.Errorf("%s: %w", name, err)
	}
	return h, nil
}

// parseAmountField decodes a base-10 integer string. Range checks are left
// to the ledger so the failure reason stays InvalidAmount.
func parseAmountField(name, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%s required", name)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid integer %q", name, raw)
	}
	return amount, nil
}
