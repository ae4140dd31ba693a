package state

import (
	"math/big"

	"labledger/native/common"
	"labledger/native/escrow"
)

type storedOrder struct {
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
	Status                   uint8
	CreatedAt                uint64
	UpdatedAt                uint64
}

// OrderPut persists the order after validating it.
func (m *Manager) OrderPut(o *escrow.Order) error {
	sanitized, err := escrow.SanitizeOrder(o)
	if err != nil {
		return err
	}
	return m.KVPut(orderRecordKey(sanitized.OrderID), &storedOrder{
		OrderID:                  sanitized.OrderID,
		ServiceID:                sanitized.ServiceID,
		CustomerSubstrateAddress: sanitized.CustomerSubstrateAddress,
		SellerSubstrateAddress:   sanitized.SellerSubstrateAddress,
		CustomerAddress:          sanitized.CustomerAddress,
		SellerAddress:            sanitized.SellerAddress,
		DNASampleTrackingID:      sanitized.DNASampleTrackingID,
		TestingPrice:             sanitized.TestingPrice,
		QCPrice:                  sanitized.QCPrice,
		AmountPaid:               sanitized.AmountPaid,
		Status:                   uint8(sanitized.Status),
		CreatedAt:                toStoredTime(sanitized.CreatedAt),
		UpdatedAt:                toStoredTime(sanitized.UpdatedAt),
	})
}

// OrderGet loads the order stored under id.
func (m *Manager) OrderGet(id [32]byte) (*escrow.Order, bool, error) {
	var stored storedOrder
	ok, err := m.KVGet(orderRecordKey(id), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &escrow.Order{
		OrderID:                  stored.OrderID,
		ServiceID:                stored.ServiceID,
		CustomerSubstrateAddress: stored.CustomerSubstrateAddress,
		SellerSubstrateAddress:   stored.SellerSubstrateAddress,
		CustomerAddress:          stored.CustomerAddress,
		SellerAddress:            stored.SellerAddress,
		DNASampleTrackingID:      stored.DNASampleTrackingID,
		TestingPrice:             common.CloneAmount(stored.TestingPrice),
		QCPrice:                  common.CloneAmount(stored.QCPrice),
		AmountPaid:               common.CloneAmount(stored.AmountPaid),
		Status:                   escrow.OrderStatus(stored.Status),
		CreatedAt:                int64(stored.CreatedAt),
		UpdatedAt:                int64(stored.UpdatedAt),
	}, true, nil
}

// CuratedLabPut records whether lab is on the curation allowlist.
func (m *Manager) CuratedLabPut(lab [20]byte, curated bool) error {
	return m.KVPut(curatedLabKey(lab), curated)
}

// CuratedLabGet reports whether lab is on the curation allowlist.
func (m *Manager) CuratedLabGet(lab [20]byte) (bool, error) {
	var curated bool
	if _, err := m.KVGet(curatedLabKey(lab), &curated); err != nil {
		return false, err
	}
	return curated, nil
}
