package state

import (
	"fmt"
	"math/big"

	"labledger/native/common"
	"labledger/native/requests"
)

type storedRequest struct {
	Hash            [32]byte
	Requester       [20]byte
	LabAddress      [20]byte
	Country         string
	City            string
	ServiceCategory string
	StakingAmount   *big.Int
	Status          uint8
	UnstakedAt      uint64
	CreatedAt       uint64
}

func newStoredRequest(r *requests.Request) *storedRequest {
	return &storedRequest{
		Hash:            r.Hash,
		Requester:       r.Requester,
		LabAddress:      r.LabAddress,
		Country:         r.Country,
		City:            r.City,
		ServiceCategory: r.ServiceCategory,
		StakingAmount:   common.CloneAmount(r.StakingAmount),
		Status:          uint8(r.Status),
		UnstakedAt:      toStoredTime(r.UnstakedAt),
		CreatedAt:       toStoredTime(r.CreatedAt),
	}
}

func (s *storedRequest) toRequest() *requests.Request {
	return &requests.Request{
		Hash:            s.Hash,
		Requester:       s.Requester,
		LabAddress:      s.LabAddress,
		Country:         s.Country,
		City:            s.City,
		ServiceCategory: s.ServiceCategory,
		StakingAmount:   common.CloneAmount(s.StakingAmount),
		Status:          requests.Status(s.Status),
		UnstakedAt:      int64(s.UnstakedAt),
		CreatedAt:       int64(s.CreatedAt),
	}
}

type storedOffer struct {
	RequestHash  [32]byte
	LabAddress   [20]byte
	ServiceID    [32]byte
	TestingPrice *big.Int
	QCPrice      *big.Int
}

// RequestPut persists the request record.
func (m *Manager) RequestPut(r *requests.Request) error {
	if r == nil {
		return fmt.Errorf("requests: nil request")
	}
	if !r.Status.Valid() {
		return fmt.Errorf("requests: invalid status %d", r.Status)
	}
	if err := common.CheckAmount(r.StakingAmount); err != nil {
		return err
	}
	return m.KVPut(requestRecordKey(r.Hash), newStoredRequest(r))
}

// RequestGet loads the request stored under hash.
func (m *Manager) RequestGet(hash [32]byte) (*requests.Request, bool, error) {
	var stored storedRequest
	ok, err := m.KVGet(requestRecordKey(hash), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.toRequest(), true, nil
}

// ServiceOfferPut persists the offer recorded at claim time.
func (m *Manager) ServiceOfferPut(o *requests.ServiceOffer) error {
	if o == nil {
		return fmt.Errorf("requests: nil service offer")
	}
	return m.KVPut(requestOfferKey(o.RequestHash), &storedOffer{
		RequestHash:  o.RequestHash,
		LabAddress:   o.LabAddress,
		ServiceID:    o.ServiceID,
		TestingPrice: common.CloneAmount(o.TestingPrice),
		QCPrice:      common.CloneAmount(o.QCPrice),
	})
}

// ServiceOfferGet loads the offer for the request stored under hash.
func (m *Manager) ServiceOfferGet(hash [32]byte) (*requests.ServiceOffer, bool, error) {
	var stored storedOffer
	ok, err := m.KVGet(requestOfferKey(hash), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &requests.ServiceOffer{
		RequestHash:  stored.RequestHash,
		LabAddress:   stored.LabAddress,
		ServiceID:    stored.ServiceID,
		TestingPrice: common.CloneAmount(stored.TestingPrice),
		QCPrice:      common.CloneAmount(stored.QCPrice),
	}, true, nil
}

// RequestNextSequence increments and returns the registry sequence. The first
// call returns 1.
func (m *Manager) RequestNextSequence() (uint64, error) {
	var seq uint64
	if _, err := m.KVGet(requestSequenceKey, &seq); err != nil {
		return 0, err
	}
	seq++
	if err := m.KVPut(requestSequenceKey, seq); err != nil {
		return 0, err
	}
	return seq, nil
}

// RequestIndexAppend adds hash to the named index.
func (m *Manager) RequestIndexAppend(index string, hash [32]byte) error {
	return m.ListAppend(requestIndexKey(index), hash[:])
}

// RequestIndexList returns the hashes in the named index in insertion order.
func (m *Manager) RequestIndexList(index string) ([][32]byte, error) {
	raw, err := m.ListEntries(requestIndexKey(index))
	if err != nil {
		return nil, err
	}
	out := make([][32]byte, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 32 {
			return nil, fmt.Errorf("requests: corrupt index entry of %d bytes", len(entry))
		}
		var h [32]byte
		copy(h[:], entry)
		out = append(out, h)
	}
	return out, nil
}
