package requests

import (
	"fmt"
	"math/big"

	ethmath "github.com/ethereum/go-ethereum/common/math"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"labledger/native/common"
)

// Status enumerates the request lifecycle. The numeric values are part of the
// event and API surface.
type Status uint8

const (
	StatusOpen Status = iota
	StatusClaimed
	StatusProcessed
	StatusUnstaked
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "OPEN"
	case StatusClaimed:
		return "CLAIMED"
	case StatusProcessed:
		return "PROCESSED"
	case StatusUnstaked:
		return "UNSTAKED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
}

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool { return s <= StatusUnstaked }

// Request is a staked solicitation for a lab service.
type Request struct {
	Hash            [32]byte
	Requester       [20]byte
	LabAddress      [20]byte
	Country         string
	City            string
	ServiceCategory string
	StakingAmount   *big.Int
	Status          Status
	UnstakedAt      int64
	CreatedAt       int64
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	clone := *r
	clone.StakingAmount = common.CloneAmount(r.StakingAmount)
	return &clone
}

// ServiceOffer is the price a curated lab quoted when claiming a request.
type ServiceOffer struct {
	RequestHash  [32]byte
	LabAddress   [20]byte
	ServiceID    [32]byte
	TestingPrice *big.Int
	QCPrice      *big.Int
}

// Clone returns a deep copy of the offer.
func (o *ServiceOffer) Clone() *ServiceOffer {
	if o == nil {
		return nil
	}
	clone := *o
	clone.TestingPrice = common.CloneAmount(o.TestingPrice)
	clone.QCPrice = common.CloneAmount(o.QCPrice)
	return &clone
}

// TotalPrice returns TestingPrice + QCPrice.
func (o *ServiceOffer) TotalPrice() (*big.Int, error) {
	return common.SafeAdd(o.TestingPrice, o.QCPrice)
}

// ComputeHash derives the request identifier as keccak256 over the tightly
// packed requester, country, city, category, stake and sequence. The stake and
// sequence are encoded as 32-byte big-endian words.
func ComputeHash(requester [20]byte, country, city, category string, stake *big.Int, seq uint64) [32]byte {
	buf := make([]byte, 0, 20+len(country)+len(city)+len(category)+64)
	buf = append(buf, requester[:]...)
	buf = append(buf, country...)
	buf = append(buf, city...)
	buf = append(buf, category...)
	buf = append(buf, ethmath.U256Bytes(common.CloneAmount(stake))...)
	buf = append(buf, ethmath.U256Bytes(new(big.Int).SetUint64(seq))...)
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(buf))
	return out
}

// Index keys. Lengths are included so free-text values cannot collide across
// segment boundaries.

// IndexAll lists every request in creation order.
func IndexAll() string { return "all" }

// IndexCountry lists the requests created for country.
func IndexCountry(country string) string {
	return fmt.Sprintf("country/%d:%s", len(country), country)
}

// IndexCountryCity lists the requests created for the (country, city) pair.
func IndexCountryCity(country, city string) string {
	return fmt.Sprintf("country-city/%d:%s/%d:%s", len(country), country, len(city), city)
}

// IndexRequester lists the requests created by requester.
func IndexRequester(requester [20]byte) string {
	return fmt.Sprintf("requester/%x", requester[:])
}
