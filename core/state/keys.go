package state

import (
	"encoding/binary"
)

var (
	tokenBalancePrefix   = []byte("token/balance/")
	tokenAllowancePrefix = []byte("token/allowance/")
	tokenSupplyKey       = []byte("token/supply")

	requestRecordPrefix = []byte("requests/record/")
	requestOfferPrefix  = []byte("requests/offer/")
	requestIndexPrefix  = []byte("requests/index/")
	requestSequenceKey  = []byte("requests/sequence")

	orderRecordPrefix = []byte("escrow/order/")

	curatedLabPrefix = []byte("curation/lab/")

	eventRecordPrefix = []byte("events/record/")
	eventHeadKey      = []byte("events/head")
)

func prefixed(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}

func tokenBalanceKey(addr [20]byte) []byte { return prefixed(tokenBalancePrefix, addr[:]) }

func tokenAllowanceKey(owner, spender [20]byte) []byte {
	return prefixed(tokenAllowancePrefix, owner[:], spender[:])
}

func requestRecordKey(hash [32]byte) []byte { return prefixed(requestRecordPrefix, hash[:]) }

func requestOfferKey(hash [32]byte) []byte { return prefixed(requestOfferPrefix, hash[:]) }

func requestIndexKey(index string) []byte { return prefixed(requestIndexPrefix, []byte(index)) }

func orderRecordKey(id [32]byte) []byte { return prefixed(orderRecordPrefix, id[:]) }

func curatedLabKey(lab [20]byte) []byte { return prefixed(curatedLabPrefix, lab[:]) }

func eventRecordKey(seq uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return prefixed(eventRecordPrefix, buf[:])
}

func toStoredTime(ts int64) uint64 {
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}
