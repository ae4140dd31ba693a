package state

import (
	"math/big"
)

func (m *Manager) loadAmount(key []byte) (*big.Int, error) {
	var amount big.Int
	ok, err := m.KVGet(key, &amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return &amount, nil
}

func (m *Manager) storeAmount(key []byte, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	return m.KVPut(key, amount)
}

// TokenBalance returns the balance held by addr.
func (m *Manager) TokenBalance(addr [20]byte) (*big.Int, error) {
	return m.loadAmount(tokenBalanceKey(addr))
}

// SetTokenBalance overwrites the balance held by addr.
func (m *Manager) SetTokenBalance(addr [20]byte, amount *big.Int) error {
	return m.storeAmount(tokenBalanceKey(addr), amount)
}

// TokenAllowance returns the amount spender may move on behalf of owner.
func (m *Manager) TokenAllowance(owner, spender [20]byte) (*big.Int, error) {
	return m.loadAmount(tokenAllowanceKey(owner, spender))
}

// SetTokenAllowance overwrites the allowance granted by owner to spender.
func (m *Manager) SetTokenAllowance(owner, spender [20]byte, amount *big.Int) error {
	return m.storeAmount(tokenAllowanceKey(owner, spender), amount)
}

// TokenSupply returns the total amount minted.
func (m *Manager) TokenSupply() (*big.Int, error) {
	return m.loadAmount(tokenSupplyKey)
}

// SetTokenSupply overwrites the total amount minted.
func (m *Manager) SetTokenSupply(amount *big.Int) error {
	return m.storeAmount(tokenSupplyKey, amount)
}
