package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"labledger/crypto"
	"labledger/native/common"
	"labledger/storage"
)

var knownModules = map[string]bool{
	common.ModuleRequests: true,
	common.ModuleEscrow:   true,
	common.ModuleCuration: true,
	common.ModuleToken:    true,
}

// GenesisAmount is a decoded genesis allocation.
type GenesisAmount struct {
	Address [20]byte
	Amount  *big.Int
}

// Validate reports every problem that would stop the node from starting.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ListenAddress) == "" {
		errs = append(errs, errors.New("ListenAddress must not be empty"))
	}
	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, errors.New("DataDir must not be empty"))
	}
	switch strings.ToLower(strings.TrimSpace(c.StorageBackend)) {
	case "", storage.BackendLevelDB, storage.BackendBolt:
	default:
		errs = append(errs, fmt.Errorf("StorageBackend: unknown backend %q", c.StorageBackend))
	}
	if _, err := crypto.ParseAddress(c.DAOAdmin); err != nil {
		errs = append(errs, fmt.Errorf("DAOAdmin: %w", err))
	}
	if _, err := crypto.ParseAddress(c.EscrowAdmin); err != nil {
		errs = append(errs, fmt.Errorf("EscrowAdmin: %w", err))
	}
	if _, err := c.Cooldown(); err != nil {
		errs = append(errs, err)
	}
	for _, module := range c.PausedModules {
		if !knownModules[module] {
			errs = append(errs, fmt.Errorf("PausedModules: unknown module %q", module))
		}
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.HMACSecret) == "" {
		errs = append(errs, errors.New("auth.HMACSecret required when auth is enabled"))
	}
	if _, err := c.ClockSkew(); err != nil {
		errs = append(errs, err)
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rate_limit values must not be negative"))
	}
	if _, err := c.GenesisAmounts(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Admins returns the DAO and escrow administrator addresses.
func (c *Config) Admins() (dao, escrow [20]byte, err error) {
	if dao, err = crypto.ParseAddress(c.DAOAdmin); err != nil {
		return dao, escrow, fmt.Errorf("DAOAdmin: %w", err)
	}
	if escrow, err = crypto.ParseAddress(c.EscrowAdmin); err != nil {
		return dao, escrow, fmt.Errorf("EscrowAdmin: %w", err)
	}
	return dao, escrow, nil
}

// Cooldown parses UnstakeCooldown, falling back to the 144h default.
func (c *Config) Cooldown() (time.Duration, error) {
	raw := strings.TrimSpace(c.UnstakeCooldown)
	if raw == "" {
		raw = DefaultUnstakeCooldown
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("UnstakeCooldown: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("UnstakeCooldown must be positive")
	}
	return d, nil
}

func (c *Config) ClockSkew() (time.Duration, error) {
	raw := strings.TrimSpace(c.Auth.ClockSkew)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("auth.ClockSkew: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("auth.ClockSkew must not be negative")
	}
	return d, nil
}

// GenesisAmounts decodes the genesis allocations.
func (c *Config) GenesisAmounts() ([]GenesisAmount, error) {
	out := make([]GenesisAmount, 0, len(c.Genesis.Allocations))
	for i, alloc := range c.Genesis.Allocations {
		addr, err := crypto.ParseAddress(alloc.Address)
		if err != nil {
			return nil, fmt.Errorf("genesis.Allocations[%d].Address: %w", i, err)
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(alloc.Amount), 10)
		if !ok {
			return nil, fmt.Errorf("genesis.Allocations[%d].Amount: invalid integer %q", i, alloc.Amount)
		}
		if err := common.CheckPositive(amount); err != nil {
			return nil, fmt.Errorf("genesis.Allocations[%d].Amount: %w", i, err)
		}
		out = append(out, GenesisAmount{Address: addr, Amount: amount})
	}
	return out, nil
}
