package common

import (
	"fmt"

	ledgererrors "labledger/core/errors"
	"labledger/crypto"
)

// custodyModules hold balances on behalf of the ledger. Their addresses are
// derived from public strings, so no external key controls them.
var custodyModules = []string{ModuleRequests, ModuleEscrow}

var moduleAccounts = func() map[[20]byte]string {
	out := make(map[[20]byte]string, len(custodyModules))
	for _, name := range custodyModules {
		out[crypto.ModuleAddress(name)] = name
	}
	return out
}()

// IsModuleAccount reports whether addr is a module custody address.
func IsModuleAccount(addr [20]byte) bool {
	_, ok := moduleAccounts[addr]
	return ok
}

// GuardCaller rejects module custody addresses acting as external callers.
// Custody only moves through the owning module's transitions.
func GuardCaller(caller [20]byte) error {
	if name, ok := moduleAccounts[caller]; ok {
		return fmt.Errorf("%s custody account cannot act as a caller: %w", name, ledgererrors.ErrNotAuthorized)
	}
	return nil
}
