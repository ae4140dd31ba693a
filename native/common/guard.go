package common

import (
	"fmt"

	ledgererrors "labledger/core/errors"
)

// Module names recognised by the pause guard.
const (
	ModuleRequests = "requests"
	ModuleEscrow   = "escrow"
	ModuleCuration = "curation"
	ModuleToken    = "token"
)

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%s: %w", module, ledgererrors.ErrModulePaused)
	}
	return nil
}

// StaticPauses is a PauseView backed by a fixed set of module names.
type StaticPauses map[string]bool

func (s StaticPauses) IsPaused(module string) bool { return s[module] }
