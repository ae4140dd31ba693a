// Package errors defines the failure reasons shared by the ledger modules.
// Every rejected call wraps exactly one of these sentinels so callers can
// match the reason with errors.Is regardless of the context added on top.
package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrInsufficientBalance = stderrors.New("insufficient balance")
	ErrNotAuthorized       = stderrors.New("not authorized")
	ErrInvalidState        = stderrors.New("invalid state")
	ErrNotCurated          = stderrors.New("lab has not been curated")
	ErrAlreadyClaimed      = stderrors.New("request has already been claimed")
	ErrCooldownNotElapsed  = stderrors.New("unstake cooldown not elapsed")
	ErrNotFound            = stderrors.New("not found")
	ErrNothingToRetrieve   = stderrors.New("nothing to retrieve")
	ErrInvalidAmount       = stderrors.New("invalid amount")
	ErrInvalidArgument     = stderrors.New("invalid argument")
	ErrModulePaused        = stderrors.New("module paused")

	// ErrOrderUnderpaid is a refinement of ErrInvalidState.
	ErrOrderUnderpaid = fmt.Errorf("%w: order not fully paid", ErrInvalidState)
)

// reasons is ordered so refinements are matched before their parents.
var reasons = []struct {
	err  error
	code string
}{
	{ErrOrderUnderpaid, "OrderUnderpaid"},
	{ErrInsufficientBalance, "InsufficientBalance"},
	{ErrNotAuthorized, "NotAuthorized"},
	{ErrInvalidState, "InvalidState"},
	{ErrNotCurated, "NotCurated"},
	{ErrAlreadyClaimed, "AlreadyClaimed"},
	{ErrCooldownNotElapsed, "CooldownNotElapsed"},
	{ErrNotFound, "NotFound"},
	{ErrNothingToRetrieve, "NothingToRetrieve"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrInvalidArgument, "InvalidArgument"},
	{ErrModulePaused, "ModulePaused"},
}

// Reason returns the stable reason code for err, or "Internal" when err does
// not wrap a known sentinel.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if stderrors.Is(err, r.err) {
			return r.code
		}
	}
	return "Internal"
}
