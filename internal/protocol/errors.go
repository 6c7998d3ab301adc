package protocol

import (
	"errors"

	"tappytrade.io/internal/sim/engine"
	"tappytrade.io/internal/sim/farm"
)

const (
	// Transport validation.
	ErrBadRequest = "E_BAD_REQUEST"
	ErrUnknownOp  = "E_UNKNOWN_OP"
	ErrRateLimit  = "E_RATE_LIMIT"
	ErrBusy       = "E_BUSY"
	ErrInternal   = "E_INTERNAL"

	// Rejected player actions.
	ErrInsufficientFunds     = "E_INSUFFICIENT_FUNDS"
	ErrInsufficientInventory = "E_INSUFFICIENT_INVENTORY"
	ErrInventoryFull         = "E_INVENTORY_FULL"
	ErrMissingInput          = "E_MISSING_INPUT"
	ErrWorkerCapacity        = "E_WORKER_CAPACITY_REACHED"
	ErrInvalidTarget         = "E_INVALID_TARGET"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:            {},
	ErrUnknownOp:             {},
	ErrRateLimit:             {},
	ErrBusy:                  {},
	ErrInternal:              {},
	ErrInsufficientFunds:     {},
	ErrInsufficientInventory: {},
	ErrInventoryFull:         {},
	ErrMissingInput:          {},
	ErrWorkerCapacity:        {},
	ErrInvalidTarget:         {},
}

var rejectionCodes = map[farm.Code]string{
	farm.InsufficientFunds:     ErrInsufficientFunds,
	farm.InsufficientInventory: ErrInsufficientInventory,
	farm.InventoryFull:         ErrInventoryFull,
	farm.MissingInput:          ErrMissingInput,
	farm.WorkerCapacityReached: ErrWorkerCapacity,
	farm.InvalidTarget:         ErrInvalidTarget,
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// CodeFor maps an engine error to its wire code. nil maps to "".
func CodeFor(err error) string {
	if err == nil {
		return ""
	}
	if c, ok := rejectionCodes[farm.CodeOf(err)]; ok {
		return c
	}
	if errors.Is(err, engine.ErrUnknownOp) {
		return ErrUnknownOp
	}
	return ErrInternal
}
