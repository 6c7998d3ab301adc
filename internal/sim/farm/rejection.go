package farm

import (
	"errors"
	"fmt"
)

// Code names why a player action was refused.
type Code string

const (
	InsufficientFunds     Code = "INSUFFICIENT_FUNDS"
	InsufficientInventory Code = "INSUFFICIENT_INVENTORY"
	InventoryFull         Code = "INVENTORY_FULL"
	MissingInput          Code = "MISSING_INPUT"
	WorkerCapacityReached Code = "WORKER_CAPACITY_REACHED"
	InvalidTarget         Code = "INVALID_TARGET"
)

// Rejection is a recoverable precondition failure. An operation that returns
// one has left the state untouched.
type Rejection struct {
	Code    Code
	Message string
}

func (r *Rejection) Error() string {
	if r.Message == "" {
		return string(r.Code)
	}
	return string(r.Code) + ": " + r.Message
}

func Reject(code Code, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Message: fmt.Sprintf(format, args...)}
}

func IsRejected(err error) bool {
	var r *Rejection
	return errors.As(err, &r)
}

// CodeOf returns the rejection code carried by err, or "" if err is not a rejection.
func CodeOf(err error) Code {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Code
	}
	return ""
}
