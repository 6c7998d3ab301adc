package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrBadRequest,
		ErrUnknownOp,
		ErrRateLimit,
		ErrBusy,
		ErrInternal,
		ErrInsufficientFunds,
		ErrInsufficientInventory,
		ErrInventoryFull,
		ErrMissingInput,
		ErrWorkerCapacity,
		ErrInvalidTarget,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestEveryRejectionHasAWireCode(t *testing.T) {
	for code, wire := range rejectionCodes {
		if !IsKnownCode(wire) || wire != "E_"+string(code) {
			t.Fatalf("%s maps to %s", code, wire)
		}
	}
}
