package market

import (
	"github.com/google/uuid"

	"tappytrade.io/internal/sim/farm"
)

// CreateLimitOrder appends a standing order. Nothing is reserved: the order's
// preconditions are checked when it triggers.
func CreateLimitOrder(st *farm.State, r farm.Rules, dir farm.Direction, resourceID string, qty int, target float64, nowMillis int64) (farm.LimitOrder, error) {
	if dir != farm.Buy && dir != farm.Sell {
		return farm.LimitOrder{}, farm.Reject(farm.InvalidTarget, "unknown direction %q", dir)
	}
	if err := checkOrder(r, resourceID, qty); err != nil {
		return farm.LimitOrder{}, err
	}
	if !(target > 0) {
		return farm.LimitOrder{}, farm.Reject(farm.InvalidTarget, "target price must be positive")
	}
	o := farm.LimitOrder{
		ID:          uuid.NewString(),
		Direction:   dir,
		ResourceID:  resourceID,
		Quantity:    qty,
		TargetPrice: target,
		CreatedAt:   nowMillis,
	}
	st.LimitOrders = append(st.LimitOrders, o)
	return o, nil
}

func CancelLimitOrder(st *farm.State, id string) error {
	i := st.LimitOrderIndex(id)
	if i < 0 {
		return farm.Reject(farm.InvalidTarget, "no limit order %q", id)
	}
	st.LimitOrders = append(st.LimitOrders[:i], st.LimitOrders[i+1:]...)
	return nil
}

// Execution records a limit order that fired.
type Execution struct {
	Order farm.LimitOrder
	Trade Trade
}

// EvaluateLimitOrders fires every order whose price condition holds. Orders
// that trigger but fail (short inventory, no money, no room) stay for the
// next cycle. Executed orders are removed.
func EvaluateLimitOrders(st *farm.State, r farm.Rules) []Execution {
	if len(st.LimitOrders) == 0 {
		return nil
	}
	var fired []Execution
	kept := st.LimitOrders[:0]
	for _, o := range st.LimitOrders {
		tr, ok := trigger(st, r, o)
		if ok {
			fired = append(fired, Execution{Order: o, Trade: tr})
			continue
		}
		kept = append(kept, o)
	}
	st.LimitOrders = kept
	return fired
}

func trigger(st *farm.State, r farm.Rules, o farm.LimitOrder) (Trade, bool) {
	switch o.Direction {
	case farm.Sell:
		if SellPrice(st, r, o.ResourceID) < o.TargetPrice {
			return Trade{}, false
		}
		tr, err := Sell(st, r, o.ResourceID, o.Quantity)
		return tr, err == nil
	case farm.Buy:
		if BuyPrice(r, o.ResourceID) > o.TargetPrice {
			return Trade{}, false
		}
		tr, err := Buy(st, r, o.ResourceID, o.Quantity)
		return tr, err == nil
	}
	return Trade{}, false
}
