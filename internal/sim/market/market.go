// Package market trades against the fixed-price government counterparty and
// evaluates standing limit orders.
package market

import (
	"tappytrade.io/internal/sim/catalogs"
	"tappytrade.io/internal/sim/farm"
)

// Trade is the settled result of one sell or buy.
type Trade struct {
	Resource  string  `json:"resource"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Total     float64 `json:"total"`
}

// SellPrice is the personal government price: base price lifted by the
// player's tier bonus in the resource's category, rounded to cents.
func SellPrice(st *farm.State, r farm.Rules, resourceID string) float64 {
	def, ok := r.Cat.Resource(resourceID)
	if !ok {
		return 0
	}
	cat, ok := r.Cat.Government.CategoryOf(resourceID)
	if !ok {
		return def.Price
	}
	bonus := r.Cat.Government.Bonus(st.GovTiers[cat].CurrentTier)
	return catalogs.RoundCents(def.Price * (1 + bonus))
}

// BuyPrice is what the government charges; tier bonuses never apply.
func BuyPrice(r farm.Rules, resourceID string) float64 {
	def, _ := r.Cat.Resource(resourceID)
	return def.Price
}

func checkOrder(r farm.Rules, resourceID string, qty int) error {
	if _, ok := r.Cat.Resource(resourceID); !ok {
		return farm.Reject(farm.InvalidTarget, "unknown resource %q", resourceID)
	}
	if qty <= 0 {
		return farm.Reject(farm.InvalidTarget, "quantity must be positive")
	}
	return nil
}

// Sell moves qty of resourceID from inventory to the government.
func Sell(st *farm.State, r farm.Rules, resourceID string, qty int) (Trade, error) {
	if err := checkOrder(r, resourceID, qty); err != nil {
		return Trade{}, err
	}
	if st.Inventory.Count(resourceID) < qty {
		return Trade{}, farm.Reject(farm.InsufficientInventory, "have %d %s", st.Inventory.Count(resourceID), resourceID)
	}
	price := SellPrice(st, r, resourceID)
	total := price * float64(qty)

	st.Inventory.Remove(resourceID, qty)
	st.Money += total
	st.Stats.Sold += qty
	st.Stats.Earned += total
	recordSale(st, r, resourceID, qty)

	return Trade{Resource: resourceID, Quantity: qty, UnitPrice: price, Total: total}, nil
}

// SellAll sells every held resource through Sell, in resource id order.
func SellAll(st *farm.State, r farm.Rules) []Trade {
	var out []Trade
	for _, id := range st.Inventory.IDs() {
		tr, err := Sell(st, r, id, st.Inventory.Count(id))
		if err != nil {
			continue
		}
		out = append(out, tr)
	}
	return out
}

// Buy purchases qty of resourceID at base price.
func Buy(st *farm.State, r farm.Rules, resourceID string, qty int) (Trade, error) {
	if err := checkOrder(r, resourceID, qty); err != nil {
		return Trade{}, err
	}
	price := BuyPrice(r, resourceID)
	cost := price * float64(qty)
	if st.Money < cost {
		return Trade{}, farm.Reject(farm.InsufficientFunds, "need %.2f", cost)
	}
	if st.Inventory.Total()+qty > r.Capacity(st) {
		return Trade{}, farm.Reject(farm.InventoryFull, "no room for %d %s", qty, resourceID)
	}
	st.Money -= cost
	st.Inventory.Add(resourceID, qty)
	return Trade{Resource: resourceID, Quantity: qty, UnitPrice: price, Total: cost}, nil
}

// recordSale advances the government tier of the resource's category.
func recordSale(st *farm.State, r farm.Rules, resourceID string, qty int) {
	cat, ok := r.Cat.Government.CategoryOf(resourceID)
	if !ok {
		return
	}
	t := st.GovTiers[cat]
	t.TotalSold += qty
	t.CurrentTier = r.Cat.Government.TierFor(t.TotalSold)
	st.GovTiers[cat] = t
}
