package market

import (
	"reflect"
	"testing"

	"tappytrade.io/internal/sim/catalogs"
	"tappytrade.io/internal/sim/farm"
	"tappytrade.io/internal/sim/tuning"
)

func setup() (*farm.State, farm.Rules) {
	r := farm.Rules{Cat: catalogs.MustDefault(), Tune: tuning.Defaults()}
	return farm.New(r, 0), r
}

func TestSellFiveWood(t *testing.T) {
	st, r := setup()
	st.Inventory.Add("wood", 5)
	tr, err := Sell(st, r, "wood", 5)
	if err != nil {
		t.Fatalf("Sell: %v", err)
	}
	if tr.Total != 25 || st.Money != 25 || st.Inventory["wood"] != 0 {
		t.Fatalf("trade %+v money %v inv %v", tr, st.Money, st.Inventory)
	}
	if st.Stats.Sold != 5 || st.Stats.Earned != 25 {
		t.Fatalf("stats %+v", st.Stats)
	}
	if got := st.GovTiers["forestry"]; got.TotalSold != 5 || got.CurrentTier != 0 {
		t.Fatalf("forestry tier %+v", got)
	}
}

func TestSellRejectsShortInventory(t *testing.T) {
	st, r := setup()
	st.Inventory.Add("wood", 2)
	before := st.Clone()
	if _, err := Sell(st, r, "wood", 3); farm.CodeOf(err) != farm.InsufficientInventory {
		t.Fatalf("want INSUFFICIENT_INVENTORY, got %v", err)
	}
	if _, err := Sell(st, r, "unobtainium", 1); farm.CodeOf(err) != farm.InvalidTarget {
		t.Fatalf("want INVALID_TARGET, got %v", err)
	}
	if !reflect.DeepEqual(before, st) {
		t.Fatalf("rejected sell mutated state")
	}
}

func TestTierBonusRaisesSellPrice(t *testing.T) {
	st, r := setup()
	st.GovTiers["farming"] = farm.GovTier{TotalSold: 99, CurrentTier: 0}
	st.Inventory.Add("wheat", 10)
	if _, err := Sell(st, r, "wheat", 1); err != nil {
		t.Fatalf("Sell: %v", err)
	}
	if got := st.GovTiers["farming"].CurrentTier; got != 1 {
		t.Fatalf("tier %d want 1", got)
	}
	if got := SellPrice(st, r, "wheat"); got != 6.12 {
		t.Fatalf("tier 1 wheat price %v", got)
	}
	if got := BuyPrice(r, "wheat"); got != 6 {
		t.Fatalf("buy price %v", got)
	}
}

func TestBuy(t *testing.T) {
	st, r := setup()
	st.Money = 100
	if _, err := Buy(st, r, "stone", 30); farm.CodeOf(err) != farm.InsufficientFunds {
		t.Fatalf("want INSUFFICIENT_FUNDS, got %v", err)
	}
	st.Inventory.Add("wood", 995)
	if _, err := Buy(st, r, "stone", 10); farm.CodeOf(err) != farm.InventoryFull {
		t.Fatalf("want INVENTORY_FULL, got %v", err)
	}
	tr, err := Buy(st, r, "stone", 5)
	if err != nil || tr.Total != 20 || st.Money != 80 || st.Inventory["stone"] != 5 {
		t.Fatalf("trade %+v err %v money %v", tr, err, st.Money)
	}
	if st.Stats.Sold != 0 {
		t.Fatalf("buy touched sell stats")
	}
}

func TestSellAll(t *testing.T) {
	st, r := setup()
	st.Inventory.Add("wood", 2)
	st.Inventory.Add("bread", 1)
	trades := SellAll(st, r)
	if len(trades) != 2 || st.Money != 35 || st.Inventory.Total() != 0 || st.Stats.Sold != 3 {
		t.Fatalf("trades %+v money %v", trades, st.Money)
	}
}

func TestSellLimitOrderInclusiveBoundary(t *testing.T) {
	st, r := setup()
	st.Inventory.Add("herbs", 4)
	o, err := CreateLimitOrder(st, r, farm.Sell, "herbs", 4, 10, 1)
	if err != nil || o.ID == "" {
		t.Fatalf("create: %+v %v", o, err)
	}
	fired := EvaluateLimitOrders(st, r)
	if len(fired) != 1 || len(st.LimitOrders) != 0 {
		t.Fatalf("fired %+v remaining %+v", fired, st.LimitOrders)
	}
	if st.Money != 40 || st.Stats.Sold != 4 {
		t.Fatalf("money %v stats %+v", st.Money, st.Stats)
	}
}

func TestLimitOrdersRetryAndSkip(t *testing.T) {
	st, r := setup()
	sell, _ := CreateLimitOrder(st, r, farm.Sell, "herbs", 4, 10, 1)   // triggers, no herbs
	hi, _ := CreateLimitOrder(st, r, farm.Sell, "wood", 1, 6, 1)       // price 5 < 6
	buy, _ := CreateLimitOrder(st, r, farm.Buy, "stone", 10, 4, 1)     // triggers, no money
	cheap, _ := CreateLimitOrder(st, r, farm.Buy, "stone", 10, 3.5, 1) // price 4 > 3.5

	if fired := EvaluateLimitOrders(st, r); len(fired) != 0 {
		t.Fatalf("nothing should fire: %+v", fired)
	}
	if len(st.LimitOrders) != 4 {
		t.Fatalf("failed orders dropped: %+v", st.LimitOrders)
	}

	st.Money = 40
	fired := EvaluateLimitOrders(st, r)
	if len(fired) != 1 || fired[0].Order.ID != buy.ID {
		t.Fatalf("fired %+v", fired)
	}
	if st.Inventory["stone"] != 10 || st.Money != 0 {
		t.Fatalf("buy not settled: %v %v", st.Inventory, st.Money)
	}
	want := []string{sell.ID, hi.ID, cheap.ID}
	for i, o := range st.LimitOrders {
		if o.ID != want[i] {
			t.Fatalf("order %d is %s want %s", i, o.ID, want[i])
		}
	}
}

func TestCreateAndCancelLimitOrder(t *testing.T) {
	st, r := setup()
	if _, err := CreateLimitOrder(st, r, "hold", "wood", 1, 1, 0); farm.CodeOf(err) != farm.InvalidTarget {
		t.Fatalf("bad direction accepted: %v", err)
	}
	if _, err := CreateLimitOrder(st, r, farm.Buy, "wood", 0, 1, 0); farm.CodeOf(err) != farm.InvalidTarget {
		t.Fatalf("zero quantity accepted: %v", err)
	}
	if _, err := CreateLimitOrder(st, r, farm.Buy, "wood", 1, -2, 0); farm.CodeOf(err) != farm.InvalidTarget {
		t.Fatalf("negative price accepted: %v", err)
	}
	o, err := CreateLimitOrder(st, r, farm.Buy, "wood", 1, 1, 7)
	if err != nil || o.CreatedAt != 7 {
		t.Fatalf("create: %+v %v", o, err)
	}
	if err := CancelLimitOrder(st, o.ID); err != nil || len(st.LimitOrders) != 0 {
		t.Fatalf("cancel: %v %+v", err, st.LimitOrders)
	}
	if err := CancelLimitOrder(st, o.ID); farm.CodeOf(err) != farm.InvalidTarget {
		t.Fatalf("double cancel: %v", err)
	}
}
