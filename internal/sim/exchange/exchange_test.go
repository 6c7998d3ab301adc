package exchange

import (
	"reflect"
	"testing"

	"tappytrade.io/internal/sim/catalogs"
	"tappytrade.io/internal/sim/farm"
	"tappytrade.io/internal/sim/tuning"
)

func setup() (*farm.State, *farm.State, farm.Rules) {
	r := farm.Rules{Cat: catalogs.MustDefault(), Tune: tuning.Defaults()}
	return farm.New(r, 0), farm.New(r, 0), r
}

func TestSellOrderLifecycle(t *testing.T) {
	alice, bob, r := setup()
	b := NewBook()
	alice.Inventory.Add("wool", 10)

	o, err := b.Post(alice, r, "alice", farm.Sell, "wool", 6, 30, 1)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if alice.Inventory["wool"] != 4 {
		t.Fatalf("items not escrowed: %v", alice.Inventory)
	}
	if _, err := b.Fill(alice, r, "alice", o.ID, 2); farm.CodeOf(err) != farm.InvalidTarget {
		t.Fatalf("self fill: %v", err)
	}
	if _, err := b.Fill(bob, r, "bob", o.ID, 2); farm.CodeOf(err) != farm.InsufficientFunds {
		t.Fatalf("want INSUFFICIENT_FUNDS, got %v", err)
	}
	bob.Money = 200
	filled, err := b.Fill(bob, r, "bob", o.ID, 3)
	if err != nil || filled.Status != Filled || filled.FilledBy != "bob" {
		t.Fatalf("fill: %+v %v", filled, err)
	}
	if bob.Money != 20 || bob.Inventory["wool"] != 6 {
		t.Fatalf("taker not settled: %v %v", bob.Money, bob.Inventory)
	}
	if _, err := b.Fill(bob, r, "bob", o.ID, 4); farm.CodeOf(err) != farm.InvalidTarget {
		t.Fatalf("double fill: %v", err)
	}

	settled := b.Claim(alice, r, "alice")
	if len(settled) != 1 || alice.Money != 180 || alice.Stats.Sold != 6 {
		t.Fatalf("claim %+v money %v", settled, alice.Money)
	}
	if again := b.Claim(alice, r, "alice"); len(again) != 0 {
		t.Fatalf("claimed twice: %+v", again)
	}
	if n := b.Prune(); n != 1 {
		t.Fatalf("pruned %d", n)
	}
}

func TestBuyOrderEscrowAndCancel(t *testing.T) {
	alice, bob, r := setup()
	b := NewBook()
	alice.Money = 100
	if _, err := b.Post(alice, r, "alice", farm.Buy, "stone", 30, 4, 1); farm.CodeOf(err) != farm.InsufficientFunds {
		t.Fatalf("want INSUFFICIENT_FUNDS, got %v", err)
	}
	o, err := b.Post(alice, r, "alice", farm.Buy, "stone", 20, 4, 1)
	if err != nil || alice.Money != 20 {
		t.Fatalf("post: %v money %v", err, alice.Money)
	}
	if open := b.Open(); len(open) != 1 || open[0].ID != o.ID {
		t.Fatalf("open %+v", open)
	}
	if _, err := b.Cancel(bob, r, "bob", o.ID); farm.CodeOf(err) != farm.InvalidTarget {
		t.Fatalf("foreign cancel: %v", err)
	}
	if _, err := b.Cancel(alice, r, "alice", o.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if alice.Money != 100 || len(b.Open()) != 0 {
		t.Fatalf("escrow not refunded: %v", alice.Money)
	}
}

func TestBuyOrderFillDeliversOnClaim(t *testing.T) {
	alice, bob, r := setup()
	b := NewBook()
	alice.Money = 80
	o, _ := b.Post(alice, r, "alice", farm.Buy, "stone", 20, 4, 1)

	before := bob.Clone()
	if _, err := b.Fill(bob, r, "bob", o.ID, 2); farm.CodeOf(err) != farm.InsufficientInventory {
		t.Fatalf("want INSUFFICIENT_INVENTORY, got %v", err)
	}
	if !reflect.DeepEqual(before, bob) {
		t.Fatalf("failed fill mutated taker")
	}
	bob.Inventory.Add("stone", 25)
	if _, err := b.Fill(bob, r, "bob", o.ID, 2); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if bob.Money != 80 || bob.Inventory["stone"] != 5 {
		t.Fatalf("taker %v %v", bob.Money, bob.Inventory)
	}

	alice.Inventory.Add("herbs", 990)
	if got := b.Claim(alice, r, "alice"); len(got) != 0 {
		t.Fatalf("claimed without room: %+v", got)
	}
	alice.Inventory.Remove("herbs", 10)
	if got := b.Claim(alice, r, "alice"); len(got) != 1 || alice.Inventory["stone"] != 20 {
		t.Fatalf("claim %+v inv %v", got, alice.Inventory)
	}
	if o2, _ := b.Get(o.ID); o2.Status != Settled {
		t.Fatalf("status %s", o2.Status)
	}
}
