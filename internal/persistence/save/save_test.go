package save

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"reflect"
	"testing"

	"tappytrade.io/internal/sim/catalogs"
	"tappytrade.io/internal/sim/estate"
	"tappytrade.io/internal/sim/farm"
	"tappytrade.io/internal/sim/harvest"
	"tappytrade.io/internal/sim/market"
	"tappytrade.io/internal/sim/progress"
	"tappytrade.io/internal/sim/tuning"
)

const now = int64(1_700_000_000_000)

func testRules() farm.Rules {
	return farm.Rules{Cat: catalogs.MustDefault(), Tune: tuning.Defaults()}
}

func playedState(t *testing.T, r farm.Rules) *farm.State {
	t.Helper()
	st := farm.New(r, now)
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 6; i++ {
		if _, err := harvest.Harvest(st, r, rng, 0, 0); err != nil {
			t.Fatalf("harvest: %v", err)
		}
	}
	st.Money = 3000
	if _, err := estate.HireWorker(st, r, 0, 1); err != nil {
		t.Fatalf("hire: %v", err)
	}
	if err := estate.Build(st, r, 0, 2, "forest"); err != nil {
		t.Fatalf("build: %v", err)
	}
	market.SellAll(st, r)
	if _, err := market.CreateLimitOrder(st, r, farm.Buy, "wood", 3, 4, now); err != nil {
		t.Fatalf("limit order: %v", err)
	}
	progress.CheckAchievements(st, r.Cat, now)
	if err := estate.Rename(st, "Sunny Acres"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	return st
}

func TestRoundTrip(t *testing.T) {
	r := testRules()
	st := playedState(t, r)

	data, err := Encode(st)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var doc Doc
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := CheckSchema(doc); err != nil {
		t.Fatalf("encoded save fails its schema: %v", err)
	}

	got, err := Decode(data, r, 0, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(st, got) {
		t.Fatalf("round trip mismatch:\nwant %+v\ngot  %+v", st, got)
	}
}

func TestDecodeClampsCorruptFields(t *testing.T) {
	r := testRules()
	raw := `{
	  "saveSchemaVersion": 3,
	  "money": "not-a-number",
	  "inventory": {"wood": 3, "stone": 2.7, "herbs": -1, "unobtainium": 4, "berries": "lots"},
	  "plots": [{"subs": [
	    {"type": "forest", "storedAmount": 99, "level": 9},
	    {"type": "teleporter", "storedAmount": 1, "level": 1},
	    "junk"
	  ]}],
	  "workers": [{"plot": 0, "sub": 0}, {"plot": 1.5, "sub": 0}, {"plot": "x", "sub": 1}],
	  "statistics": {"harvested": -4, "sold": 3, "earned": 15.5, "built": 1},
	  "limitOrders": [
	    {"id": "a", "direction": "sell", "resourceId": "wood", "quantity": 2, "targetPrice": 6, "createdAt": 1},
	    {"id": "b", "direction": "hold", "resourceId": "wood", "quantity": 2, "targetPrice": 6},
	    {"id": "c", "direction": "buy", "resourceId": "wood", "quantity": 0, "targetPrice": 6}
	  ],
	  "governmentTiers": {"forestry": {"totalSold": 150, "currentTier": 17}, "moon": {"totalSold": 5}},
	  "lastUpdateTimestamp": 1700000000000
	}`
	st, err := Decode([]byte(raw), r, now, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Money != 0 {
		t.Fatalf("money %v want 0", st.Money)
	}
	if want := (farm.Inventory{"wood": 3, "stone": 2}); !reflect.DeepEqual(st.Inventory, want) {
		t.Fatalf("inventory %v", st.Inventory)
	}
	subs := st.Plots[0].Subs
	if len(subs) != 3 || subs[0].Level != 5 || subs[0].Stored != 50 {
		t.Fatalf("forest clamp: %+v", subs)
	}
	if subs[1] != r.FreshWild() || subs[2] != r.FreshWild() {
		t.Fatalf("unknown subplots should become wild: %+v", subs[1:])
	}
	if len(st.Workers) != 1 {
		t.Fatalf("workers %+v", st.Workers)
	}
	if st.Stats.Harvested != 0 || st.Stats.Sold != 3 || st.Stats.Earned != 15.5 {
		t.Fatalf("stats %+v", st.Stats)
	}
	if len(st.LimitOrders) != 1 || st.LimitOrders[0].ID != "a" {
		t.Fatalf("orders %+v", st.LimitOrders)
	}
	if _, ok := st.GovTiers["moon"]; ok {
		t.Fatalf("unknown category kept")
	}
	if tier := st.GovTiers["forestry"]; tier.CurrentTier != r.Cat.Government.TierFor(150) {
		t.Fatalf("tier not recomputed: %+v", tier)
	}
	if st.FarmName != DefaultFarmName {
		t.Fatalf("farm name %q", st.FarmName)
	}
}

func TestDecodeReplacesNonArrays(t *testing.T) {
	r := testRules()
	st, err := Decode([]byte(`{"saveSchemaVersion":3,"money":12,"plots":{},"workers":7,"inventory":[]}`), r, now, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	fresh := farm.New(r, now)
	if !reflect.DeepEqual(st.Plots, fresh.Plots) || len(st.Workers) != 0 || st.Workers == nil {
		t.Fatalf("plots %+v workers %+v", st.Plots, st.Workers)
	}
	if st.Money != 12 || st.LastUpdate != now {
		t.Fatalf("money %v last update %d", st.Money, st.LastUpdate)
	}
}

func TestDecodeMalformedIsNotFound(t *testing.T) {
	r := testRules()
	for _, raw := range []string{``, `{`, `[]`, `null`, `"save"`} {
		if _, err := Decode([]byte(raw), r, now, nil); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%q: want ErrNotFound, got %v", raw, err)
		}
	}
}

func TestMigrateVersionOne(t *testing.T) {
	r := testRules()
	raw := `{
	  "money": 50,
	  "cap": 40,
	  "inv": {"wood": 3},
	  "plots": [{"subs": [{"t": "forest", "c": 4, "lv": 2}, {"t": "wild", "c": 10, "lv": 1}, {"t": "wild", "c": 2, "lv": 1}]}],
	  "workers": [{"plot": 0, "sub": 0}],
	  "stats": {"harvested": 12, "sold": 3, "earned": 15, "built": 1},
	  "ach": {"b1": 1699999999000},
	  "limitOrders": [{"type": "sell", "res": "wood", "qty": 2, "price": 6, "created": 1699999999000}],
	  "lastUpdate": 1699999990000
	}`
	var doc Doc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if VersionOf(doc) != 1 {
		t.Fatalf("version %d", VersionOf(doc))
	}
	Migrate(doc, r.Tune.BaseInventoryCap)
	if VersionOf(doc) != farm.SchemaVersion {
		t.Fatalf("migrated version %d", VersionOf(doc))
	}
	for _, gone := range []string{"cap", "inv", "stats", "ach", "lastUpdate", "saveVersion"} {
		if _, ok := doc[gone]; ok {
			t.Fatalf("%s survived migration", gone)
		}
	}
	if err := CheckSchema(doc); err != nil {
		t.Fatalf("migrated document fails schema: %v", err)
	}

	st := Validate(doc, r, now)
	if st.Money != 50 || st.Inventory["wood"] != 3 || st.LastUpdate != 1699999990000 {
		t.Fatalf("state %+v", st)
	}
	if got := st.Plots[0].Subs[0]; got != (farm.Subplot{Type: "forest", Level: 2, Stored: 4}) {
		t.Fatalf("subplot %+v", got)
	}
	if len(st.LimitOrders) != 1 || st.LimitOrders[0].ID == "" || st.LimitOrders[0].Direction != farm.Sell {
		t.Fatalf("orders %+v", st.LimitOrders)
	}
	if st.FarmName != DefaultFarmName || st.Achievements["b1"] != 1699999999000 || st.Stats.Built != 1 {
		t.Fatalf("backfill: %+v", st)
	}
}

type recordingReplica struct{ players []string }

func (r *recordingReplica) Enqueue(player string, _ []byte) bool {
	r.players = append(r.players, player)
	return true
}

func TestGatewayLoadSave(t *testing.T) {
	r := testRules()
	ctx := context.Background()
	g := NewGateway(NewMemStore(), r, nil, nil)
	rep := &recordingReplica{}
	g.AddReplicator(rep)

	if _, err := g.Load(ctx, "p1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("first run: %v", err)
	}
	st := playedState(t, r)
	if err := g.Save(ctx, "p1", st); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := g.Load(ctx, "p1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(st, got) {
		t.Fatalf("gateway round trip mismatch")
	}
	if len(rep.players) != 1 || rep.players[0] != "p1" {
		t.Fatalf("replica saw %v", rep.players)
	}
}
