package protocol_test

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"tappytrade.io/internal/protocol"
	"tappytrade.io/internal/sim/catalogs"
	"tappytrade.io/internal/sim/engine"
	"tappytrade.io/internal/sim/exchange"
	"tappytrade.io/internal/sim/farm"
	"tappytrade.io/internal/sim/tuning"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// asJSON round-trips v so the validator sees what a client would.
func asJSON(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestSchemas_ValidateServerMessages(t *testing.T) {
	cat := catalogs.MustDefault()
	r := farm.Rules{Cat: cat, Tune: tuning.Defaults()}
	st := farm.New(r, 1000)
	st.Workers = append(st.Workers, farm.Worker{Plot: 0, Sub: 1})
	st.Inventory.Add("wood", 3)

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       "s1",
		Player:          "p1",
		Catalogs:        cat.Digests(),
		Tuning:          protocol.TuningSummary{FrameIntervalMs: 100, WorkerIntervalSec: 5, MaxWorkers: 10, MaxSubplotLevel: 5},
		CatchUp:         &engine.CatchUpSummary{OfflineSec: 7200, AppliedSec: 7200, WorkerCycles: 1440, Harvests: 1440, Gained: map[string]int{"wood": 1440}},
	}
	if err := compile(t, "welcome.schema.json").Validate(asJSON(t, welcome)); err != nil {
		t.Fatalf("welcome: %v", err)
	}

	state := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Seq:             3,
		State:           protocol.BuildState(st, r, 1000),
		Offers: []exchange.Order{{
			ID: "o1", Owner: "p2", Side: farm.Sell, ResourceID: "wood", Quantity: 2, UnitPrice: 6, Status: exchange.Open,
		}},
	}
	if err := compile(t, "state.schema.json").Validate(asJSON(t, state)); err != nil {
		t.Fatalf("state: %v", err)
	}

	resSchema := compile(t, "result.schema.json")
	ok := protocol.NewResult("c1", engine.Result{Data: map[string]float64{"cost": 500}})
	if err := resSchema.Validate(asJSON(t, ok)); err != nil {
		t.Fatalf("ok result: %v", err)
	}
	rej := protocol.NewResult("c2", engine.Result{Err: farm.Reject(farm.InsufficientFunds, "need 500")})
	if err := resSchema.Validate(asJSON(t, rej)); err != nil {
		t.Fatalf("rejected result: %v", err)
	}
	if err := resSchema.Validate(asJSON(t, protocol.ResultMsg{Type: protocol.TypeResult, ProtocolVersion: "1.0", Ref: "c3"})); err == nil {
		t.Fatalf("failed result without code should not validate")
	}
}

func TestSchemas_Cmd(t *testing.T) {
	s := compile(t, "cmd.schema.json")
	var good any
	_ = json.Unmarshal([]byte(`{"type":"CMD","id":"c1","op":"SELL","args":{"resource":"wood","qty":5}}`), &good)
	if err := s.Validate(good); err != nil {
		t.Fatalf("sell: %v", err)
	}
	var bad any
	_ = json.Unmarshal([]byte(`{"type":"CMD","id":"c1","op":"TELEPORT"}`), &bad)
	if err := s.Validate(bad); err == nil {
		t.Fatalf("unknown op accepted")
	}

	var msg protocol.CmdMsg
	if err := json.Unmarshal([]byte(`{"type":"CMD","id":"c9","op":"BUILD","args":{"plot":1,"sub":2,"building":"sawmill"}}`), &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	cmd := msg.Command()
	if cmd.Op != engine.OpBuild || cmd.Plot != 1 || cmd.Sub != 2 || cmd.Building != "sawmill" {
		t.Fatalf("command %+v", cmd)
	}
}

func TestCodeFor(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{farm.Reject(farm.InventoryFull, "full"), protocol.ErrInventoryFull},
		{farm.Reject(farm.WorkerCapacityReached, "max"), protocol.ErrWorkerCapacity},
		{engine.ErrUnknownOp, protocol.ErrUnknownOp},
		{errors.New("disk"), protocol.ErrInternal},
	}
	for _, tc := range cases {
		got := protocol.CodeFor(tc.err)
		if got != tc.want || !protocol.IsKnownCode(got) {
			t.Fatalf("CodeFor(%v)=%q want %q", tc.err, got, tc.want)
		}
	}
}
