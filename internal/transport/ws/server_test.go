package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tappytrade.io/internal/persistence/save"
	"tappytrade.io/internal/protocol"
	"tappytrade.io/internal/sim/catalogs"
	"tappytrade.io/internal/sim/clock"
	"tappytrade.io/internal/sim/exchange"
	"tappytrade.io/internal/sim/farm"
	"tappytrade.io/internal/sim/farms"
	"tappytrade.io/internal/sim/tuning"
)

func startServer(t *testing.T, tune tuning.Tuning, origins ...string) *httptest.Server {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	cats := catalogs.MustDefault()
	book := exchange.NewBook()
	m, err := farms.NewManager(farms.Config{
		Catalogs: cats,
		Tuning:   tune,
		Gateway:  save.NewGateway(save.NewMemStore(), farm.Rules{Cat: cats, Tune: tune}, clk, nil),
		Book:     book,
		Clock:    clk,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	mux := http.NewServeMux()
	ws := NewServer(m, book, clk, nil)
	ws.AllowOrigins(origins)
	mux.Handle("/v1/ws", ws.Handler())
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		m.Close()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server, player string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws?player=" + player
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readType skips frames until one of the wanted type arrives.
func readType(t *testing.T, conn *websocket.Conn, typ string) []byte {
	t.Helper()
	for {
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if base.Type == typ {
			return msg
		}
	}
}

func sendCmd(t *testing.T, conn *websocket.Conn, id, op string, args protocol.CmdArgs) {
	t.Helper()
	b, _ := json.Marshal(protocol.CmdMsg{Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, ID: id, Op: op, Args: args})
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readResult(t *testing.T, conn *websocket.Conn) protocol.ResultMsg {
	t.Helper()
	var res protocol.ResultMsg
	if err := json.Unmarshal(readType(t, conn, protocol.TypeResult), &res); err != nil {
		t.Fatalf("result: %v", err)
	}
	return res
}

func TestWelcomeStateAndCommand(t *testing.T) {
	srv := startServer(t, tuning.Defaults())
	conn := dial(t, srv, "alice")

	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(readType(t, conn, protocol.TypeWelcome), &welcome); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	if welcome.Player != "alice" || welcome.SessionID == "" || len(welcome.Catalogs) == 0 || welcome.CatchUp != nil {
		t.Fatalf("welcome %+v", welcome)
	}
	if welcome.Tuning.WorkerIntervalSec != 5 {
		t.Fatalf("tuning summary %+v", welcome.Tuning)
	}

	var state protocol.StateMsg
	if err := json.Unmarshal(readType(t, conn, protocol.TypeState), &state); err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Seq == 0 || len(state.State.Plots) != 1 {
		t.Fatalf("state %+v", state)
	}

	sendCmd(t, conn, "c1", "HARVEST", protocol.CmdArgs{Plot: 0, Sub: 0})
	res := readResult(t, conn)
	if res.Ref != "c1" || !res.OK {
		t.Fatalf("harvest result %+v", res)
	}

	sendCmd(t, conn, "c2", "SELL", protocol.CmdArgs{Resource: "gold", Qty: 99})
	res = readResult(t, conn)
	if res.OK || res.Code == "" || !protocol.IsKnownCode(res.Code) {
		t.Fatalf("refused sell %+v", res)
	}

	sendCmd(t, conn, "c3", "TELEPORT", protocol.CmdArgs{})
	if res = readResult(t, conn); res.Code != protocol.ErrUnknownOp {
		t.Fatalf("unknown op %+v", res)
	}
}

func TestMalformedFrameGetsBadRequest(t *testing.T) {
	srv := startServer(t, tuning.Defaults())
	conn := dial(t, srv, "bob")
	readType(t, conn, protocol.TypeWelcome)
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if res := readResult(t, conn); res.Code != protocol.ErrBadRequest {
		t.Fatalf("result %+v", res)
	}
}

func TestCommandsAreRateLimited(t *testing.T) {
	tune := tuning.Defaults()
	tune.RateLimits.CommandsPerSec = 0.001
	tune.RateLimits.CommandBurst = 1
	srv := startServer(t, tune)
	conn := dial(t, srv, "carol")
	readType(t, conn, protocol.TypeWelcome)

	sendCmd(t, conn, "a", "SELL_ALL", protocol.CmdArgs{})
	if res := readResult(t, conn); !res.OK {
		t.Fatalf("first command %+v", res)
	}
	sendCmd(t, conn, "b", "SELL_ALL", protocol.CmdArgs{})
	if res := readResult(t, conn); res.OK || res.Code != protocol.ErrRateLimit || res.Ref != "b" {
		t.Fatalf("second command %+v", res)
	}
}

func TestBadPlayerIsRefusedBeforeUpgrade(t *testing.T) {
	srv := startServer(t, tuning.Defaults())
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws?player=no/such"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("dial should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("response %+v", resp)
	}
}

func TestUpgradeChecksOrigin(t *testing.T) {
	srv := startServer(t, tuning.Defaults(), "https://play.example")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws?player=olive"

	h := http.Header{}
	h.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(url, h)
	if err == nil {
		t.Fatalf("foreign origin upgraded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("response %+v", resp)
	}

	h.Set("Origin", "https://play.example")
	conn, _, err := websocket.DefaultDialer.Dial(url, h)
	if err != nil {
		t.Fatalf("allowed origin: %v", err)
	}
	defer conn.Close()
	readType(t, conn, protocol.TypeWelcome)

	// Non-browser clients send no Origin.
	readType(t, dial(t, srv, "olive"), protocol.TypeWelcome)
}
