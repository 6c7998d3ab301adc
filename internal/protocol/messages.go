package protocol

import (
	"tappytrade.io/internal/sim/engine"
	"tappytrade.io/internal/sim/exchange"
)

// WELCOME (server -> client), sent once after the catch-up pass.
type WelcomeMsg struct {
	Type            string                 `json:"type"`
	ProtocolVersion string                 `json:"protocol_version"`
	SessionID       string                 `json:"session_id"`
	Player          string                 `json:"player"`
	Catalogs        map[string]string      `json:"catalogs"`
	Tuning          TuningSummary          `json:"tuning"`
	CatchUp         *engine.CatchUpSummary `json:"catch_up,omitempty"`
}

type TuningSummary struct {
	FrameIntervalMs      int     `json:"frame_interval_ms"`
	WorkerIntervalSec    float64 `json:"worker_interval_sec"`
	MaxWorkers           int     `json:"max_workers"`
	MaxSubplotLevel      int     `json:"max_subplot_level"`
	CatchUpMaxOfflineSec float64 `json:"catch_up_max_offline_sec"`
	CommandsPerSec       float64 `json:"commands_per_sec"`
}

// STATE (server -> client): full view after a coalesced change.
type StateMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	Seq             uint64           `json:"seq"`
	State           StateView        `json:"state"`
	Offers          []exchange.Order `json:"offers,omitempty"`
}

// CMD (client -> server)
type CmdMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version,omitempty"`
	ID              string  `json:"id"`
	Op              string  `json:"op"`
	Args            CmdArgs `json:"args"`
}

type CmdArgs struct {
	Plot      int     `json:"plot,omitempty"`
	Sub       int     `json:"sub,omitempty"`
	Index     int     `json:"index,omitempty"`
	Resource  string  `json:"resource,omitempty"`
	Qty       int     `json:"qty,omitempty"`
	Price     float64 `json:"price,omitempty"`
	Direction string  `json:"direction,omitempty"`
	Building  string  `json:"building,omitempty"`
	OrderID   string  `json:"order_id,omitempty"`
	Name      string  `json:"name,omitempty"`
	Confirm   bool    `json:"confirm,omitempty"`
}

func (m CmdMsg) Command() engine.Command {
	a := m.Args
	return engine.Command{
		Op:        engine.Op(m.Op),
		Plot:      a.Plot,
		Sub:       a.Sub,
		Index:     a.Index,
		Resource:  a.Resource,
		Qty:       a.Qty,
		Price:     a.Price,
		Direction: a.Direction,
		Building:  a.Building,
		OrderID:   a.OrderID,
		Name:      a.Name,
		Confirm:   a.Confirm,
	}
}

// RESULT (server -> client), one per CMD.
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Data            any    `json:"data,omitempty"`
}

func NewResult(ref string, res engine.Result) ResultMsg {
	m := ResultMsg{Type: TypeResult, ProtocolVersion: Version, Ref: ref, OK: res.OK(), Data: res.Data}
	if res.Err != nil {
		m.Code = CodeFor(res.Err)
		m.Message = res.Err.Error()
		m.Data = nil
	}
	return m
}

func ErrorResult(ref, code, message string) ResultMsg {
	return ResultMsg{Type: TypeResult, ProtocolVersion: Version, Ref: ref, Code: code, Message: message}
}
