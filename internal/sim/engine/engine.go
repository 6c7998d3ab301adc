// Package engine owns one player's economy state and drives it: live frame
// ticks, offline catch-up, the player command contract and change
// notifications.
package engine

import (
	"errors"
	"io"
	"log"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"tappytrade.io/internal/sim/catalogs"
	"tappytrade.io/internal/sim/clock"
	"tappytrade.io/internal/sim/exchange"
	"tappytrade.io/internal/sim/farm"
	"tappytrade.io/internal/sim/harvest"
	"tappytrade.io/internal/sim/tuning"
)

var ErrNoCatalogs = errors.New("engine: catalogs required")

type Config struct {
	Player   string
	Catalogs *catalogs.Catalogs
	Tuning   tuning.Tuning
	Clock    clock.Clock
	Rand     harvest.Rand
	Logger   *log.Logger

	// Book is the shared player market. Offer commands are refused without it.
	Book *exchange.Book
}

// SaveRequest carries a private copy of the state to the save writer.
// A request with a nil State writes nothing; Done, when set, is closed once
// the writer has handled it and everything queued before it.
type SaveRequest struct {
	Player string
	Reason string
	State  *farm.State
	Done   chan struct{}
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type CatchUpLogger interface {
	WriteCatchUp(entry CatchUpEntry) error
}

type AuditEntry struct {
	Time    int64   `json:"time"`
	Player  string  `json:"player"`
	Op      string  `json:"op"`
	OK      bool    `json:"ok"`
	Code    string  `json:"code,omitempty"`
	Message string  `json:"message,omitempty"`
	Money   float64 `json:"money"`
}

type CatchUpEntry struct {
	Time    int64          `json:"time"`
	Player  string         `json:"player"`
	Summary CatchUpSummary `json:"summary"`
}

// Engine is single-owner: Tick, CatchUp and Apply must be called from one
// goroutine. Run makes the engine that goroutine; while it runs other
// goroutines use Submit and View.
type Engine struct {
	player string
	rules  farm.Rules
	clock  clock.Clock
	rng    harvest.Rand
	logger *log.Logger
	book   *exchange.Book

	st *farm.State

	// Cadence buckets hold whole nanoseconds so frame deltas sum exactly.
	workerAcc time.Duration
	limitAcc  time.Duration
	saveAcc   time.Duration
	achAcc    time.Duration

	dirty bool

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int

	cmds  chan cmdReq
	views chan chan *farm.State

	running  atomic.Bool
	loopMu   sync.Mutex
	loopStop func()
	loopDone chan struct{}

	saveSink chan<- SaveRequest
	audit    AuditLogger
	catchUps CatchUpLogger
	onReset  func(prev *farm.State)
}

// New wraps st, or a fresh first-run state when st is nil.
func New(cfg Config, st *farm.State) (*Engine, error) {
	if cfg.Catalogs == nil {
		return nil, ErrNoCatalogs
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Rand == nil {
		seed := uint64(cfg.Clock.Now().UnixNano())
		cfg.Rand = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	rules := farm.Rules{Cat: cfg.Catalogs, Tune: cfg.Tuning}
	if st == nil {
		st = farm.New(rules, clock.Millis(cfg.Clock))
	}
	return &Engine{
		player: cfg.Player,
		rules:  rules,
		clock:  cfg.Clock,
		rng:    cfg.Rand,
		logger: cfg.Logger,
		book:   cfg.Book,
		st:     st,
		subs:   map[int]func(){},
		cmds:   make(chan cmdReq, 64),
		views:  make(chan chan *farm.State, 16),
	}, nil
}

func (e *Engine) SetSaveSink(ch chan<- SaveRequest)      { e.saveSink = ch }
func (e *Engine) SetAuditLogger(l AuditLogger)           { e.audit = l }
func (e *Engine) SetCatchUpLogger(l CatchUpLogger)       { e.catchUps = l }
func (e *Engine) SetResetHook(fn func(prev *farm.State)) { e.onReset = fn }

func (e *Engine) Player() string    { return e.player }
func (e *Engine) Rules() farm.Rules { return e.rules }

// State exposes the live state to the owning goroutine.
func (e *Engine) State() *farm.State { return e.st }

// Snapshot returns a deep copy for readers on the owning goroutine.
func (e *Engine) Snapshot() *farm.State { return e.st.Clone() }

// Subscribe registers fn to run after state changes. Notifications carry no
// payload and may coalesce. fn runs on the engine goroutine and must not
// call Submit or View.
func (e *Engine) Subscribe(fn func()) (unsubscribe func()) {
	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.subMu.Unlock()
	return func() {
		e.subMu.Lock()
		delete(e.subs, id)
		e.subMu.Unlock()
	}
}

// Notify delivers one coalesced notification if anything changed since the last.
func (e *Engine) Notify() {
	if !e.dirty {
		return
	}
	e.dirty = false
	e.subMu.Lock()
	fns := make([]func(), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// RequestSave hands a copy of the state to the save sink without blocking.
// A full sink drops the request; the next interval saves again.
func (e *Engine) RequestSave(reason string) bool {
	if e.saveSink == nil {
		return false
	}
	select {
	case e.saveSink <- SaveRequest{Player: e.player, Reason: reason, State: e.st.Clone()}:
		return true
	default:
		e.logger.Printf("save dropped player=%s reason=%s", e.player, reason)
		return false
	}
}

// FlushSave is RequestSave for unload paths: it waits up to wait for room in the sink.
func (e *Engine) FlushSave(reason string, wait time.Duration) bool {
	if e.saveSink == nil {
		return false
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case e.saveSink <- SaveRequest{Player: e.player, Reason: reason, State: e.st.Clone()}:
		return true
	case <-t.C:
		e.logger.Printf("save flush timed out player=%s reason=%s", e.player, reason)
		return false
	}
}

func (e *Engine) writeAudit(op string, err error) {
	if e.audit == nil {
		return
	}
	entry := AuditEntry{
		Time:   clock.Millis(e.clock),
		Player: e.player,
		Op:     op,
		OK:     err == nil,
		Money:  e.st.Money,
	}
	if err != nil {
		entry.Code = string(farm.CodeOf(err))
		entry.Message = err.Error()
	}
	if werr := e.audit.WriteAudit(entry); werr != nil {
		e.logger.Printf("audit write player=%s err=%v", e.player, werr)
	}
}
