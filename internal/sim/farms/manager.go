// Package farms keeps one live engine per connected player. The first
// connection loads the save, runs the offline catch-up and starts the loop;
// the last one stops it, which flushes a final save.
package farms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"tappytrade.io/internal/persistence/archive"
	"tappytrade.io/internal/persistence/save"
	"tappytrade.io/internal/persistence/snapshot"
	"tappytrade.io/internal/sim/catalogs"
	"tappytrade.io/internal/sim/clock"
	"tappytrade.io/internal/sim/engine"
	"tappytrade.io/internal/sim/exchange"
	"tappytrade.io/internal/sim/farm"
	"tappytrade.io/internal/sim/tuning"
)

var (
	ErrBadPlayer = errors.New("farms: invalid player id")
	ErrClosed    = errors.New("farms: manager closed")
)

type Config struct {
	Catalogs *catalogs.Catalogs
	Tuning   tuning.Tuning
	Gateway  *save.Gateway
	Book     *exchange.Book
	Clock    clock.Clock
	Logger   *log.Logger

	Audit    engine.AuditLogger
	CatchUps engine.CatchUpLogger

	// ArchiveDir receives a backup of the state before each confirmed reset.
	// Empty disables archiving.
	ArchiveDir string

	SaveQueue   int
	SaveTimeout time.Duration
}

// Farm is a loaded player. CatchUp is the reconciliation that ran on load.
type Farm struct {
	Player  string
	Engine  *engine.Engine
	CatchUp engine.CatchUpSummary

	refs  int
	ready chan struct{} // closed when loading finished
	err   error
}

type Manager struct {
	cfg   Config
	rules farm.Rules

	mu      sync.Mutex
	farms   map[string]*Farm
	unloads map[string]chan struct{} // closed once the final save is stored
	closed  bool

	saves     chan engine.SaveRequest
	saveWG    sync.WaitGroup
	unloading sync.WaitGroup
	stop      chan struct{}
	pruneWG   sync.WaitGroup

	closeOnce sync.Once
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Catalogs == nil {
		return nil, engine.ErrNoCatalogs
	}
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("farms: gateway required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.SaveQueue <= 0 {
		cfg.SaveQueue = 256
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 10 * time.Second
	}
	m := &Manager{
		cfg:     cfg,
		rules:   farm.Rules{Cat: cfg.Catalogs, Tune: cfg.Tuning},
		farms:   map[string]*Farm{},
		unloads: map[string]chan struct{}{},
		saves:   make(chan engine.SaveRequest, cfg.SaveQueue),
		stop:    make(chan struct{}),
	}
	m.saveWG.Add(1)
	go m.saveLoop()
	if cfg.Book != nil {
		m.pruneWG.Add(1)
		go m.pruneLoop(time.Minute)
	}
	return m, nil
}

func (m *Manager) Rules() farm.Rules { return m.rules }

// Acquire returns the player's farm, loading it on first use. Every
// successful Acquire must be paired with a Release. A farm that is still
// unloading is reloaded only after its final save has been stored.
func (m *Manager) Acquire(ctx context.Context, player string) (*Farm, error) {
	if !snapshot.ValidPlayer(player) {
		return nil, ErrBadPlayer
	}
	m.mu.Lock()
	for {
		if m.closed {
			m.mu.Unlock()
			return nil, ErrClosed
		}
		if f := m.farms[player]; f != nil {
			f.refs++
			m.mu.Unlock()
			<-f.ready
			if f.err != nil {
				return nil, f.err
			}
			return f, nil
		}
		u := m.unloads[player]
		if u == nil {
			break
		}
		m.mu.Unlock()
		select {
		case <-u:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		m.mu.Lock()
	}
	f := &Farm{Player: player, refs: 1, ready: make(chan struct{})}
	m.farms[player] = f
	m.mu.Unlock()

	// Other connections may be waiting on this load.
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.SaveTimeout)
	eng, sum, err := m.load(lctx, player)
	cancel()

	m.mu.Lock()
	if err != nil {
		f.err = err
		if m.farms[player] == f {
			delete(m.farms, player)
		}
	} else {
		f.Engine, f.CatchUp = eng, sum
	}
	close(f.ready)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (m *Manager) load(ctx context.Context, player string) (*engine.Engine, engine.CatchUpSummary, error) {
	var sum engine.CatchUpSummary
	st, err := m.cfg.Gateway.Load(ctx, player)
	switch {
	case errors.Is(err, save.ErrNotFound):
		st = nil
	case err != nil:
		return nil, sum, err
	}

	eng, err := engine.New(engine.Config{
		Player:   player,
		Catalogs: m.cfg.Catalogs,
		Tuning:   m.cfg.Tuning,
		Clock:    m.cfg.Clock,
		Logger:   m.cfg.Logger,
		Book:     m.cfg.Book,
	}, st)
	if err != nil {
		return nil, sum, err
	}
	eng.SetSaveSink(m.saves)
	if m.cfg.Audit != nil {
		eng.SetAuditLogger(m.cfg.Audit)
	}
	if m.cfg.CatchUps != nil {
		eng.SetCatchUpLogger(m.cfg.CatchUps)
	}
	if m.cfg.ArchiveDir != "" {
		eng.SetResetHook(m.archiveHook(player))
	}

	if st == nil {
		m.cfg.Logger.Printf("new farm player=%s", player)
		eng.RequestSave("created")
	} else {
		sum = eng.CatchUp()
	}
	eng.Start(context.Background())
	return eng, sum, nil
}

// Release drops one reference. The last one stops the engine and returns
// once its final save is stored.
func (m *Manager) Release(player string) {
	m.mu.Lock()
	f := m.farms[player]
	if f == nil || f.Engine == nil {
		m.mu.Unlock()
		return
	}
	f.refs--
	if f.refs > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.farms, player)
	done := make(chan struct{})
	m.unloads[player] = done
	m.unloading.Add(1)
	m.mu.Unlock()

	f.Engine.Stop()
	m.drainSaves(player)

	m.mu.Lock()
	delete(m.unloads, player)
	close(done)
	m.mu.Unlock()
	m.unloading.Done()
	m.cfg.Logger.Printf("unloaded farm player=%s", player)
}

// drainSaves waits until every save queued so far has been written. The
// engine's stop flush is queued before Stop returns.
func (m *Manager) drainSaves(player string) {
	done := make(chan struct{})
	m.saves <- engine.SaveRequest{Player: player, Reason: "unload", Done: done}
	<-done
}

// Players lists loaded farms.
func (m *Manager) Players() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.farms))
	for p, f := range m.farms {
		if f.Engine != nil {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func (m *Manager) Refs(player string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f := m.farms[player]; f != nil {
		return f.refs
	}
	return 0
}

// Close stops every engine, waits for their final saves to be written and
// refuses further Acquire calls.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		loaded := make([]*Farm, 0, len(m.farms))
		for _, f := range m.farms {
			loaded = append(loaded, f)
		}
		m.farms = map[string]*Farm{}
		m.mu.Unlock()

		for _, f := range loaded {
			<-f.ready
			if f.Engine != nil {
				f.Engine.Stop()
			}
		}
		// Releases racing Close still flush into saves.
		m.unloading.Wait()
		close(m.stop)
		m.pruneWG.Wait()
		close(m.saves)
		m.saveWG.Wait()
	})
}

func (m *Manager) saveLoop() {
	defer m.saveWG.Done()
	for req := range m.saves {
		if req.State != nil {
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.SaveTimeout)
			err := m.cfg.Gateway.Save(ctx, req.Player, req.State)
			cancel()
			if err != nil {
				m.cfg.Logger.Printf("save failed player=%s reason=%s err=%v", req.Player, req.Reason, err)
			}
		}
		if req.Done != nil {
			close(req.Done)
		}
	}
}

func (m *Manager) pruneLoop(every time.Duration) {
	defer m.pruneWG.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-t.C:
			if n := m.cfg.Book.Prune(); n > 0 {
				m.cfg.Logger.Printf("pruned offers=%d", n)
			}
		}
	}
}

func (m *Manager) archiveHook(player string) func(prev *farm.State) {
	return func(prev *farm.State) {
		path, err := archive.BackupState(m.cfg.ArchiveDir, player, "reset", prev, m.cfg.Clock.Now())
		if err != nil {
			m.cfg.Logger.Printf("archive before reset player=%s err=%v", player, err)
			return
		}
		m.cfg.Logger.Printf("archived player=%s path=%s", player, path)
	}
}
