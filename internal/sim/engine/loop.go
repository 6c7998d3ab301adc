package engine

import (
	"context"
	"errors"
	"time"

	"tappytrade.io/internal/sim/farm"
)

var (
	ErrRunning = errors.New("engine: loop already running")
	ErrStopped = errors.New("engine: loop not running")
)

type cmdReq struct {
	cmd  Command
	resp chan Result
}

// Run is the live loop: it owns the state, applies submitted commands,
// answers view requests and ticks on a frame timer. Notifications are
// coalesced to at most one per loop iteration.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer e.running.Store(false)

	interval := time.Duration(e.rules.Tune.FrameIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := e.clock.Now()
	for {
		select {
		case <-ctx.Done():
			e.FlushSave("stop", 2*time.Second)
			e.Notify()
			return ctx.Err()
		case req := <-e.cmds:
			req.resp <- e.Apply(req.cmd)
		case resp := <-e.views:
			resp <- e.st.Clone()
		case <-ticker.C:
			now := e.clock.Now()
			e.Tick(now.Sub(last).Seconds())
			last = now
		}
		e.Notify()
	}
}

// Start runs the loop in a goroutine. Starting a running engine is a no-op
// that reports false.
func (e *Engine) Start(ctx context.Context) bool {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()
	if e.loopStop != nil {
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.loopStop, e.loopDone = cancel, done
	go func() {
		defer close(done)
		if err := e.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Printf("engine loop player=%s: %v", e.player, err)
		}
	}()
	return true
}

// Stop halts a loop started with Start and waits for it. Stopping a stopped
// engine is a no-op that reports false.
func (e *Engine) Stop() bool {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()
	if e.loopStop == nil {
		return false
	}
	e.loopStop()
	<-e.loopDone
	e.loopStop, e.loopDone = nil, nil
	return true
}

func (e *Engine) Running() bool { return e.running.Load() }

// Submit hands cmd to the running loop and waits for its result.
func (e *Engine) Submit(ctx context.Context, cmd Command) (Result, error) {
	if !e.running.Load() {
		return Result{}, ErrStopped
	}
	req := cmdReq{cmd: cmd, resp: make(chan Result, 1)}
	select {
	case e.cmds <- req:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case res := <-req.resp:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// View returns a deep copy of the state taken on the loop goroutine.
func (e *Engine) View(ctx context.Context) (*farm.State, error) {
	if !e.running.Load() {
		return nil, ErrStopped
	}
	resp := make(chan *farm.State, 1)
	select {
	case e.views <- resp:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case st := <-resp:
		return st, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
