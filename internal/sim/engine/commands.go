package engine

import (
	"errors"
	"fmt"

	"tappytrade.io/internal/sim/clock"
	"tappytrade.io/internal/sim/estate"
	"tappytrade.io/internal/sim/farm"
	"tappytrade.io/internal/sim/harvest"
	"tappytrade.io/internal/sim/market"
	"tappytrade.io/internal/sim/progress"
)

type Op string

const (
	OpHarvest          Op = "HARVEST"
	OpBuyPlot          Op = "BUY_PLOT"
	OpHireWorker       Op = "HIRE_WORKER"
	OpFireWorker       Op = "FIRE_WORKER"
	OpSell             Op = "SELL"
	OpSellAll          Op = "SELL_ALL"
	OpBuyFromGov       Op = "BUY_FROM_GOV"
	OpCreateLimitOrder Op = "CREATE_LIMIT_ORDER"
	OpCancelLimitOrder Op = "CANCEL_LIMIT_ORDER"
	OpBuild            Op = "BUILD"
	OpUpgrade          Op = "UPGRADE"
	OpDemolish         Op = "DEMOLISH"
	OpClaimDaily       Op = "CLAIM_DAILY"
	OpRename           Op = "RENAME"
	OpPostOffer        Op = "POST_OFFER"
	OpFillOffer        Op = "FILL_OFFER"
	OpCancelOffer      Op = "CANCEL_OFFER"
	OpClaimOffers      Op = "CLAIM_OFFERS"
	OpSave             Op = "SAVE"
	OpReset            Op = "RESET"
)

// ErrUnknownOp is returned for commands the engine does not implement.
var ErrUnknownOp = errors.New("unknown op")

// Command is one view-layer request. Only the fields the op reads matter.
type Command struct {
	Op        Op      `json:"op"`
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

// Result is the outcome of Apply. Err is a *farm.Rejection for refused
// actions; the state is untouched whenever Err is set.
type Result struct {
	Data any
	Err  error
}

func (r Result) OK() bool { return r.Err == nil }

type costData struct {
	Cost float64 `json:"cost"`
}

type limitOrderData struct {
	ID string `json:"id"`
}

// Apply runs one command to completion on the owning goroutine.
func (e *Engine) Apply(cmd Command) Result {
	data, err := e.apply(cmd)
	if err == nil {
		e.dirty = true
	}
	if cmd.Op != OpSave {
		e.writeAudit(string(cmd.Op), err)
	}
	return Result{Data: data, Err: err}
}

func (e *Engine) apply(cmd Command) (any, error) {
	st, r := e.st, e.rules
	now := clock.Millis(e.clock)

	switch cmd.Op {
	case OpHarvest:
		return harvest.Harvest(st, r, e.rng, cmd.Plot, cmd.Sub)
	case OpBuyPlot:
		cost, err := estate.BuyPlot(st, r)
		return costData{Cost: cost}, err
	case OpHireWorker:
		cost, err := estate.HireWorker(st, r, cmd.Plot, cmd.Sub)
		return costData{Cost: cost}, err
	case OpFireWorker:
		return nil, estate.FireWorker(st, cmd.Index)
	case OpSell:
		return market.Sell(st, r, cmd.Resource, cmd.Qty)
	case OpSellAll:
		return market.SellAll(st, r), nil
	case OpBuyFromGov:
		return market.Buy(st, r, cmd.Resource, cmd.Qty)
	case OpCreateLimitOrder:
		o, err := market.CreateLimitOrder(st, r, farm.Direction(cmd.Direction), cmd.Resource, cmd.Qty, cmd.Price, now)
		if err != nil {
			return nil, err
		}
		return limitOrderData{ID: o.ID}, nil
	case OpCancelLimitOrder:
		return nil, market.CancelLimitOrder(st, cmd.OrderID)
	case OpBuild:
		return nil, estate.Build(st, r, cmd.Plot, cmd.Sub, cmd.Building)
	case OpUpgrade:
		return nil, estate.Upgrade(st, r, cmd.Plot, cmd.Sub)
	case OpDemolish:
		return estate.Demolish(st, r, cmd.Plot, cmd.Sub)
	case OpClaimDaily:
		return progress.ClaimDaily(st, r, now)
	case OpRename:
		return nil, estate.Rename(st, cmd.Name)
	case OpPostOffer:
		if e.book == nil {
			return nil, farm.Reject(farm.InvalidTarget, "player market unavailable")
		}
		return e.book.Post(st, r, e.player, farm.Direction(cmd.Direction), cmd.Resource, cmd.Qty, cmd.Price, now)
	case OpFillOffer:
		if e.book == nil {
			return nil, farm.Reject(farm.InvalidTarget, "player market unavailable")
		}
		return e.book.Fill(st, r, e.player, cmd.OrderID, now)
	case OpCancelOffer:
		if e.book == nil {
			return nil, farm.Reject(farm.InvalidTarget, "player market unavailable")
		}
		return e.book.Cancel(st, r, e.player, cmd.OrderID)
	case OpClaimOffers:
		if e.book == nil {
			return nil, farm.Reject(farm.InvalidTarget, "player market unavailable")
		}
		return e.book.Claim(st, r, e.player), nil
	case OpSave:
		e.RequestSave("requested")
		return nil, nil
	case OpReset:
		return nil, e.Reset(cmd.Confirm)
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownOp, cmd.Op)
}

// Reset replaces the whole state with a first-run state. It must be confirmed.
func (e *Engine) Reset(confirm bool) error {
	if !confirm {
		return farm.Reject(farm.InvalidTarget, "reset must be confirmed")
	}
	prev := e.st
	if e.onReset != nil {
		e.onReset(prev.Clone())
	}
	e.st = farm.New(e.rules, clock.Millis(e.clock))
	e.workerAcc, e.limitAcc, e.saveAcc, e.achAcc = 0, 0, 0, 0
	e.dirty = true
	e.logger.Printf("reset player=%s", e.player)
	e.RequestSave("reset")
	return nil
}
