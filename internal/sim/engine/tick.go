package engine

import (
	"math"
	"time"

	"tappytrade.io/internal/sim/clock"
	"tappytrade.io/internal/sim/harvest"
	"tappytrade.io/internal/sim/market"
	"tappytrade.io/internal/sim/progress"
	"tappytrade.io/internal/sim/regen"
)

// TickReport is what one live frame did besides regeneration.
type TickReport struct {
	Delta        float64
	WorkerTicks  int
	Gains        harvest.Gains
	Executions   []market.Execution
	Achievements []string
	Saved        bool
}

// Tick advances the live simulation by deltaSeconds of wall time. The delta
// is clamped to [0, max frame delta] so a backgrounded client cannot dump
// hours into one frame; long absences go through CatchUp instead.
func (e *Engine) Tick(deltaSeconds float64) TickReport {
	tune := e.rules.Tune
	d := deltaSeconds
	if math.IsNaN(d) || d < 0 {
		d = 0
	}
	if d > tune.MaxFrameDeltaSec {
		d = tune.MaxFrameDeltaSec
	}
	rep := TickReport{Delta: d}

	regen.AdvanceAll(e.st, e.rules, d)

	step := seconds(d)

	workerEvery := seconds(tune.WorkerIntervalSec)
	e.workerAcc += step
	for e.workerAcc >= workerEvery {
		e.workerAcc -= workerEvery
		rep.WorkerTicks++
		rep.Gains.Merge(harvest.TickWorkers(e.st, e.rules, e.rng))
	}

	e.limitAcc += step
	if limitEvery := seconds(tune.LimitOrderIntervalSec); e.limitAcc >= limitEvery {
		e.limitAcc -= limitEvery
		rep.Executions = market.EvaluateLimitOrders(e.st, e.rules)
		for _, ex := range rep.Executions {
			e.writeAudit("LIMIT_"+string(ex.Order.Direction), nil)
		}
	}

	now := clock.Millis(e.clock)

	e.achAcc += step
	if achEvery := seconds(tune.AchievementIntervalSec); e.achAcc >= achEvery {
		e.achAcc -= achEvery
		rep.Achievements = progress.CheckAchievements(e.st, e.rules.Cat, now)
	}

	e.st.LastUpdate = now

	e.saveAcc += step
	if e.saveAcc >= seconds(tune.SaveIntervalSec) {
		e.saveAcc = 0
		rep.Saved = e.RequestSave("interval")
	}

	if d > 0 {
		e.dirty = true
	}
	return rep
}

// seconds rounds s to the nearest nanosecond.
func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// CatchUpSummary reports an offline reconciliation.
type CatchUpSummary struct {
	Skipped      bool           `json:"skipped"`
	OfflineSec   float64        `json:"offline_sec"`
	AppliedSec   float64        `json:"applied_sec"`
	Capped       bool           `json:"capped"`
	WorkerCycles int            `json:"worker_cycles"`
	Harvests     int            `json:"harvests"`
	Gained       map[string]int `json:"gained,omitempty"`
	Achievements []string       `json:"achievements,omitempty"`
}

// CatchUp reconciles the time since the state's last update. Short gaps
// only move the timestamp. Longer ones are capped, replayed as discrete
// worker cycles, then regenerated in one continuous pass. The timestamp
// moves only after the whole replay, so an interrupted catch-up is simply
// redone on the next load.
func (e *Engine) CatchUp() CatchUpSummary {
	tune := e.rules.Tune
	now := clock.Millis(e.clock)
	offline := float64(now-e.st.LastUpdate) / 1000
	sum := CatchUpSummary{OfflineSec: offline}

	if !(offline > tune.CatchUp.ThresholdSec) {
		sum.Skipped = true
		e.st.LastUpdate = now
		return sum
	}

	applied := offline
	if applied > tune.CatchUp.MaxOfflineSec {
		applied = tune.CatchUp.MaxOfflineSec
		sum.Capped = true
	}
	cycles := int(math.Floor(applied / tune.WorkerIntervalSec))
	if cycles > tune.CatchUp.MaxCycles {
		cycles = tune.CatchUp.MaxCycles
		sum.Capped = true
	}
	sum.AppliedSec = applied
	sum.WorkerCycles = cycles

	var gains harvest.Gains
	if len(e.st.Workers) > 0 {
		for i := 0; i < cycles; i++ {
			gains.Merge(harvest.TickWorkers(e.st, e.rules, e.rng))
		}
	}
	regen.AdvanceAll(e.st, e.rules, applied)

	sum.Harvests = gains.Harvests
	sum.Gained = gains.Items
	sum.Achievements = progress.CheckAchievements(e.st, e.rules.Cat, now)

	e.st.LastUpdate = now
	e.dirty = true

	if e.catchUps != nil {
		if err := e.catchUps.WriteCatchUp(CatchUpEntry{Time: now, Player: e.player, Summary: sum}); err != nil {
			e.logger.Printf("catch-up log player=%s err=%v", e.player, err)
		}
	}
	e.logger.Printf("catch-up player=%s offline=%.0fs cycles=%d harvests=%d capped=%v",
		e.player, offline, cycles, sum.Harvests, sum.Capped)
	e.RequestSave("catch-up")
	return sum
}
